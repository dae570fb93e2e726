// Package transfer reads and writes suggestion files for bulk import and export.
package transfer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
)

// Required import columns, in export order.
const (
	ColTitle       = "title"
	ColMediaTypeID = "media_type_id"
	ColCreator     = "creator"
	ColLink        = "link"
	ColNotes       = "notes"
	ColSuggestedBy = "suggested_by"
	ColDate        = "date"
	ColPriority    = "priority"
	ColRating      = "rating"
)

// RequiredColumns must all be present in an import header.
var RequiredColumns = []string{
	ColTitle, ColMediaTypeID, ColCreator, ColLink, ColNotes, ColSuggestedBy, ColDate, ColPriority, ColRating,
}

// dateLayouts are tried in order for the date column.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

// ParseImport validates the header before looking at any row, then parses every row.
// Blank dates become now, blank priorities Medium, blank ratings unrated.
func ParseImport(r io.Reader, now time.Time) ([]model.ImportRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &errs.SchemaMismatchError{Missing: append([]string(nil), RequiredColumns...)}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var out []model.ImportRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		rec, err := parseRow(row, idx, now)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec.Line = line
		out = append(out, rec)
	}
	return out, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &errs.SchemaMismatchError{Missing: missing}
	}
	return idx, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, idx map[string]int, now time.Time) (model.ImportRecord, error) {
	get := func(col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := model.ImportRecord{
		Title:   get(ColTitle),
		Creator: get(ColCreator),
		Link:    get(ColLink),
		Notes:   get(ColNotes),
	}
	if rec.Title == "" {
		return rec, errs.ErrEmptyTitle
	}

	var err error
	if rec.MediaTypeID, err = parseID(ColMediaTypeID, get(ColMediaTypeID)); err != nil {
		return rec, err
	}
	if rec.FriendID, err = parseID(ColSuggestedBy, get(ColSuggestedBy)); err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = parseDate(get(ColDate), now); err != nil {
		return rec, err
	}
	if rec.Priority, err = ParsePriority(get(ColPriority)); err != nil {
		return rec, err
	}
	if rec.Rating, err = ParseRating(get(ColRating)); err != nil {
		return rec, err
	}
	return rec, nil
}

func parseID(col, v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %q: %w", col, v, errs.ErrInvalidArgument)
	}
	return id, nil
}

func parseDate(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return now.UTC(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: %w", v, errs.ErrInvalidArgument)
}

// ParsePriority accepts High, Medium or Low in any case; blank means Medium.
func ParsePriority(v string) (model.Priority, error) {
	if v == "" {
		return model.PriorityMedium, nil
	}
	for _, p := range []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow} {
		if strings.EqualFold(v, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("priority %q: %w", v, errs.ErrInvalidArgument)
}

// ParseRating accepts 1..10; blank means unrated.
func ParseRating(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// spreadsheets like to write 7.0
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int(f)) {
			return nil, fmt.Errorf("rating %q: %w", v, errs.ErrInvalidArgument)
		}
		n = int(f)
	}
	if !model.ValidRating(n) {
		return nil, fmt.Errorf("rating %d: %w", n, errs.ErrInvalidArgument)
	}
	return &n, nil
}

// exportHeader is the import column set followed by human-readable names.
var exportHeader = append(append([]string(nil), RequiredColumns...), "media_type", "friend")

// WriteCSV writes suggestions in a format ParseImport accepts.
func WriteCSV(w io.Writer, list []model.Suggestion) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, s := range list {
		rating := ""
		if s.Rating != nil {
			rating = strconv.Itoa(*s.Rating)
		}
		row := []string{
			s.Title,
			strconv.FormatInt(s.MediaTypeID, 10),
			s.Creator,
			s.Link,
			s.Notes,
			strconv.FormatInt(s.FriendID, 10),
			s.CreatedAt.UTC().Format(time.RFC3339Nano),
			string(s.Priority),
			rating,
			s.MediaTypeName,
			s.FriendName,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
