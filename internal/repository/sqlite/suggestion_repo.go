package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// SuggestionRepo implements SuggestionRepository on SQLite.
type SuggestionRepo struct{ db *sql.DB }

// NewSuggestionRepo constructs a suggestion repository.
func NewSuggestionRepo(db *sql.DB) *SuggestionRepo { return &SuggestionRepo{db: db} }

const suggestionSelect = `
SELECT m.id, m.title, m.media_type_id, t.type_name, m.creator, m.link, m.notes,
       m.suggested_by, f.name, m.priority, m.rating, m.created_at, m.updated_at
FROM media_items m
JOIN media_types t ON t.id = m.media_type_id
JOIN friends f ON f.id = m.suggested_by
WHERE m.user_id = ?`

// List returns the owner's suggestions matching f, in insertion order.
func (r *SuggestionRepo) List(ctx context.Context, owner uuid.UUID, f model.SuggestionFilter) ([]model.Suggestion, error) {
	var sb strings.Builder
	sb.WriteString(suggestionSelect)
	args := []any{owner.String()}
	if f.FriendID != nil {
		sb.WriteString(" AND m.suggested_by = ?")
		args = append(args, *f.FriendID)
	}
	if f.MediaTypeID != nil {
		sb.WriteString(" AND m.media_type_id = ?")
		args = append(args, *f.MediaTypeID)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		pattern := repository.LikePattern(kw)
		sb.WriteString(` AND (` + foldFunc + `(m.title) LIKE ` + foldFunc + `(?) ESCAPE '\'` +
			` OR ` + foldFunc + `(m.creator) LIKE ` + foldFunc + `(?) ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.UnratedOnly {
		sb.WriteString(" AND m.rating IS NULL")
	}
	sb.WriteString(" ORDER BY m.id")

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns one owned suggestion.
func (r *SuggestionRepo) Get(ctx context.Context, owner uuid.UUID, id int64) (*model.Suggestion, error) {
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, suggestionSelect+` AND m.id = ?`, owner.String(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a suggestion guarded by an owned friend and an existing media type.
func (r *SuggestionRepo) Create(ctx context.Context, owner uuid.UUID, s model.NewSuggestion) (int64, error) {
	const q = `
INSERT INTO media_items (title, media_type_id, creator, link, notes, suggested_by, created_at, updated_at, priority, rating, user_id)
SELECT ?, t.id, ?, ?, ?, f.id, ?, ?, ?, ?, f.user_id
FROM friends f
JOIN media_types t ON t.id = ?
WHERE f.id = ? AND f.user_id = ?`
	at := formatTime(now())
	res, err := r.db.ExecContext(ctx, q, s.Title, s.Creator, s.Link, s.Notes, at, at,
		string(s.Priority), s.Rating, s.MediaTypeID, s.FriendID, owner.String())
	if isUniqueViolation(err) {
		return 0, errs.ErrDuplicateSuggestion
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errs.ErrUnresolvedReference
	}
	return res.LastInsertId()
}

// Update applies the non-nil fields of p to an owned suggestion and refreshes updated_at.
func (r *SuggestionRepo) Update(ctx context.Context, owner uuid.UUID, id int64, p model.SuggestionPatch) error {
	err := WithTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM media_items WHERE user_id=? AND id=?`, owner.String(), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		if p.Empty() {
			return nil
		}
		if p.MediaTypeID != nil {
			if err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM media_types WHERE id=?)`, *p.MediaTypeID); err != nil {
				return err
			}
		}
		if p.FriendID != nil {
			if err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM friends WHERE id=? AND user_id=?)`, *p.FriendID, owner.String()); err != nil {
				return err
			}
		}

		set, args := patchSet(p)
		args = append(args, owner.String(), id)
		_, err = tx.ExecContext(ctx, `UPDATE media_items SET `+set+` WHERE user_id=? AND id=?`, args...)
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrDuplicateSuggestion
	}
	return err
}

func patchSet(p model.SuggestionPatch) (string, []any) {
	var (
		cols []string
		args []any
	)
	add := func(col string, v any) {
		cols = append(cols, col+"=?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.MediaTypeID != nil {
		add("media_type_id", *p.MediaTypeID)
	}
	if p.Creator != nil {
		add("creator", *p.Creator)
	}
	if p.Link != nil {
		add("link", *p.Link)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.FriendID != nil {
		add("suggested_by", *p.FriendID)
	}
	if p.Priority != nil {
		add("priority", string(*p.Priority))
	}
	switch {
	case p.ClearRating:
		cols = append(cols, "rating=NULL")
	case p.Rating != nil:
		add("rating", *p.Rating)
	}
	add("updated_at", formatTime(now()))
	return strings.Join(cols, ", "), args
}

func exists(ctx context.Context, tx DBTX, q string, args ...any) error {
	var ok bool
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return errs.ErrUnresolvedReference
	}
	return nil
}

// Delete removes an owned suggestion.
func (r *SuggestionRepo) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM media_items WHERE user_id=? AND id=?`, owner.String(), id)
	return affectedOne(res, err)
}

// BulkInsert validates every reference up front, then inserts all records in one
// transaction. Rows that collide with an existing (title, media type) are skipped.
func (r *SuggestionRepo) BulkInsert(ctx context.Context, owner uuid.UUID, recs []model.ImportRecord) (int, error) {
	inserted := 0
	err := WithTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		friends, err := idSet(ctx, tx, `SELECT id FROM friends WHERE user_id=?`, owner.String())
		if err != nil {
			return err
		}
		types, err := idSet(ctx, tx, `SELECT id FROM media_types`)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if _, ok := types[rec.MediaTypeID]; !ok {
				return fmt.Errorf("line %d: media type %d: %w", rec.Line, rec.MediaTypeID, errs.ErrUnresolvedReference)
			}
			if _, ok := friends[rec.FriendID]; !ok {
				return fmt.Errorf("line %d: friend %d: %w", rec.Line, rec.FriendID, errs.ErrUnresolvedReference)
			}
		}

		const q = `
INSERT INTO media_items (title, media_type_id, creator, link, notes, suggested_by, created_at, updated_at, priority, rating, user_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (title, media_type_id, user_id) DO NOTHING`
		for _, rec := range recs {
			at := formatTime(rec.CreatedAt)
			res, err := tx.ExecContext(ctx, q, rec.Title, rec.MediaTypeID, rec.Creator, rec.Link, rec.Notes,
				rec.FriendID, at, at, string(rec.Priority), rec.Rating, owner.String())
			if err != nil {
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func idSet(ctx context.Context, tx DBTX, q string, args ...any) (map[int64]struct{}, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

func scanSuggestion(row scanner) (model.Suggestion, error) {
	var (
		s                model.Suggestion
		priority         string
		created, updated string
	)
	err := row.Scan(&s.ID, &s.Title, &s.MediaTypeID, &s.MediaTypeName, &s.Creator, &s.Link, &s.Notes,
		&s.FriendID, &s.FriendName, &priority, &s.Rating, &created, &updated)
	if err != nil {
		return model.Suggestion{}, err
	}
	s.Priority = model.Priority(priority)
	if s.CreatedAt, err = parseTime(created); err != nil {
		return model.Suggestion{}, err
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Suggestion{}, err
	}
	return s, nil
}
