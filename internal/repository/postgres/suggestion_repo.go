package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// SuggestionRepo implements SuggestionRepository using PostgreSQL.
type SuggestionRepo struct{ db *DB }

// NewSuggestionRepo constructs a suggestion repository.
func NewSuggestionRepo(db *DB) *SuggestionRepo { return &SuggestionRepo{db: db} }

const suggestionSelect = `
SELECT m.id, m.title, m.media_type_id, t.type_name, m.creator, m.link, m.notes,
       m.suggested_by, f.name, m.priority, m.rating, m.created_at, m.updated_at
FROM media_items m
JOIN media_types t ON t.id = m.media_type_id
JOIN friends f ON f.id = m.suggested_by
WHERE m.user_id = $1`

// List returns the owner's suggestions matching f, in insertion order.
func (r *SuggestionRepo) List(ctx context.Context, owner uuid.UUID, f model.SuggestionFilter) ([]model.Suggestion, error) {
	var sb strings.Builder
	sb.WriteString(suggestionSelect)
	args := []any{owner}
	next := func(v any) int {
		args = append(args, v)
		return len(args)
	}
	if f.FriendID != nil {
		fmt.Fprintf(&sb, " AND m.suggested_by = $%d", next(*f.FriendID))
	}
	if f.MediaTypeID != nil {
		fmt.Fprintf(&sb, " AND m.media_type_id = $%d", next(*f.MediaTypeID))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		n := next(repository.LikePattern(kw))
		fmt.Fprintf(&sb, ` AND (m.title ILIKE $%d ESCAPE '\' OR m.creator ILIKE $%d ESCAPE '\')`, n, n)
	}
	if f.UnratedOnly {
		sb.WriteString(" AND m.rating IS NULL")
	}
	sb.WriteString(" ORDER BY m.id")

	rows, err := r.db.Pool.Query(ctx, sb.String(), args...)
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
	s, err := scanSuggestion(r.db.Pool.QueryRow(ctx, suggestionSelect+` AND m.id = $2`, owner, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a suggestion. The friend must belong to owner and the media type must exist;
// otherwise the SELECT yields no row and nothing is inserted.
func (r *SuggestionRepo) Create(ctx context.Context, owner uuid.UUID, s model.NewSuggestion) (int64, error) {
	const q = `
INSERT INTO media_items (title, media_type_id, creator, link, notes, suggested_by, priority, rating, user_id)
SELECT $2::text, t.id, $4::text, $5::text, $6::text, f.id, $8::text, $9::int, f.user_id
FROM friends f
JOIN media_types t ON t.id = $3
WHERE f.id = $7 AND f.user_id = $1
RETURNING id`
	var id int64
	err := r.db.Pool.QueryRow(ctx, q, owner, s.Title, s.MediaTypeID, s.Creator, s.Link, s.Notes,
		s.FriendID, string(s.Priority), s.Rating).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, errs.ErrUnresolvedReference
	case isUniqueViolation(err):
		return 0, errs.ErrDuplicateSuggestion
	case err != nil:
		return 0, err
	}
	return id, nil
}

// Update applies the non-nil fields of p to an owned suggestion and refreshes updated_at.
func (r *SuggestionRepo) Update(ctx context.Context, owner uuid.UUID, id int64, p model.SuggestionPatch) error {
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM media_items WHERE user_id=$1 AND id=$2 FOR UPDATE`, owner, id).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		if p.Empty() {
			return nil
		}
		if p.MediaTypeID != nil {
			if err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM media_types WHERE id=$1)`, *p.MediaTypeID); err != nil {
				return err
			}
		}
		if p.FriendID != nil {
			if err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM friends WHERE id=$1 AND user_id=$2)`, *p.FriendID, owner); err != nil {
				return err
			}
		}

		set, args := patchSet(p, owner, id)
		_, err = tx.Exec(ctx, `UPDATE media_items SET `+set+` WHERE user_id=$1 AND id=$2`, args...)
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrDuplicateSuggestion
	}
	return err
}

// patchSet renders the SET clause; $1 and $2 are reserved for owner and id.
func patchSet(p model.SuggestionPatch, owner uuid.UUID, id int64) (string, []any) {
	args := []any{owner, id}
	var cols []string
	add := func(col string, v any) {
		args = append(args, v)
		cols = append(cols, fmt.Sprintf("%s=$%d", col, len(args)))
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
	cols = append(cols, "updated_at=now()")
	return strings.Join(cols, ", "), args
}

func exists(ctx context.Context, tx pgx.Tx, q string, args ...any) error {
	var ok bool
	if err := tx.QueryRow(ctx, q, args...).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return errs.ErrUnresolvedReference
	}
	return nil
}

// Delete removes an owned suggestion.
func (r *SuggestionRepo) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM media_items WHERE user_id=$1 AND id=$2`, owner, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// BulkInsert validates every reference up front, then inserts all records in one
// transaction. Rows that collide with an existing (title, media type) are skipped.
func (r *SuggestionRepo) BulkInsert(ctx context.Context, owner uuid.UUID, recs []model.ImportRecord) (inserted int, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		friends, err := idSet(ctx, tx, `SELECT id FROM friends WHERE user_id=$1`, owner)
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, $10)
ON CONFLICT (title, media_type_id, user_id) DO NOTHING`
		for _, rec := range recs {
			tag, err := tx.Exec(ctx, q, rec.Title, rec.MediaTypeID, rec.Creator, rec.Link, rec.Notes,
				rec.FriendID, rec.CreatedAt, string(rec.Priority), rec.Rating, owner)
			if err != nil {
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func idSet(ctx context.Context, tx pgx.Tx, q string, args ...any) (map[int64]struct{}, error) {
	rows, err := tx.Query(ctx, q, args...)
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

func scanSuggestion(row pgx.Row) (model.Suggestion, error) {
	var (
		s        model.Suggestion
		priority string
	)
	err := row.Scan(&s.ID, &s.Title, &s.MediaTypeID, &s.MediaTypeName, &s.Creator, &s.Link, &s.Notes,
		&s.FriendID, &s.FriendName, &priority, &s.Rating, &s.CreatedAt, &s.UpdatedAt)
	s.Priority = model.Priority(priority)
	return s, err
}
