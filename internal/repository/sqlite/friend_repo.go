package sqlite

import (
	"context"
	"database/sql"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FriendRepo implements FriendRepository on SQLite.
type FriendRepo struct{ db *sql.DB }

// NewFriendRepo constructs a friend repository.
func NewFriendRepo(db *sql.DB) *FriendRepo { return &FriendRepo{db: db} }

// List returns the owner's friends in insertion order.
func (r *FriendRepo) List(ctx context.Context, owner uuid.UUID) ([]model.Friend, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM friends WHERE user_id=? ORDER BY id`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Friend
	for rows.Next() {
		var (
			f  model.Friend
			at string
		)
		if err := rows.Scan(&f.ID, &f.Name, &at); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Create inserts a friend for owner.
func (r *FriendRepo) Create(ctx context.Context, owner uuid.UUID, name string) (model.Friend, error) {
	created := now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO friends (name, user_id, created_at) VALUES (?, ?, ?)`,
		name, owner.String(), formatTime(created))
	if isUniqueViolation(err) {
		return model.Friend{}, errs.ErrDuplicateFriend
	}
	if err != nil {
		return model.Friend{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Friend{}, err
	}
	return model.Friend{ID: id, Name: name, CreatedAt: created}, nil
}

// Rename changes the display name of an owned friend.
func (r *FriendRepo) Rename(ctx context.Context, owner uuid.UUID, id int64, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE friends SET name=? WHERE user_id=? AND id=?`, name, owner.String(), id)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateFriend
	}
	return affectedOne(res, err)
}

// Delete removes an owned friend that no suggestion references.
func (r *FriendRepo) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM friends WHERE user_id=? AND id=?`, owner.String(), id)
	if isForeignKeyViolation(err) {
		return errs.ErrInUse
	}
	return affectedOne(res, err)
}

// MediaTypeRepo implements MediaTypeRepository on SQLite.
type MediaTypeRepo struct{ db *sql.DB }

// NewMediaTypeRepo constructs a media type repository.
func NewMediaTypeRepo(db *sql.DB) *MediaTypeRepo { return &MediaTypeRepo{db: db} }

// List returns all media types ordered by id.
func (r *MediaTypeRepo) List(ctx context.Context) ([]model.MediaType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, type_name FROM media_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MediaType
	for rows.Next() {
		var m model.MediaType
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
