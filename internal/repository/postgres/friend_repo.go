package postgres

import (
	"context"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FriendRepo implements FriendRepository using PostgreSQL.
type FriendRepo struct{ db *DB }

// NewFriendRepo constructs a friend repository.
func NewFriendRepo(db *DB) *FriendRepo { return &FriendRepo{db: db} }

// List returns the owner's friends in insertion order.
func (r *FriendRepo) List(ctx context.Context, owner uuid.UUID) ([]model.Friend, error) {
	const q = `SELECT id, name, created_at FROM friends WHERE user_id=$1 ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Friend
	for rows.Next() {
		var f model.Friend
		if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Create inserts a friend for owner.
func (r *FriendRepo) Create(ctx context.Context, owner uuid.UUID, name string) (model.Friend, error) {
	const q = `INSERT INTO friends (name, user_id) VALUES ($1, $2) RETURNING id, created_at`
	f := model.Friend{Name: name}
	err := r.db.Pool.QueryRow(ctx, q, name, owner).Scan(&f.ID, &f.CreatedAt)
	if isUniqueViolation(err) {
		return model.Friend{}, errs.ErrDuplicateFriend
	}
	if err != nil {
		return model.Friend{}, err
	}
	return f, nil
}

// Rename changes the display name of an owned friend.
func (r *FriendRepo) Rename(ctx context.Context, owner uuid.UUID, id int64, name string) error {
	const q = `UPDATE friends SET name=$3 WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, owner, id, name)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateFriend
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes an owned friend that no suggestion references.
func (r *FriendRepo) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	const q = `DELETE FROM friends WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, owner, id)
	if isForeignKeyViolation(err) {
		return errs.ErrInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MediaTypeRepo implements MediaTypeRepository using PostgreSQL.
type MediaTypeRepo struct{ db *DB }

// NewMediaTypeRepo constructs a media type repository.
func NewMediaTypeRepo(db *DB) *MediaTypeRepo { return &MediaTypeRepo{db: db} }

// List returns all media types ordered by id.
func (r *MediaTypeRepo) List(ctx context.Context) ([]model.MediaType, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, type_name FROM media_types ORDER BY id`)
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
