package postgres

import (
	"context"
	"errors"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, username, password_hash, salt, iterations, role, created_at`

// Create inserts a new account. The table lock serializes concurrent first
// registrations so that exactly one of them observes an empty table.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		var n int64
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
			return err
		}
		a.Role = model.BootstrapRole(n)

		const q = `
INSERT INTO users (id, username, password_hash, salt, iterations, role)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
		return tx.QueryRow(ctx, q, a.ID, a.Username, a.PasswordHash, a.Salt, a.Iterations, string(a.Role)).
			Scan(&a.CreatedAt)
	})
	if isUniqueViolation(err) {
		return errs.ErrDuplicateUsername
	}
	return err
}

// Count returns the number of accounts.
func (r *AccountRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM users WHERE id=$1`, id)
}

// GetByUsername selects an account by username.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM users WHERE username=$1`, username)
}

func (r *AccountRepo) getOne(ctx context.Context, q string, arg any) (*model.Account, error) {
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateCredentials replaces the password material of one account.
func (r *AccountRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, hash, salt string, iterations int) error {
	const q = `UPDATE users SET password_hash=$2, salt=$3, iterations=$4 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash, salt, iterations)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// List returns all accounts, oldest first.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+accountCols+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an account; friends and suggestions go with it.
func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var (
		a    model.Account
		role string
	)
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Salt, &a.Iterations, &role, &a.CreatedAt)
	a.Role = model.Role(role)
	return a, err
}
