package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepo implements AccountRepository on SQLite.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, username, password_hash, salt, iterations, role, created_at`

// Create counts and inserts inside one write transaction, so only the first account becomes admin.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	created := now()
	err := WithTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		var n int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
			return err
		}
		a.Role = model.BootstrapRole(n)

		const q = `
INSERT INTO users (id, username, password_hash, salt, iterations, role, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, q, a.ID.String(), a.Username, a.PasswordHash, a.Salt, a.Iterations,
			string(a.Role), formatTime(created))
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrDuplicateUsername
	}
	if err != nil {
		return err
	}
	a.CreatedAt = created
	return nil
}

// Count returns the number of accounts.
func (r *AccountRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM users WHERE id=?`, id.String())
}

// GetByUsername selects an account by username.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM users WHERE username=?`, username)
}

func (r *AccountRepo) getOne(ctx context.Context, q string, arg any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateCredentials replaces the password material of one account.
func (r *AccountRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, hash, salt string, iterations int) error {
	const q = `UPDATE users SET password_hash=?, salt=?, iterations=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, q, hash, salt, iterations, id.String())
	return affectedOne(res, err)
}

// List returns all accounts, oldest first.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountCols+` FROM users ORDER BY created_at, id`)
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

// Delete removes an account; friends and suggestions cascade.
func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id.String())
	return affectedOne(res, err)
}

type scanner interface{ Scan(dest ...any) error }

func scanAccount(row scanner) (model.Account, error) {
	var (
		a              model.Account
		id, role, at string
	)
	if err := row.Scan(&id, &a.Username, &a.PasswordHash, &a.Salt, &a.Iterations, &role, &at); err != nil {
		return model.Account{}, err
	}
	parsed, err := uuid.FromString(id)
	if err != nil {
		return model.Account{}, err
	}
	a.ID = parsed
	a.Role = model.Role(role)
	if a.CreatedAt, err = parseTime(at); err != nil {
		return model.Account{}, err
	}
	return a, nil
}

// affectedOne maps "no row touched" to errs.ErrNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
