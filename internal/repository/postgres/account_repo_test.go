package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var accountColumns = []string{"id", "username", "password_hash", "salt", "iterations", "role", "created_at"}

func TestAccountRepo_Create_FirstIsAdmin(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	a := &model.Account{ID: uuid.Must(uuid.NewV7()), Username: "root", PasswordHash: "h", Salt: "s", Iterations: 10}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(q(`LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`)).
		WillReturnResult(pgxmock.NewResult("LOCK", 0))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(q(`INSERT INTO users (id, username, password_hash, salt, iterations, role) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`)).
		WithArgs(a.ID, "root", "h", "s", 10, "admin").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	require.NoError(t, r.Create(ctx, a))
	require.Equal(t, model.RoleAdmin, a.Role)
	require.Equal(t, now, a.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Create_LaterIsUser_And_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	a := &model.Account{ID: uuid.Must(uuid.NewV7()), Username: "bob", PasswordHash: "h", Salt: "s", Iterations: 10}

	mock.ExpectBegin()
	mock.ExpectExec(q(`LOCK TABLE users`)).WillReturnResult(pgxmock.NewResult("LOCK", 0))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(q(`INSERT INTO users`)).
		WithArgs(a.ID, "bob", "h", "s", 10, "user").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := r.Create(ctx, a)
	require.ErrorIs(t, err, errs.ErrDuplicateUsername)
	require.Equal(t, model.RoleUser, a.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Create_BeginErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)

	mock.ExpectBegin().WillReturnError(errors.New("boom"))
	err := r.Create(context.Background(), &model.Account{Username: "x"})
	require.Error(t, err)
}

func TestAccountRepo_GetByUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(q(`SELECT id, username, password_hash, salt, iterations, role, created_at FROM users WHERE username=$1`)).
		WithArgs("u2").
		WillReturnRows(pgxmock.NewRows(accountColumns).AddRow(id, "u2", "h", "s", 100, "user", time.Now()))
	a, err := r.GetByUsername(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Equal(t, model.RoleUser, a.Role)
	require.Equal(t, 100, a.Iterations)

	mock.ExpectQuery(q(`FROM users WHERE username=$1`)).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByUsername(ctx, "ghost")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(q(`FROM users WHERE username=$1`)).
		WithArgs("x").
		WillReturnError(context.Canceled)
	_, err = r.GetByUsername(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAccountRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	id := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(q(`FROM users WHERE id=$1`)).WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err := r.GetByID(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAccountRepo_UpdateCredentials(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())

	mock.ExpectExec(q(`UPDATE users SET password_hash=$2, salt=$3, iterations=$4 WHERE id=$1`)).
		WithArgs(id, "h2", "s2", 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateCredentials(ctx, id, "h2", "s2", 5))

	mock.ExpectExec(q(`UPDATE users SET password_hash=$2`)).
		WithArgs(id, "h2", "s2", 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateCredentials(ctx, id, "h2", "s2", 5), errs.ErrNotFound)
}

func TestAccountRepo_List_And_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	a, b := uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())
	now := time.Now()

	mock.ExpectQuery(q(`SELECT id, username, password_hash, salt, iterations, role, created_at FROM users ORDER BY created_at, id`)).
		WillReturnRows(pgxmock.NewRows(accountColumns).
			AddRow(a, "root", "h", "s", 1, "admin", now).
			AddRow(b, "bob", "h", "s", 1, "user", now))
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, model.RoleAdmin, list[0].Role)

	mock.ExpectExec(q(`DELETE FROM users WHERE id=$1`)).WithArgs(b).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(ctx, b))

	mock.ExpectExec(q(`DELETE FROM users WHERE id=$1`)).WithArgs(b).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(ctx, b), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Count(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	mock.ExpectQuery(q(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	n, err := NewAccountRepo(db).Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
