// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/nextbest/migrations"
)

// goose keeps its base FS and dialect in package state.
var mu sync.Mutex

// Up runs all pending Postgres migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return UpDB(ctx, db, "postgres")
}

// UpDB runs pending migrations for dialect ("postgres" or "sqlite3") on an open handle.
// Migrations run one after another on whatever connection the pool hands out,
// so a single-connection in-memory SQLite database works.
func UpDB(ctx context.Context, db *sql.DB, dialect string) error {
	dir, err := dialectDir(dialect)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}

func dialectDir(dialect string) (string, error) {
	switch dialect {
	case "postgres":
		return "postgres", nil
	case "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported dialect %q", dialect)
}
