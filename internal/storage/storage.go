// Package storage opens the configured backend and hands out its repositories.
package storage

import (
	"context"
	"fmt"

	"github.com/and161185/nextbest/internal/config"
	"github.com/and161185/nextbest/internal/limiter"
	"github.com/and161185/nextbest/internal/migrate"
	"github.com/and161185/nextbest/internal/repository"
	"github.com/and161185/nextbest/internal/repository/postgres"
	"github.com/and161185/nextbest/internal/repository/sqlite"
	"github.com/and161185/nextbest/internal/service"
)

// Store bundles the repositories and login limiter of one backend.
type Store struct {
	Driver   string
	Accounts repository.AccountRepository
	Library  service.LibraryRepos
	Limiter  limiter.Limiter

	close func() error
}

// Close releases the backend.
func (s *Store) Close() error { return s.close() }

// Open migrates and connects to the backend named by cfg.Driver. The login limiter is
// shared through Postgres when the store is, and kept in process for SQLite.
func Open(ctx context.Context, cfg config.DatabaseConfig, lim limiter.Settings) (*Store, error) {
	switch cfg.Driver {
	case "postgres":
		return openPostgres(ctx, cfg.DSN, lim)
	case "sqlite":
		return OpenSQLite(ctx, sqlite.DSN(cfg.Path), lim)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, dsn string, lim limiter.Settings) (*Store, error) {
	if err := migrate.Up(ctx, dsn); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{
		Driver:   "postgres",
		Accounts: postgres.NewAccountRepo(db),
		Library: service.LibraryRepos{
			Friends:     postgres.NewFriendRepo(db),
			MediaTypes:  postgres.NewMediaTypeRepo(db),
			Suggestions: postgres.NewSuggestionRepo(db),
			Leaderboard: postgres.NewLeaderboardRepo(db),
		},
		Limiter: limiter.NewPG(db.Pool, lim),
		close:   func() error { db.Close(); return nil },
	}, nil
}

// OpenSQLite opens an embedded database; pass sqlite.MemoryDSN for a throwaway one.
func OpenSQLite(ctx context.Context, dsn string, lim limiter.Settings) (*Store, error) {
	db, err := sqlite.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &Store{
		Driver:   "sqlite",
		Accounts: sqlite.NewAccountRepo(db),
		Library: service.LibraryRepos{
			Friends:     sqlite.NewFriendRepo(db),
			MediaTypes:  sqlite.NewMediaTypeRepo(db),
			Suggestions: sqlite.NewSuggestionRepo(db),
			Leaderboard: sqlite.NewLeaderboardRepo(db),
		},
		Limiter: limiter.NewMemory(lim),
		close:   db.Close,
	}, nil
}
