// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides CRUD access for accounts.
type AccountRepository interface {
	// Create inserts a new account. The role is decided inside the same transaction
	// from the number of existing accounts (model.BootstrapRole) and written back to a.
	Create(ctx context.Context, a *model.Account) error
	// Count returns the number of accounts.
	Count(ctx context.Context) (int64, error)
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByUsername loads an account by username.
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	// UpdateCredentials replaces hash, salt and iteration count.
	UpdateCredentials(ctx context.Context, id uuid.UUID, hash, salt string, iterations int) error
	// List returns all accounts ordered by creation.
	List(ctx context.Context) ([]model.Account, error)
	// Delete removes an account together with its friends and suggestions.
	Delete(ctx context.Context, id uuid.UUID) error
}
