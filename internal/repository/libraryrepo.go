package repository

import (
	"context"

	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Every method below takes the owning account explicitly and never touches rows
// owned by another account. Mutations on rows the owner does not have return errs.ErrNotFound.

// FriendRepository stores friends per account.
type FriendRepository interface {
	List(ctx context.Context, owner uuid.UUID) ([]model.Friend, error)
	Create(ctx context.Context, owner uuid.UUID, name string) (model.Friend, error)
	Rename(ctx context.Context, owner uuid.UUID, id int64, name string) error
	// Delete fails with errs.ErrInUse while suggestions still reference the friend.
	Delete(ctx context.Context, owner uuid.UUID, id int64) error
}

// MediaTypeRepository exposes the global, seeded media types.
type MediaTypeRepository interface {
	List(ctx context.Context) ([]model.MediaType, error)
}

// SuggestionRepository stores suggestions per account.
type SuggestionRepository interface {
	List(ctx context.Context, owner uuid.UUID, f model.SuggestionFilter) ([]model.Suggestion, error)
	Get(ctx context.Context, owner uuid.UUID, id int64) (*model.Suggestion, error)
	// Create fails with errs.ErrUnresolvedReference when the friend is not owned
	// by owner or the media type does not exist.
	Create(ctx context.Context, owner uuid.UUID, s model.NewSuggestion) (int64, error)
	Update(ctx context.Context, owner uuid.UUID, id int64, p model.SuggestionPatch) error
	Delete(ctx context.Context, owner uuid.UUID, id int64) error
	// BulkInsert inserts all records in one transaction, skipping rows that collide
	// with an existing (title, media type) of the owner. It returns the inserted count.
	BulkInsert(ctx context.Context, owner uuid.UUID, recs []model.ImportRecord) (int, error)
}

// LeaderboardRepository computes per-friend aggregates for one account.
type LeaderboardRepository interface {
	TopRated(ctx context.Context, owner uuid.UUID, limit int) ([]model.FriendMetric, error)
	MostSuggestions(ctx context.Context, owner uuid.UUID, limit int) ([]model.FriendMetric, error)
	// Neglected returns nil when the owner has no unrated suggestion.
	Neglected(ctx context.Context, owner uuid.UUID) (*model.NeglectedFriend, error)
}
