package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/repository"
	"github.com/and161185/nextbest/internal/transfer"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// LeaderboardSize is how many friends each ranking shows.
const LeaderboardSize = 3

// LibraryService defines the owner-scoped operations on friends and suggestions.
// owner is always the authenticated account; nothing crosses account boundaries.
type LibraryService interface {
	ListFriends(ctx context.Context, owner uuid.UUID) ([]model.Friend, error)
	AddFriend(ctx context.Context, owner uuid.UUID, name string) (model.Friend, error)
	RenameFriend(ctx context.Context, owner uuid.UUID, id int64, name string) error
	DeleteFriend(ctx context.Context, owner uuid.UUID, id int64) error
	// ResolveFriend finds an owned friend by name. An exact match wins; otherwise the
	// name must match exactly one friend ignoring case.
	ResolveFriend(ctx context.Context, owner uuid.UUID, name string) (model.Friend, error)

	ListMediaTypes(ctx context.Context) ([]model.MediaType, error)
	// ResolveMediaType finds a media type by name, ignoring case.
	ResolveMediaType(ctx context.Context, name string) (model.MediaType, error)

	ListSuggestions(ctx context.Context, owner uuid.UUID, f model.SuggestionFilter) ([]model.Suggestion, error)
	GetSuggestion(ctx context.Context, owner uuid.UUID, id int64) (*model.Suggestion, error)
	AddSuggestion(ctx context.Context, owner uuid.UUID, in model.NewSuggestion) (*model.Suggestion, error)
	UpdateSuggestion(ctx context.Context, owner uuid.UUID, id int64, p model.SuggestionPatch) (*model.Suggestion, error)
	RateSuggestion(ctx context.Context, owner uuid.UUID, id int64, rating int) error
	DeleteSuggestion(ctx context.Context, owner uuid.UUID, id int64) error

	// Import reads a CSV file and inserts its rows; it returns how many were new.
	Import(ctx context.Context, owner uuid.UUID, r io.Reader) (int, error)
	// Export writes the owner's suggestions matching f as CSV.
	Export(ctx context.Context, owner uuid.UUID, w io.Writer, f model.SuggestionFilter) error
	Leaderboard(ctx context.Context, owner uuid.UUID) (model.Leaderboard, error)
}

// LibraryRepos groups the storage the library needs.
type LibraryRepos struct {
	Friends     repository.FriendRepository
	MediaTypes  repository.MediaTypeRepository
	Suggestions repository.SuggestionRepository
	Leaderboard repository.LeaderboardRepository
}

type LibraryServiceImpl struct {
	repos LibraryRepos
	log   *zap.Logger
	now   func() time.Time
}

// NewLibraryService constructs LibraryService.
func NewLibraryService(repos LibraryRepos, log *zap.Logger) *LibraryServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &LibraryServiceImpl{repos: repos, log: log, now: time.Now}
}

func checkOwner(owner uuid.UUID) error {
	if owner == uuid.Nil {
		return errs.ErrUnauthorized
	}
	return nil
}

// ListFriends returns the owner's friends.
func (s *LibraryServiceImpl) ListFriends(ctx context.Context, owner uuid.UUID) ([]model.Friend, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	return s.repos.Friends.List(ctx, owner)
}

// AddFriend validates and stores a new friend.
func (s *LibraryServiceImpl) AddFriend(ctx context.Context, owner uuid.UUID, name string) (model.Friend, error) {
	if err := checkOwner(owner); err != nil {
		return model.Friend{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Friend{}, errs.ErrEmptyName
	}
	return s.repos.Friends.Create(ctx, owner, name)
}

// RenameFriend changes an owned friend's name.
func (s *LibraryServiceImpl) RenameFriend(ctx context.Context, owner uuid.UUID, id int64, name string) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.ErrEmptyName
	}
	return s.repos.Friends.Rename(ctx, owner, id, name)
}

// DeleteFriend removes an owned friend.
func (s *LibraryServiceImpl) DeleteFriend(ctx context.Context, owner uuid.UUID, id int64) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	return s.repos.Friends.Delete(ctx, owner, id)
}

// ResolveFriend maps a name typed by a user to an owned friend.
func (s *LibraryServiceImpl) ResolveFriend(ctx context.Context, owner uuid.UUID, name string) (model.Friend, error) {
	list, err := s.ListFriends(ctx, owner)
	if err != nil {
		return model.Friend{}, err
	}
	name = strings.TrimSpace(name)
	names := make([]string, len(list))
	for i, f := range list {
		names[i] = f.Name
	}
	i, err := matchName(names, name)
	if err != nil {
		return model.Friend{}, fmt.Errorf("friend %q: %w", name, err)
	}
	return list[i], nil
}

// ListMediaTypes returns the global media types.
func (s *LibraryServiceImpl) ListMediaTypes(ctx context.Context) ([]model.MediaType, error) {
	return s.repos.MediaTypes.List(ctx)
}

// ResolveMediaType maps a name typed by a user to a media type.
func (s *LibraryServiceImpl) ResolveMediaType(ctx context.Context, name string) (model.MediaType, error) {
	list, err := s.repos.MediaTypes.List(ctx)
	if err != nil {
		return model.MediaType{}, err
	}
	name = strings.TrimSpace(name)
	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Name
	}
	i, err := matchName(names, name)
	if err != nil {
		return model.MediaType{}, fmt.Errorf("media type %q: %w", name, err)
	}
	return list[i], nil
}

// matchName returns the index of the exact match, or of the only case-insensitive one.
func matchName(names []string, name string) (int, error) {
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	found := -1
	for i, n := range names {
		if strings.EqualFold(n, name) {
			if found >= 0 {
				return -1, fmt.Errorf("%w: ambiguous, names differ only by case", errs.ErrUnresolvedReference)
			}
			found = i
		}
	}
	if found < 0 {
		return -1, errs.ErrUnresolvedReference
	}
	return found, nil
}

// ListSuggestions returns the owner's suggestions matching f.
func (s *LibraryServiceImpl) ListSuggestions(ctx context.Context, owner uuid.UUID, f model.SuggestionFilter) ([]model.Suggestion, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	return s.repos.Suggestions.List(ctx, owner, f)
}

// GetSuggestion returns one owned suggestion.
func (s *LibraryServiceImpl) GetSuggestion(ctx context.Context, owner uuid.UUID, id int64) (*model.Suggestion, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	return s.repos.Suggestions.Get(ctx, owner, id)
}

// AddSuggestion validates input, stores it and returns the stored row.
// Validation rules:
// - title not blank
// - priority High, Medium or Low (blank means Medium)
// - rating unset or 1..10
// - media type and friend ids set; ownership is checked by the repository
func (s *LibraryServiceImpl) AddSuggestion(ctx context.Context, owner uuid.UUID, in model.NewSuggestion) (*model.Suggestion, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Creator = strings.TrimSpace(in.Creator)
	in.Link = strings.TrimSpace(in.Link)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Title == "" {
		return nil, errs.ErrEmptyTitle
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("priority %q: %w", in.Priority, errs.ErrInvalidArgument)
	}
	if in.Rating != nil && !model.ValidRating(*in.Rating) {
		return nil, fmt.Errorf("rating %d: %w", *in.Rating, errs.ErrInvalidArgument)
	}
	if in.MediaTypeID <= 0 || in.FriendID <= 0 {
		return nil, errs.ErrUnresolvedReference
	}

	id, err := s.repos.Suggestions.Create(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	return s.repos.Suggestions.Get(ctx, owner, id)
}

// UpdateSuggestion validates the supplied fields and applies them.
func (s *LibraryServiceImpl) UpdateSuggestion(ctx context.Context, owner uuid.UUID, id int64, p model.SuggestionPatch) (*model.Suggestion, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, errs.ErrEmptyTitle
		}
		p.Title = &t
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return nil, fmt.Errorf("priority %q: %w", *p.Priority, errs.ErrInvalidArgument)
	}
	if p.Rating != nil && !p.ClearRating && !model.ValidRating(*p.Rating) {
		return nil, fmt.Errorf("rating %d: %w", *p.Rating, errs.ErrInvalidArgument)
	}
	if (p.MediaTypeID != nil && *p.MediaTypeID <= 0) || (p.FriendID != nil && *p.FriendID <= 0) {
		return nil, errs.ErrUnresolvedReference
	}

	if err := s.repos.Suggestions.Update(ctx, owner, id, p); err != nil {
		return nil, err
	}
	return s.repos.Suggestions.Get(ctx, owner, id)
}

// RateSuggestion sets the rating of an owned suggestion.
func (s *LibraryServiceImpl) RateSuggestion(ctx context.Context, owner uuid.UUID, id int64, rating int) error {
	_, err := s.UpdateSuggestion(ctx, owner, id, model.SuggestionPatch{Rating: &rating})
	return err
}

// DeleteSuggestion removes an owned suggestion.
func (s *LibraryServiceImpl) DeleteSuggestion(ctx context.Context, owner uuid.UUID, id int64) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	return s.repos.Suggestions.Delete(ctx, owner, id)
}

// Import parses the whole file before touching storage, so a bad header or row inserts nothing.
func (s *LibraryServiceImpl) Import(ctx context.Context, owner uuid.UUID, r io.Reader) (int, error) {
	if err := checkOwner(owner); err != nil {
		return 0, err
	}
	recs, err := transfer.ParseImport(r, s.now())
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	n, err := s.repos.Suggestions.BulkInsert(ctx, owner, recs)
	if err != nil {
		return 0, err
	}
	s.log.Info("import finished", zap.String("owner", owner.String()), zap.Int("rows", len(recs)), zap.Int("inserted", n))
	return n, nil
}

// Export writes the owner's suggestions as CSV.
func (s *LibraryServiceImpl) Export(ctx context.Context, owner uuid.UUID, w io.Writer, f model.SuggestionFilter) error {
	list, err := s.ListSuggestions(ctx, owner, f)
	if err != nil {
		return err
	}
	return transfer.WriteCSV(w, list)
}

// Leaderboard gathers the three per-friend rankings.
func (s *LibraryServiceImpl) Leaderboard(ctx context.Context, owner uuid.UUID) (model.Leaderboard, error) {
	if err := checkOwner(owner); err != nil {
		return model.Leaderboard{}, err
	}
	var (
		lb  model.Leaderboard
		err error
	)
	if lb.TopRated, err = s.repos.Leaderboard.TopRated(ctx, owner, LeaderboardSize); err != nil {
		return model.Leaderboard{}, err
	}
	if lb.MostSuggestions, err = s.repos.Leaderboard.MostSuggestions(ctx, owner, LeaderboardSize); err != nil {
		return model.Leaderboard{}, err
	}
	if lb.Neglected, err = s.repos.Leaderboard.Neglected(ctx, owner); err != nil {
		return model.Leaderboard{}, err
	}
	return lb, nil
}
