package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/repository/sqlite"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

type libraryFixture struct {
	svc   *LibraryServiceImpl
	alice uuid.UUID
	bob   uuid.UUID
}

func newLibrary(t *testing.T) libraryFixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	auth := NewAuthService(sqlite.NewAccountRepo(db), testAuthConfig(), &fakeLimiter{allowOK: true}, nil)
	alice, err := auth.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	bob, err := auth.Register(ctx, "bob", "pw")
	require.NoError(t, err)

	svc := NewLibraryService(LibraryRepos{
		Friends:     sqlite.NewFriendRepo(db),
		MediaTypes:  sqlite.NewMediaTypeRepo(db),
		Suggestions: sqlite.NewSuggestionRepo(db),
		Leaderboard: sqlite.NewLeaderboardRepo(db),
	}, nil)
	return libraryFixture{svc: svc, alice: alice.ID, bob: bob.ID}
}

func ptr[T any](v T) *T { return &v }

func (fx libraryFixture) movie(t *testing.T) int64 {
	t.Helper()
	mt, err := fx.svc.ResolveMediaType(context.Background(), "movie")
	require.NoError(t, err)
	return mt.ID
}

func TestLibrary_RequiresOwner(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()

	_, err := fx.svc.ListFriends(ctx, uuid.Nil)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = fx.svc.ListSuggestions(ctx, uuid.Nil, model.SuggestionFilter{})
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = fx.svc.Import(ctx, uuid.Nil, strings.NewReader(""))
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestLibrary_Friends(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()

	_, err := fx.svc.AddFriend(ctx, fx.alice, "   ")
	require.ErrorIs(t, err, errs.ErrEmptyName)

	sam, err := fx.svc.AddFriend(ctx, fx.alice, " Sam ")
	require.NoError(t, err)
	require.Equal(t, "Sam", sam.Name)

	_, err = fx.svc.AddFriend(ctx, fx.alice, "Sam")
	require.ErrorIs(t, err, errs.ErrDuplicateFriend)
	_, err = fx.svc.AddFriend(ctx, fx.bob, "Sam")
	require.NoError(t, err, "names are unique per account only")

	got, err := fx.svc.ResolveFriend(ctx, fx.alice, "sam")
	require.NoError(t, err)
	require.Equal(t, sam.ID, got.ID)

	require.ErrorIs(t, fx.svc.RenameFriend(ctx, fx.bob, sam.ID, "Mine"), errs.ErrNotFound)
	require.NoError(t, fx.svc.RenameFriend(ctx, fx.alice, sam.ID, "Samantha"))
	_, err = fx.svc.ResolveFriend(ctx, fx.alice, "Sam")
	require.ErrorIs(t, err, errs.ErrUnresolvedReference)

	require.ErrorIs(t, fx.svc.DeleteFriend(ctx, fx.bob, sam.ID), errs.ErrNotFound)
	require.NoError(t, fx.svc.DeleteFriend(ctx, fx.alice, sam.ID))
}

func TestLibrary_ResolveFriend_PrefersExactCase(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()

	upper, err := fx.svc.AddFriend(ctx, fx.alice, "Alice")
	require.NoError(t, err)
	lower, err := fx.svc.AddFriend(ctx, fx.alice, "alice")
	require.NoError(t, err)

	got, err := fx.svc.ResolveFriend(ctx, fx.alice, "alice")
	require.NoError(t, err)
	require.Equal(t, lower.ID, got.ID)
	got, err = fx.svc.ResolveFriend(ctx, fx.alice, "Alice")
	require.NoError(t, err)
	require.Equal(t, upper.ID, got.ID)

	_, err = fx.svc.ResolveFriend(ctx, fx.alice, "aLiCe")
	require.ErrorIs(t, err, errs.ErrUnresolvedReference)
	require.Contains(t, err.Error(), "ambiguous")

	shout, err := fx.svc.AddFriend(ctx, fx.alice, "ALICE")
	require.NoError(t, err)
	got, err = fx.svc.ResolveFriend(ctx, fx.alice, "ALICE")
	require.NoError(t, err)
	require.Equal(t, shout.ID, got.ID, "exact match wins even after earlier case-insensitive ones")
}

func TestLibrary_AddSuggestion_Validation(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()
	sam, err := fx.svc.AddFriend(ctx, fx.alice, "Sam")
	require.NoError(t, err)
	movie := fx.movie(t)

	cases := []struct {
		name string
		in   model.NewSuggestion
		want error
	}{
		{"blank title", model.NewSuggestion{Title: " ", MediaTypeID: movie, FriendID: sam.ID}, errs.ErrEmptyTitle},
		{"bad priority", model.NewSuggestion{Title: "X", MediaTypeID: movie, FriendID: sam.ID, Priority: "Urgent"}, errs.ErrInvalidArgument},
		{"rating too high", model.NewSuggestion{Title: "X", MediaTypeID: movie, FriendID: sam.ID, Rating: ptr(11)}, errs.ErrInvalidArgument},
		{"rating zero", model.NewSuggestion{Title: "X", MediaTypeID: movie, FriendID: sam.ID, Rating: ptr(0)}, errs.ErrInvalidArgument},
		{"missing friend", model.NewSuggestion{Title: "X", MediaTypeID: movie}, errs.ErrUnresolvedReference},
		{"unknown type", model.NewSuggestion{Title: "X", MediaTypeID: 999, FriendID: sam.ID}, errs.ErrUnresolvedReference},
	}
	for _, tc := range cases {
		_, err := fx.svc.AddSuggestion(ctx, fx.alice, tc.in)
		require.ErrorIs(t, err, tc.want, tc.name)
	}

	// bob cannot attach a suggestion to alice's friend
	_, err = fx.svc.AddSuggestion(ctx, fx.bob, model.NewSuggestion{Title: "X", MediaTypeID: movie, FriendID: sam.ID})
	require.ErrorIs(t, err, errs.ErrUnresolvedReference)

	s, err := fx.svc.AddSuggestion(ctx, fx.alice, model.NewSuggestion{Title: " Heat ", MediaTypeID: movie, FriendID: sam.ID})
	require.NoError(t, err)
	require.Equal(t, "Heat", s.Title)
	require.Equal(t, model.PriorityMedium, s.Priority)
	require.Nil(t, s.Rating)
	require.Equal(t, "Sam", s.FriendName)
	require.Equal(t, "Movie", s.MediaTypeName)

	_, err = fx.svc.AddSuggestion(ctx, fx.alice, model.NewSuggestion{Title: "Heat", MediaTypeID: movie, FriendID: sam.ID})
	require.ErrorIs(t, err, errs.ErrDuplicateSuggestion)

	require.ErrorIs(t, fx.svc.DeleteFriend(ctx, fx.alice, sam.ID), errs.ErrInUse)
}

func TestLibrary_UpdateAndRate(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()
	sam, _ := fx.svc.AddFriend(ctx, fx.alice, "Sam")
	s, err := fx.svc.AddSuggestion(ctx, fx.alice, model.NewSuggestion{
		Title: "Heat", Creator: "Mann", MediaTypeID: fx.movie(t), FriendID: sam.ID, Priority: model.PriorityHigh,
	})
	require.NoError(t, err)

	_, err = fx.svc.UpdateSuggestion(ctx, fx.alice, s.ID, model.SuggestionPatch{Title: ptr("  ")})
	require.ErrorIs(t, err, errs.ErrEmptyTitle)
	_, err = fx.svc.UpdateSuggestion(ctx, fx.alice, s.ID, model.SuggestionPatch{Priority: ptr(model.Priority("nope"))})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.ErrorIs(t, fx.svc.RateSuggestion(ctx, fx.alice, s.ID, 42), errs.ErrInvalidArgument)
	require.ErrorIs(t, fx.svc.RateSuggestion(ctx, fx.bob, s.ID, 5), errs.ErrNotFound)

	require.NoError(t, fx.svc.RateSuggestion(ctx, fx.alice, s.ID, 8))
	got, err := fx.svc.UpdateSuggestion(ctx, fx.alice, s.ID, model.SuggestionPatch{Notes: ptr("rewatch")})
	require.NoError(t, err)
	require.Equal(t, "rewatch", got.Notes)
	require.Equal(t, "Mann", got.Creator, "fields not supplied stay untouched")
	require.Equal(t, model.PriorityHigh, got.Priority)
	require.NotNil(t, got.Rating)
	require.Equal(t, 8, *got.Rating)

	got, err = fx.svc.UpdateSuggestion(ctx, fx.alice, s.ID, model.SuggestionPatch{ClearRating: true})
	require.NoError(t, err)
	require.Nil(t, got.Rating)

	require.ErrorIs(t, fx.svc.DeleteSuggestion(ctx, fx.bob, s.ID), errs.ErrNotFound)
	require.NoError(t, fx.svc.DeleteSuggestion(ctx, fx.alice, s.ID))
	_, err = fx.svc.GetSuggestion(ctx, fx.alice, s.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

const importHeader = "title,media_type_id,creator,link,notes,suggested_by,date,priority,rating\n"

func TestLibrary_ImportExportRoundTrip(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()
	fx.svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	sam, _ := fx.svc.AddFriend(ctx, fx.alice, "Sam")
	movie := fx.movie(t)
	body := importHeader +
		fmt.Sprintf("Heat,%d,Mann,,,%d,2024-01-02,High,9\n", movie, sam.ID) +
		fmt.Sprintf("Ronin,%d,,,,%d,,,\n", movie, sam.ID)

	n, err := fx.svc.Import(ctx, fx.alice, strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = fx.svc.Import(ctx, fx.alice, strings.NewReader(body))
	require.NoError(t, err)
	require.Zero(t, n, "re-import skips existing rows")

	list, err := fx.svc.ListSuggestions(ctx, fx.alice, model.SuggestionFilter{Keyword: "ron"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, model.PriorityMedium, list[0].Priority)
	require.True(t, list[0].CreatedAt.Equal(fx.svc.now()))

	var buf bytes.Buffer
	require.NoError(t, fx.svc.Export(ctx, fx.alice, &buf, model.SuggestionFilter{}))
	require.Contains(t, buf.String(), "Heat")

	// bob owns no friend with that id; the exported file inserts nothing for him
	_, err = fx.svc.Import(ctx, fx.bob, bytes.NewReader(buf.Bytes()))
	require.ErrorIs(t, err, errs.ErrUnresolvedReference)
	list, err = fx.svc.ListSuggestions(ctx, fx.bob, model.SuggestionFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLibrary_Import_SchemaMismatchInsertsNothing(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()

	_, err := fx.svc.Import(ctx, fx.alice, strings.NewReader("title,creator\nHeat,Mann\n"))
	require.ErrorIs(t, err, errs.ErrSchemaMismatch)
	var sm *errs.SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	require.Contains(t, sm.Missing, "media_type_id")

	list, err := fx.svc.ListSuggestions(ctx, fx.alice, model.SuggestionFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLibrary_Leaderboard(t *testing.T) {
	t.Parallel()
	fx := newLibrary(t)
	ctx := context.Background()
	movie := fx.movie(t)

	lb, err := fx.svc.Leaderboard(ctx, fx.alice)
	require.NoError(t, err)
	require.Empty(t, lb.TopRated)
	require.Nil(t, lb.Neglected)

	sam, _ := fx.svc.AddFriend(ctx, fx.alice, "Sam")
	kim, _ := fx.svc.AddFriend(ctx, fx.alice, "Kim")
	add := func(title string, friend int64, rating *int) {
		_, err := fx.svc.AddSuggestion(ctx, fx.alice, model.NewSuggestion{Title: title, MediaTypeID: movie, FriendID: friend, Rating: rating})
		require.NoError(t, err)
	}
	add("A", sam.ID, ptr(9))
	add("B", sam.ID, nil)
	add("C", kim.ID, ptr(4))

	lb, err = fx.svc.Leaderboard(ctx, fx.alice)
	require.NoError(t, err)
	require.Len(t, lb.TopRated, 2)
	require.Equal(t, "Sam", lb.TopRated[0].FriendName)
	require.Equal(t, "Sam", lb.MostSuggestions[0].FriendName)
	require.InDelta(t, 2, lb.MostSuggestions[0].Value, 0.001)
	require.NotNil(t, lb.Neglected)
	require.Equal(t, "B", lb.Neglected.Title)

	other, err := fx.svc.Leaderboard(ctx, fx.bob)
	require.NoError(t, err)
	require.Empty(t, other.MostSuggestions)
}
