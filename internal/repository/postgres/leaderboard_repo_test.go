package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardRepo_TopRated_And_Most(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLeaderboardRepo(db)
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(q(`ROUND(AVG(m.rating)::numeric, 2)::float8`)).
		WithArgs(owner, 3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "value"}).
			AddRow(int64(1), "Alice", 8.5).
			AddRow(int64(2), "Bob", 6.0))
	top, err := r.TopRated(ctx, owner, 3)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.InDelta(t, 8.5, top[0].Value, 1e-9)

	mock.ExpectQuery(q(`COUNT(m.id)::float8`)).
		WithArgs(owner, 3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "value"}).AddRow(int64(2), "Bob", 4.0))
	most, err := r.MostSuggestions(ctx, owner, 3)
	require.NoError(t, err)
	require.Equal(t, "Bob", most[0].FriendName)
}

func TestLeaderboardRepo_Neglected(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLeaderboardRepo(db)
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())
	at := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(`WHERE m.user_id = $1 AND m.rating IS NULL`)).
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "title", "type_name", "created_at"}).
			AddRow(int64(2), "Bob", "Old Song", "Song", at))
	n, err := r.Neglected(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, "Bob", n.FriendName)
	require.Equal(t, at, n.SuggestedAt)

	mock.ExpectQuery(q(`WHERE m.user_id = $1 AND m.rating IS NULL`)).
		WithArgs(owner).
		WillReturnError(pgx.ErrNoRows)
	n, err = r.Neglected(ctx, owner)
	require.NoError(t, err)
	require.Nil(t, n)
}
