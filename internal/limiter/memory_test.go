package limiter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_BlocksAfterMaxFailsAndUnblocks(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Settings{Window: time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute})
	m.now = func() time.Time { return clock }
	ctx := context.Background()
	origin := HashOrigin("local")

	for i := 0; i < 2; i++ {
		blocked, _, err := m.Failure(ctx, "u", origin)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, d, err := m.Failure(ctx, "u", origin)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, d)

	ok, retry, err := m.Allow(ctx, "u", origin)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, retry)

	// other origins are unaffected
	ok, _, _ = m.Allow(ctx, "u", HashOrigin("10.0.0.1:1"))
	require.True(t, ok)

	clock = clock.Add(11 * time.Minute)
	ok, _, err = m.Allow(ctx, "u", origin)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory_WindowResetsAndSuccessClears(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Settings{Window: time.Minute, MaxFails: 2, BlockFor: time.Hour})
	m.now = func() time.Time { return clock }
	ctx := context.Background()
	origin := HashOrigin("local")

	_, _, _ = m.Failure(ctx, "u", origin)
	clock = clock.Add(2 * time.Minute)
	blocked, _, _ := m.Failure(ctx, "u", origin)
	require.False(t, blocked, "failure outside the window starts a new count")

	require.NoError(t, m.Success(ctx, "u", origin))
	blocked, _, _ = m.Failure(ctx, "u", origin)
	require.False(t, blocked, "success clears the count")
}

func TestMemory_ForgetsExpiredEntries(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Settings{Window: time.Minute, MaxFails: 2, BlockFor: 10 * time.Minute})
	m.now = func() time.Time { return clock }
	ctx := context.Background()
	origin := HashOrigin("10.0.0.5")

	for i := 0; i < 50; i++ {
		_, _, err := m.Failure(ctx, fmt.Sprintf("user%d", i), origin)
		require.NoError(t, err)
	}
	_, _, _ = m.Failure(ctx, "locked", origin)
	blocked, _, _ := m.Failure(ctx, "locked", origin)
	require.True(t, blocked)
	require.Len(t, m.byID, 51)

	clock = clock.Add(2 * time.Minute)
	ok, _, err := m.Allow(ctx, "someone", origin)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, m.byID, 1, "only the active block is kept")

	ok, _, _ = m.Allow(ctx, "locked", origin)
	require.False(t, ok)

	clock = clock.Add(10 * time.Minute)
	_, _, err = m.Failure(ctx, "other", origin)
	require.NoError(t, err)
	require.Len(t, m.byID, 1)
	_, stillThere := m.byID[key("locked", origin)]
	require.False(t, stillThere)
}
