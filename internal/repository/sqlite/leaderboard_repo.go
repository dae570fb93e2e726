package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
)

// LeaderboardRepo implements LeaderboardRepository on SQLite.
type LeaderboardRepo struct{ db *sql.DB }

// NewLeaderboardRepo constructs a leaderboard repository.
func NewLeaderboardRepo(db *sql.DB) *LeaderboardRepo { return &LeaderboardRepo{db: db} }

// TopRated ranks friends by the average rating of their rated suggestions.
func (r *LeaderboardRepo) TopRated(ctx context.Context, owner uuid.UUID, limit int) ([]model.FriendMetric, error) {
	const q = `
SELECT f.id, f.name, ROUND(AVG(m.rating), 2) AS value
FROM friends f
JOIN media_items m ON m.suggested_by = f.id AND m.user_id = f.user_id
WHERE f.user_id = ? AND m.rating IS NOT NULL
GROUP BY f.id, f.name
ORDER BY value DESC, f.id
LIMIT ?`
	return r.metrics(ctx, q, owner, limit)
}

// MostSuggestions ranks friends by how many suggestions they made.
func (r *LeaderboardRepo) MostSuggestions(ctx context.Context, owner uuid.UUID, limit int) ([]model.FriendMetric, error) {
	const q = `
SELECT f.id, f.name, CAST(COUNT(m.id) AS REAL) AS value
FROM friends f
JOIN media_items m ON m.suggested_by = f.id AND m.user_id = f.user_id
WHERE f.user_id = ?
GROUP BY f.id, f.name
ORDER BY value DESC, f.id
LIMIT ?`
	return r.metrics(ctx, q, owner, limit)
}

func (r *LeaderboardRepo) metrics(ctx context.Context, q string, owner uuid.UUID, limit int) ([]model.FriendMetric, error) {
	rows, err := r.db.QueryContext(ctx, q, owner.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FriendMetric
	for rows.Next() {
		var m model.FriendMetric
		if err := rows.Scan(&m.FriendID, &m.FriendName, &m.Value); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Neglected finds the friend whose most recent unrated suggestion is the oldest.
func (r *LeaderboardRepo) Neglected(ctx context.Context, owner uuid.UUID) (*model.NeglectedFriend, error) {
	const q = `
SELECT f.id, f.name, m.title, t.type_name, m.created_at
FROM media_items m
JOIN friends f ON f.id = m.suggested_by
JOIN media_types t ON t.id = m.media_type_id
WHERE m.user_id = ?1 AND m.rating IS NULL
  AND m.created_at = (
    SELECT MAX(m2.created_at) FROM media_items m2
    WHERE m2.user_id = ?1 AND m2.suggested_by = m.suggested_by AND m2.rating IS NULL)
ORDER BY m.created_at, m.id DESC
LIMIT 1`
	var (
		n  model.NeglectedFriend
		at string
	)
	err := r.db.QueryRowContext(ctx, q, owner.String()).Scan(&n.FriendID, &n.FriendName, &n.Title, &n.MediaTypeName, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if n.SuggestedAt, err = parseTime(at); err != nil {
		return nil, err
	}
	return &n, nil
}
