// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Role is the account privilege level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// BootstrapRole returns the role a new account gets given how many accounts already exist.
// Only the very first account becomes admin.
func BootstrapRole(existing int64) Role {
	if existing == 0 {
		return RoleAdmin
	}
	return RoleUser
}

// Account represents a registered user. The password is never stored in cleartext.
type Account struct {
	ID           uuid.UUID // PK, UUIDv7
	Username     string    // unique, case-sensitive
	PasswordHash string    // hex PBKDF2-HMAC-SHA256 digest
	Salt         string    // hex, per account
	Iterations   int       // PBKDF2 rounds used for PasswordHash
	Role         Role
	CreatedAt    time.Time
}

// Identity returns the session view of the account.
func (a Account) Identity() Identity {
	return Identity{AccountID: a.ID, Username: a.Username, Role: a.Role}
}

// Identity is the authenticated caller attached to a session or request.
type Identity struct {
	AccountID uuid.UUID
	Username  string
	Role      Role
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Friend is a person who suggests media to an account.
type Friend struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// MediaType is a global media category (Movie, Book, ...).
type MediaType struct {
	ID   int64
	Name string
}

// Priority of a suggestion.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 10
)

// ValidRating reports whether r is inside the accepted rating range.
func ValidRating(r int) bool { return r >= MinRating && r <= MaxRating }

// Suggestion is a media item suggested by a friend, as returned to the owner.
type Suggestion struct {
	ID            int64
	Title         string
	MediaTypeID   int64
	MediaTypeName string
	Creator       string
	Link          string
	Notes         string
	FriendID      int64
	FriendName    string
	Priority      Priority
	Rating        *int // nil when unrated
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSuggestion carries the caller supplied fields for an insert.
type NewSuggestion struct {
	Title       string
	MediaTypeID int64
	Creator     string
	Link        string
	Notes       string
	FriendID    int64
	Priority    Priority
	Rating      *int
}

// SuggestionPatch is a partial update: nil fields are left unchanged.
type SuggestionPatch struct {
	Title       *string
	MediaTypeID *int64
	Creator     *string
	Link        *string
	Notes       *string
	FriendID    *int64
	Priority    *Priority
	Rating      *int
	ClearRating bool // sets rating back to unrated; wins over Rating
}

// Empty reports whether the patch changes nothing.
func (p SuggestionPatch) Empty() bool {
	return p.Title == nil && p.MediaTypeID == nil && p.Creator == nil && p.Link == nil &&
		p.Notes == nil && p.FriendID == nil && p.Priority == nil && p.Rating == nil && !p.ClearRating
}

// SuggestionFilter narrows a listing. Zero value lists everything the owner has.
type SuggestionFilter struct {
	FriendID    *int64
	MediaTypeID *int64
	Keyword     string // case-insensitive substring of title or creator
	UnratedOnly bool
}

// ImportRecord is a validated row of a bulk import.
type ImportRecord struct {
	Line        int
	Title       string
	MediaTypeID int64
	Creator     string
	Link        string
	Notes       string
	FriendID    int64
	CreatedAt   time.Time
	Priority    Priority
	Rating      *int
}

// FriendMetric is a leaderboard entry.
type FriendMetric struct {
	FriendID   int64
	FriendName string
	Value      float64 // average rating or suggestion count
}

// NeglectedFriend is the friend whose latest unrated suggestion is the oldest.
type NeglectedFriend struct {
	FriendID      int64
	FriendName    string
	Title         string
	MediaTypeName string
	SuggestedAt   time.Time
}

// Leaderboard aggregates per-friend statistics for one account.
type Leaderboard struct {
	TopRated        []FriendMetric
	MostSuggestions []FriendMetric
	Neglected       *NeglectedFriend // nil when nothing is unrated
}
