// Package nextbestv1 is the wire contract of the NextBest gRPC service. Messages are
// plain Go structs carried by the JSON codec registered in this package.
package nextbestv1

import "time"

type Empty struct{}

type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Friend struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type MediaType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Suggestion struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	MediaTypeID int64     `json:"media_type_id"`
	MediaType   string    `json:"media_type"`
	Creator     string    `json:"creator,omitempty"`
	Link        string    `json:"link,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	FriendID    int64     `json:"friend_id"`
	Friend      string    `json:"friend"`
	Priority    string    `json:"priority"`
	Rating      *int      `json:"rating,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type BootstrapStatusResponse struct {
	NeedsBootstrap bool `json:"needs_bootstrap"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Account Account `json:"account"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Account     Account   `json:"account"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type ListAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type DeleteAccountRequest struct {
	ID string `json:"id"`
}

type ListFriendsResponse struct {
	Friends []Friend `json:"friends"`
}

type AddFriendRequest struct {
	Name string `json:"name"`
}

type RenameFriendRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type DeleteFriendRequest struct {
	ID int64 `json:"id"`
}

type ListMediaTypesResponse struct {
	MediaTypes []MediaType `json:"media_types"`
}

type SuggestionFilter struct {
	FriendID    *int64 `json:"friend_id,omitempty"`
	MediaTypeID *int64 `json:"media_type_id,omitempty"`
	Keyword     string `json:"keyword,omitempty"`
	UnratedOnly bool   `json:"unrated_only,omitempty"`
}

type ListSuggestionsResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

type AddSuggestionRequest struct {
	Title       string `json:"title"`
	MediaTypeID int64  `json:"media_type_id"`
	Creator     string `json:"creator,omitempty"`
	Link        string `json:"link,omitempty"`
	Notes       string `json:"notes,omitempty"`
	FriendID    int64  `json:"friend_id"`
	Priority    string `json:"priority,omitempty"`
	Rating      *int   `json:"rating,omitempty"`
}

// UpdateSuggestionRequest changes only the fields that are present.
type UpdateSuggestionRequest struct {
	ID          int64   `json:"id"`
	Title       *string `json:"title,omitempty"`
	MediaTypeID *int64  `json:"media_type_id,omitempty"`
	Creator     *string `json:"creator,omitempty"`
	Link        *string `json:"link,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	FriendID    *int64  `json:"friend_id,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Rating      *int    `json:"rating,omitempty"`
	ClearRating bool    `json:"clear_rating,omitempty"`
}

type DeleteSuggestionRequest struct {
	ID int64 `json:"id"`
}

type ImportSuggestionsRequest struct {
	CSV []byte `json:"csv"`
}

type ImportSuggestionsResponse struct {
	Inserted int `json:"inserted"`
}

type ExportSuggestionsResponse struct {
	CSV []byte `json:"csv"`
}

type FriendMetric struct {
	FriendID int64   `json:"friend_id"`
	Friend   string  `json:"friend"`
	Value    float64 `json:"value"`
}

type NeglectedFriend struct {
	FriendID    int64     `json:"friend_id"`
	Friend      string    `json:"friend"`
	Title       string    `json:"title"`
	MediaType   string    `json:"media_type"`
	SuggestedAt time.Time `json:"suggested_at"`
}

type LeaderboardResponse struct {
	TopRated        []FriendMetric   `json:"top_rated"`
	MostSuggestions []FriendMetric   `json:"most_suggestions"`
	Neglected       *NeglectedFriend `json:"neglected,omitempty"`
}
