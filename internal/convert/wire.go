// Package convert maps domain models to wire messages and back.
package convert

import (
	"fmt"
	"strings"

	v1 "github.com/and161185/nextbest/api/nextbest/v1"
	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- accounts ---

// ToWireAccount drops credentials; hashes and salts never leave the server.
func ToWireAccount(a model.Account) v1.Account {
	return v1.Account{ID: a.ID.String(), Username: a.Username, Role: string(a.Role), CreatedAt: a.CreatedAt}
}

func ToWireAccounts(list []model.Account) []v1.Account {
	out := make([]v1.Account, 0, len(list))
	for _, a := range list {
		out = append(out, ToWireAccount(a))
	}
	return out
}

// FromWireAccountID parses an account id.
func FromWireAccountID(s string) (u.UUID, error) {
	id, err := u.FromString(strings.TrimSpace(s))
	if err != nil {
		return u.Nil, fmt.Errorf("account id %q: %w", s, errs.ErrInvalidArgument)
	}
	return id, nil
}

// --- friends & media types ---

func ToWireFriend(f model.Friend) v1.Friend {
	return v1.Friend{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedAt}
}

func ToWireFriends(list []model.Friend) []v1.Friend {
	out := make([]v1.Friend, 0, len(list))
	for _, f := range list {
		out = append(out, ToWireFriend(f))
	}
	return out
}

func ToWireMediaTypes(list []model.MediaType) []v1.MediaType {
	out := make([]v1.MediaType, 0, len(list))
	for _, m := range list {
		out = append(out, v1.MediaType{ID: m.ID, Name: m.Name})
	}
	return out
}

// --- suggestions ---

func ToWireSuggestion(s model.Suggestion) v1.Suggestion {
	return v1.Suggestion{
		ID:          s.ID,
		Title:       s.Title,
		MediaTypeID: s.MediaTypeID,
		MediaType:   s.MediaTypeName,
		Creator:     s.Creator,
		Link:        s.Link,
		Notes:       s.Notes,
		FriendID:    s.FriendID,
		Friend:      s.FriendName,
		Priority:    string(s.Priority),
		Rating:      s.Rating,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func ToWireSuggestions(list []model.Suggestion) []v1.Suggestion {
	out := make([]v1.Suggestion, 0, len(list))
	for _, s := range list {
		out = append(out, ToWireSuggestion(s))
	}
	return out
}

// FromWireSuggestion maps an add request. Priority text is matched case-insensitively.
func FromWireSuggestion(in *v1.AddSuggestionRequest) model.NewSuggestion {
	return model.NewSuggestion{
		Title:       in.Title,
		MediaTypeID: in.MediaTypeID,
		Creator:     in.Creator,
		Link:        in.Link,
		Notes:       in.Notes,
		FriendID:    in.FriendID,
		Priority:    normPriority(in.Priority),
		Rating:      in.Rating,
	}
}

// FromWirePatch maps an update request; absent fields stay nil.
func FromWirePatch(in *v1.UpdateSuggestionRequest) model.SuggestionPatch {
	p := model.SuggestionPatch{
		Title:       in.Title,
		MediaTypeID: in.MediaTypeID,
		Creator:     in.Creator,
		Link:        in.Link,
		Notes:       in.Notes,
		FriendID:    in.FriendID,
		Rating:      in.Rating,
		ClearRating: in.ClearRating,
	}
	if in.Priority != nil {
		pr := normPriority(*in.Priority)
		p.Priority = &pr
	}
	return p
}

func normPriority(s string) model.Priority {
	s = strings.TrimSpace(s)
	for _, p := range []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow} {
		if strings.EqualFold(s, string(p)) {
			return p
		}
	}
	return model.Priority(s)
}

func FromWireFilter(in *v1.SuggestionFilter) model.SuggestionFilter {
	if in == nil {
		return model.SuggestionFilter{}
	}
	return model.SuggestionFilter{
		FriendID:    in.FriendID,
		MediaTypeID: in.MediaTypeID,
		Keyword:     strings.TrimSpace(in.Keyword),
		UnratedOnly: in.UnratedOnly,
	}
}

// --- leaderboard ---

func toWireMetrics(list []model.FriendMetric) []v1.FriendMetric {
	out := make([]v1.FriendMetric, 0, len(list))
	for _, m := range list {
		out = append(out, v1.FriendMetric{FriendID: m.FriendID, Friend: m.FriendName, Value: m.Value})
	}
	return out
}

func ToWireLeaderboard(lb model.Leaderboard) *v1.LeaderboardResponse {
	out := &v1.LeaderboardResponse{
		TopRated:        toWireMetrics(lb.TopRated),
		MostSuggestions: toWireMetrics(lb.MostSuggestions),
	}
	if n := lb.Neglected; n != nil {
		out.Neglected = &v1.NeglectedFriend{
			FriendID:    n.FriendID,
			Friend:      n.FriendName,
			Title:       n.Title,
			MediaType:   n.MediaTypeName,
			SuggestedAt: n.SuggestedAt,
		}
	}
	return out
}
