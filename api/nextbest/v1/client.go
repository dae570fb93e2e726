package nextbestv1

import (
	"context"

	"google.golang.org/grpc"
)

// Client is the typed client of NextBest. Every call uses the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BootstrapStatus(ctx context.Context, opts ...grpc.CallOption) (*BootstrapStatusResponse, error) {
	return invoke[BootstrapStatusResponse](ctx, c.cc, MethodBootstrapStatus, &Empty{}, opts)
}

func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *Client) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodChangePassword, in, opts)
	return err
}

func (c *Client) ListAccounts(ctx context.Context, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	return invoke[ListAccountsResponse](ctx, c.cc, MethodListAccounts, &Empty{}, opts)
}

func (c *Client) DeleteAccount(ctx context.Context, in *DeleteAccountRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodDeleteAccount, in, opts)
	return err
}

func (c *Client) ListFriends(ctx context.Context, opts ...grpc.CallOption) (*ListFriendsResponse, error) {
	return invoke[ListFriendsResponse](ctx, c.cc, MethodListFriends, &Empty{}, opts)
}

func (c *Client) AddFriend(ctx context.Context, in *AddFriendRequest, opts ...grpc.CallOption) (*Friend, error) {
	return invoke[Friend](ctx, c.cc, MethodAddFriend, in, opts)
}

func (c *Client) RenameFriend(ctx context.Context, in *RenameFriendRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodRenameFriend, in, opts)
	return err
}

func (c *Client) DeleteFriend(ctx context.Context, in *DeleteFriendRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodDeleteFriend, in, opts)
	return err
}

func (c *Client) ListMediaTypes(ctx context.Context, opts ...grpc.CallOption) (*ListMediaTypesResponse, error) {
	return invoke[ListMediaTypesResponse](ctx, c.cc, MethodListMediaTypes, &Empty{}, opts)
}

func (c *Client) ListSuggestions(ctx context.Context, in *SuggestionFilter, opts ...grpc.CallOption) (*ListSuggestionsResponse, error) {
	return invoke[ListSuggestionsResponse](ctx, c.cc, MethodListSuggestions, in, opts)
}

func (c *Client) AddSuggestion(ctx context.Context, in *AddSuggestionRequest, opts ...grpc.CallOption) (*Suggestion, error) {
	return invoke[Suggestion](ctx, c.cc, MethodAddSuggestion, in, opts)
}

func (c *Client) UpdateSuggestion(ctx context.Context, in *UpdateSuggestionRequest, opts ...grpc.CallOption) (*Suggestion, error) {
	return invoke[Suggestion](ctx, c.cc, MethodUpdateSuggestion, in, opts)
}

func (c *Client) DeleteSuggestion(ctx context.Context, in *DeleteSuggestionRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodDeleteSuggestion, in, opts)
	return err
}

func (c *Client) ImportSuggestions(ctx context.Context, in *ImportSuggestionsRequest, opts ...grpc.CallOption) (*ImportSuggestionsResponse, error) {
	return invoke[ImportSuggestionsResponse](ctx, c.cc, MethodImportSuggestions, in, opts)
}

func (c *Client) ExportSuggestions(ctx context.Context, in *SuggestionFilter, opts ...grpc.CallOption) (*ExportSuggestionsResponse, error) {
	return invoke[ExportSuggestionsResponse](ctx, c.cc, MethodExportSuggestions, in, opts)
}

func (c *Client) Leaderboard(ctx context.Context, opts ...grpc.CallOption) (*LeaderboardResponse, error) {
	return invoke[LeaderboardResponse](ctx, c.cc, MethodLeaderboard, &Empty{}, opts)
}
