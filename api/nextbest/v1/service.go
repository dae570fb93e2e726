package nextbestv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nextbest.v1.NextBest"

// Method names.
const (
	MethodBootstrapStatus   = "BootstrapStatus"
	MethodRegister          = "Register"
	MethodLogin             = "Login"
	MethodChangePassword    = "ChangePassword"
	MethodListAccounts      = "ListAccounts"
	MethodDeleteAccount     = "DeleteAccount"
	MethodListFriends       = "ListFriends"
	MethodAddFriend         = "AddFriend"
	MethodRenameFriend      = "RenameFriend"
	MethodDeleteFriend      = "DeleteFriend"
	MethodListMediaTypes    = "ListMediaTypes"
	MethodListSuggestions   = "ListSuggestions"
	MethodAddSuggestion     = "AddSuggestion"
	MethodUpdateSuggestion  = "UpdateSuggestion"
	MethodDeleteSuggestion  = "DeleteSuggestion"
	MethodImportSuggestions = "ImportSuggestions"
	MethodExportSuggestions = "ExportSuggestions"
	MethodLeaderboard       = "Leaderboard"
)

// FullMethod returns "/nextbest.v1.NextBest/<name>".
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// NextBestServer is the server API.
type NextBestServer interface {
	BootstrapStatus(context.Context, *Empty) (*BootstrapStatusResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error)
	ListAccounts(context.Context, *Empty) (*ListAccountsResponse, error)
	DeleteAccount(context.Context, *DeleteAccountRequest) (*Empty, error)
	ListFriends(context.Context, *Empty) (*ListFriendsResponse, error)
	AddFriend(context.Context, *AddFriendRequest) (*Friend, error)
	RenameFriend(context.Context, *RenameFriendRequest) (*Empty, error)
	DeleteFriend(context.Context, *DeleteFriendRequest) (*Empty, error)
	ListMediaTypes(context.Context, *Empty) (*ListMediaTypesResponse, error)
	ListSuggestions(context.Context, *SuggestionFilter) (*ListSuggestionsResponse, error)
	AddSuggestion(context.Context, *AddSuggestionRequest) (*Suggestion, error)
	UpdateSuggestion(context.Context, *UpdateSuggestionRequest) (*Suggestion, error)
	DeleteSuggestion(context.Context, *DeleteSuggestionRequest) (*Empty, error)
	ImportSuggestions(context.Context, *ImportSuggestionsRequest) (*ImportSuggestionsResponse, error)
	ExportSuggestions(context.Context, *SuggestionFilter) (*ExportSuggestionsResponse, error)
	Leaderboard(context.Context, *Empty) (*LeaderboardResponse, error)
}

// UnimplementedNextBestServer can be embedded to stay forward compatible.
type UnimplementedNextBestServer struct{}

func unimplemented(m string) error { return status.Errorf(codes.Unimplemented, "method %s not implemented", m) }

func (UnimplementedNextBestServer) BootstrapStatus(context.Context, *Empty) (*BootstrapStatusResponse, error) {
	return nil, unimplemented(MethodBootstrapStatus)
}
func (UnimplementedNextBestServer) Register(context.Context, *RegisterRequest) (*RegisterResponse, error) {
	return nil, unimplemented(MethodRegister)
}
func (UnimplementedNextBestServer) Login(context.Context, *LoginRequest) (*LoginResponse, error) {
	return nil, unimplemented(MethodLogin)
}
func (UnimplementedNextBestServer) ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error) {
	return nil, unimplemented(MethodChangePassword)
}
func (UnimplementedNextBestServer) ListAccounts(context.Context, *Empty) (*ListAccountsResponse, error) {
	return nil, unimplemented(MethodListAccounts)
}
func (UnimplementedNextBestServer) DeleteAccount(context.Context, *DeleteAccountRequest) (*Empty, error) {
	return nil, unimplemented(MethodDeleteAccount)
}
func (UnimplementedNextBestServer) ListFriends(context.Context, *Empty) (*ListFriendsResponse, error) {
	return nil, unimplemented(MethodListFriends)
}
func (UnimplementedNextBestServer) AddFriend(context.Context, *AddFriendRequest) (*Friend, error) {
	return nil, unimplemented(MethodAddFriend)
}
func (UnimplementedNextBestServer) RenameFriend(context.Context, *RenameFriendRequest) (*Empty, error) {
	return nil, unimplemented(MethodRenameFriend)
}
func (UnimplementedNextBestServer) DeleteFriend(context.Context, *DeleteFriendRequest) (*Empty, error) {
	return nil, unimplemented(MethodDeleteFriend)
}
func (UnimplementedNextBestServer) ListMediaTypes(context.Context, *Empty) (*ListMediaTypesResponse, error) {
	return nil, unimplemented(MethodListMediaTypes)
}
func (UnimplementedNextBestServer) ListSuggestions(context.Context, *SuggestionFilter) (*ListSuggestionsResponse, error) {
	return nil, unimplemented(MethodListSuggestions)
}
func (UnimplementedNextBestServer) AddSuggestion(context.Context, *AddSuggestionRequest) (*Suggestion, error) {
	return nil, unimplemented(MethodAddSuggestion)
}
func (UnimplementedNextBestServer) UpdateSuggestion(context.Context, *UpdateSuggestionRequest) (*Suggestion, error) {
	return nil, unimplemented(MethodUpdateSuggestion)
}
func (UnimplementedNextBestServer) DeleteSuggestion(context.Context, *DeleteSuggestionRequest) (*Empty, error) {
	return nil, unimplemented(MethodDeleteSuggestion)
}
func (UnimplementedNextBestServer) ImportSuggestions(context.Context, *ImportSuggestionsRequest) (*ImportSuggestionsResponse, error) {
	return nil, unimplemented(MethodImportSuggestions)
}
func (UnimplementedNextBestServer) ExportSuggestions(context.Context, *SuggestionFilter) (*ExportSuggestionsResponse, error) {
	return nil, unimplemented(MethodExportSuggestions)
}
func (UnimplementedNextBestServer) Leaderboard(context.Context, *Empty) (*LeaderboardResponse, error) {
	return nil, unimplemented(MethodLeaderboard)
}

// unary builds the method descriptor for one request/response pair.
func unary[Req, Resp any](name string, call func(NextBestServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(NextBestServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes NextBest for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NextBestServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodBootstrapStatus, NextBestServer.BootstrapStatus),
		unary(MethodRegister, NextBestServer.Register),
		unary(MethodLogin, NextBestServer.Login),
		unary(MethodChangePassword, NextBestServer.ChangePassword),
		unary(MethodListAccounts, NextBestServer.ListAccounts),
		unary(MethodDeleteAccount, NextBestServer.DeleteAccount),
		unary(MethodListFriends, NextBestServer.ListFriends),
		unary(MethodAddFriend, NextBestServer.AddFriend),
		unary(MethodRenameFriend, NextBestServer.RenameFriend),
		unary(MethodDeleteFriend, NextBestServer.DeleteFriend),
		unary(MethodListMediaTypes, NextBestServer.ListMediaTypes),
		unary(MethodListSuggestions, NextBestServer.ListSuggestions),
		unary(MethodAddSuggestion, NextBestServer.AddSuggestion),
		unary(MethodUpdateSuggestion, NextBestServer.UpdateSuggestion),
		unary(MethodDeleteSuggestion, NextBestServer.DeleteSuggestion),
		unary(MethodImportSuggestions, NextBestServer.ImportSuggestions),
		unary(MethodExportSuggestions, NextBestServer.ExportSuggestions),
		unary(MethodLeaderboard, NextBestServer.Leaderboard),
	},
	Metadata: "nextbest/v1/nextbest.json",
}

// RegisterNextBestServer registers srv with s.
func RegisterNextBestServer(s grpc.ServiceRegistrar, srv NextBestServer) {
	s.RegisterService(&ServiceDesc, srv)
}
