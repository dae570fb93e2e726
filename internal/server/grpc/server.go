// Package grpcserver exposes the NextBest gRPC API handlers.
package grpcserver

import (
	"bytes"
	"context"
	"net"

	v1 "github.com/and161185/nextbest/api/nextbest/v1"
	"github.com/and161185/nextbest/internal/convert"
	"github.com/and161185/nextbest/internal/metrics"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/service"
	"github.com/and161185/nextbest/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Server wires services into gRPC handlers.
type Server struct {
	v1.UnimplementedNextBestServer
	auth    service.AuthService
	lib     service.LibraryService
	signKey []byte
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New constructs a gRPC server with injected services. log and m may be nil.
func New(auth service.AuthService, lib service.LibraryService, signKey []byte, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, lib: lib, signKey: signKey, log: log, metrics: m}
}

// remoteIP returns the caller's host without the port, so reconnecting keeps the
// same login limiter key.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// identity returns the caller put in ctx by AuthUnary, or resolves the bearer token itself.
func (s *Server) identity(ctx context.Context) (model.Identity, error) {
	if id, ok := session.IdentityFromCtx(ctx); ok {
		return id, nil
	}
	return resolveIdentity(ctx, s.auth, s.signKey)
}

func resolveIdentity(ctx context.Context, auth service.AuthService, signKey []byte) (model.Identity, error) {
	id, err := accountIDFromToken(ctx, signKey)
	if err != nil {
		return model.Identity{}, status.Error(codes.Unauthenticated, "no auth")
	}
	a, err := auth.Lookup(ctx, id)
	if err != nil {
		// a deleted account keeps a signed token until it expires
		return model.Identity{}, status.Error(codes.Unauthenticated, "account not found")
	}
	return a.Identity(), nil
}

func (s *Server) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}

// --- Accounts ---

// BootstrapStatus tells clients whether the first (admin) account still has to be created.
func (s *Server) BootstrapStatus(ctx context.Context, _ *v1.Empty) (*v1.BootstrapStatusResponse, error) {
	need, err := s.auth.NeedsBootstrap(ctx)
	if err != nil {
		return nil, toStatus(s.log, "bootstrap status", err)
	}
	return &v1.BootstrapStatusResponse{NeedsBootstrap: need}, nil
}

// Register creates a new account. The first account ever becomes admin.
func (s *Server) Register(ctx context.Context, req *v1.RegisterRequest) (*v1.RegisterResponse, error) {
	a, err := s.auth.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, toStatus(s.log, "register", err)
	}
	return &v1.RegisterResponse{Account: convert.ToWireAccount(a)}, nil
}

// Login authenticates a user and returns an access token.
func (s *Server) Login(ctx context.Context, req *v1.LoginRequest) (*v1.LoginResponse, error) {
	tok, a, err := s.auth.LoginWithIP(ctx, req.Username, req.Password, remoteIP(ctx))
	if err != nil {
		switch st := toStatus(s.log, "login", err); status.Code(st) {
		case codes.Unauthenticated:
			s.countLogin("denied")
			return nil, status.Error(codes.Unauthenticated, "bad credentials")
		case codes.ResourceExhausted:
			s.countLogin("limited")
			return nil, status.Error(codes.ResourceExhausted, "rate limited")
		default:
			s.countLogin("error")
			return nil, st
		}
	}
	s.countLogin("ok")
	return &v1.LoginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt, Account: convert.ToWireAccount(a)}, nil
}

// ChangePassword rotates the caller's own password.
func (s *Server) ChangePassword(ctx context.Context, req *v1.ChangePasswordRequest) (*v1.Empty, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.ChangePassword(ctx, id.Username, req.NewPassword); err != nil {
		return nil, toStatus(s.log, "change password", err)
	}
	return &v1.Empty{}, nil
}

// ListAccounts returns all accounts to an admin.
func (s *Server) ListAccounts(ctx context.Context, _ *v1.Empty) (*v1.ListAccountsResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.auth.ListAccounts(ctx, id)
	if err != nil {
		return nil, toStatus(s.log, "list accounts", err)
	}
	return &v1.ListAccountsResponse{Accounts: convert.ToWireAccounts(list)}, nil
}

// DeleteAccount removes another account; admins cannot delete themselves.
func (s *Server) DeleteAccount(ctx context.Context, req *v1.DeleteAccountRequest) (*v1.Empty, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	target, err := convert.FromWireAccountID(req.ID)
	if err != nil {
		return nil, toStatus(s.log, "delete account", err)
	}
	if err := s.auth.DeleteAccount(ctx, id, target); err != nil {
		return nil, toStatus(s.log, "delete account", err)
	}
	return &v1.Empty{}, nil
}

// --- Friends ---

func (s *Server) ListFriends(ctx context.Context, _ *v1.Empty) (*v1.ListFriendsResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.lib.ListFriends(ctx, id.AccountID)
	if err != nil {
		return nil, toStatus(s.log, "list friends", err)
	}
	return &v1.ListFriendsResponse{Friends: convert.ToWireFriends(list)}, nil
}

func (s *Server) AddFriend(ctx context.Context, req *v1.AddFriendRequest) (*v1.Friend, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.lib.AddFriend(ctx, id.AccountID, req.Name)
	if err != nil {
		return nil, toStatus(s.log, "add friend", err)
	}
	out := convert.ToWireFriend(f)
	return &out, nil
}

func (s *Server) RenameFriend(ctx context.Context, req *v1.RenameFriendRequest) (*v1.Empty, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.lib.RenameFriend(ctx, id.AccountID, req.ID, req.Name); err != nil {
		return nil, toStatus(s.log, "rename friend", err)
	}
	return &v1.Empty{}, nil
}

func (s *Server) DeleteFriend(ctx context.Context, req *v1.DeleteFriendRequest) (*v1.Empty, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.lib.DeleteFriend(ctx, id.AccountID, req.ID); err != nil {
		return nil, toStatus(s.log, "delete friend", err)
	}
	return &v1.Empty{}, nil
}

// --- Suggestions ---

func (s *Server) ListMediaTypes(ctx context.Context, _ *v1.Empty) (*v1.ListMediaTypesResponse, error) {
	if _, err := s.identity(ctx); err != nil {
		return nil, err
	}
	list, err := s.lib.ListMediaTypes(ctx)
	if err != nil {
		return nil, toStatus(s.log, "list media types", err)
	}
	return &v1.ListMediaTypesResponse{MediaTypes: convert.ToWireMediaTypes(list)}, nil
}

func (s *Server) ListSuggestions(ctx context.Context, req *v1.SuggestionFilter) (*v1.ListSuggestionsResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.lib.ListSuggestions(ctx, id.AccountID, convert.FromWireFilter(req))
	if err != nil {
		return nil, toStatus(s.log, "list suggestions", err)
	}
	return &v1.ListSuggestionsResponse{Suggestions: convert.ToWireSuggestions(list)}, nil
}

func (s *Server) AddSuggestion(ctx context.Context, req *v1.AddSuggestionRequest) (*v1.Suggestion, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	got, err := s.lib.AddSuggestion(ctx, id.AccountID, convert.FromWireSuggestion(req))
	if err != nil {
		return nil, toStatus(s.log, "add suggestion", err)
	}
	out := convert.ToWireSuggestion(*got)
	return &out, nil
}

func (s *Server) UpdateSuggestion(ctx context.Context, req *v1.UpdateSuggestionRequest) (*v1.Suggestion, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	got, err := s.lib.UpdateSuggestion(ctx, id.AccountID, req.ID, convert.FromWirePatch(req))
	if err != nil {
		return nil, toStatus(s.log, "update suggestion", err)
	}
	out := convert.ToWireSuggestion(*got)
	return &out, nil
}

func (s *Server) DeleteSuggestion(ctx context.Context, req *v1.DeleteSuggestionRequest) (*v1.Empty, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.lib.DeleteSuggestion(ctx, id.AccountID, req.ID); err != nil {
		return nil, toStatus(s.log, "delete suggestion", err)
	}
	return &v1.Empty{}, nil
}

// ImportSuggestions bulk-inserts a CSV file; nothing is inserted unless every row is valid.
func (s *Server) ImportSuggestions(ctx context.Context, req *v1.ImportSuggestionsRequest) (*v1.ImportSuggestionsResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.lib.Import(ctx, id.AccountID, bytes.NewReader(req.CSV))
	if err != nil {
		return nil, toStatus(s.log, "import", err)
	}
	if s.metrics != nil {
		s.metrics.Imported.Add(float64(n))
	}
	return &v1.ImportSuggestionsResponse{Inserted: n}, nil
}

func (s *Server) ExportSuggestions(ctx context.Context, req *v1.SuggestionFilter) (*v1.ExportSuggestionsResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.lib.Export(ctx, id.AccountID, &buf, convert.FromWireFilter(req)); err != nil {
		return nil, toStatus(s.log, "export", err)
	}
	return &v1.ExportSuggestionsResponse{CSV: buf.Bytes()}, nil
}

func (s *Server) Leaderboard(ctx context.Context, _ *v1.Empty) (*v1.LeaderboardResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	lb, err := s.lib.Leaderboard(ctx, id.AccountID)
	if err != nil {
		return nil, toStatus(s.log, "leaderboard", err)
	}
	return convert.ToWireLeaderboard(lb), nil
}
