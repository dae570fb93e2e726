package grpcserver

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	v1 "github.com/and161185/nextbest/api/nextbest/v1"
	"github.com/and161185/nextbest/internal/authz"
	"github.com/and161185/nextbest/internal/metrics"
	"github.com/and161185/nextbest/internal/service"
	"github.com/and161185/nextbest/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, never payloads: requests carry passwords
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		}
		if id, ok := session.IdentityFromCtx(ctx); ok {
			fields = append(fields, zap.String("user", id.Username))
		}
		log.Info("grpc", fields...)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// MetricsUnary counts calls and observes their latency.
func MetricsUnary(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		m.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

type access struct{ obj, act string }

// publicMethods need no token.
var publicMethods = map[string]bool{
	v1.FullMethod(v1.MethodBootstrapStatus): true,
	v1.FullMethod(v1.MethodRegister):        true,
	v1.FullMethod(v1.MethodLogin):           true,
}

var methodAccess = map[string]access{
	v1.FullMethod(v1.MethodChangePassword):    {authz.ObjSelf, authz.ActWrite},
	v1.FullMethod(v1.MethodListAccounts):      {authz.ObjAccounts, authz.ActRead},
	v1.FullMethod(v1.MethodDeleteAccount):     {authz.ObjAccounts, authz.ActWrite},
	v1.FullMethod(v1.MethodListFriends):       {authz.ObjLibrary, authz.ActRead},
	v1.FullMethod(v1.MethodAddFriend):         {authz.ObjLibrary, authz.ActWrite},
	v1.FullMethod(v1.MethodRenameFriend):      {authz.ObjLibrary, authz.ActWrite},
	v1.FullMethod(v1.MethodDeleteFriend):      {authz.ObjLibrary, authz.ActWrite},
	v1.FullMethod(v1.MethodListMediaTypes):    {authz.ObjLibrary, authz.ActRead},
	v1.FullMethod(v1.MethodListSuggestions):   {authz.ObjLibrary, authz.ActRead},
	v1.FullMethod(v1.MethodAddSuggestion):     {authz.ObjLibrary, authz.ActWrite},
	v1.FullMethod(v1.MethodUpdateSuggestion):  {authz.ObjLibrary, authz.ActWrite},
	v1.FullMethod(v1.MethodDeleteSuggestion):  {authz.ObjLibrary, authz.ActWrite},
	v1.FullMethod(v1.MethodImportSuggestions): {authz.ObjLibrary, authz.ActWrite},
	v1.FullMethod(v1.MethodExportSuggestions): {authz.ObjLibrary, authz.ActRead},
	v1.FullMethod(v1.MethodLeaderboard):       {authz.ObjLibrary, authz.ActRead},
}

// AuthUnary authenticates the bearer token, loads the live account and checks the
// RBAC policy for the method. The identity is stored in ctx for handlers.
// Methods of other services (health) pass through.
func AuthUnary(auth service.AuthService, z *authz.Enforcer, signKey []byte) grpc.UnaryServerInterceptor {
	prefix := "/" + v1.ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) || publicMethods[info.FullMethod] {
			return next(ctx, req)
		}
		acc, ok := methodAccess[info.FullMethod]
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "no policy for method")
		}
		id, err := resolveIdentity(ctx, auth, signKey)
		if err != nil {
			return nil, err
		}
		allowed, err := z.Allowed(id.Role, acc.obj, acc.act)
		if err != nil {
			return nil, status.Error(codes.Internal, "authorization failed")
		}
		if !allowed {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		return next(session.WithIdentity(ctx, id), req)
	}
}
