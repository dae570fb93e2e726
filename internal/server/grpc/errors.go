package grpcserver

import (
	"context"
	"errors"

	"github.com/and161185/nextbest/internal/errs"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps domain errors to gRPC status codes. Unknown errors are logged here,
// once, and reach the client only as "internal".
func toStatus(log *zap.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, errs.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, errs.ErrDuplicateUsername),
		errors.Is(err, errs.ErrDuplicateFriend),
		errors.Is(err, errs.ErrDuplicateSuggestion):
		code = codes.AlreadyExists
	case errors.Is(err, errs.ErrEmptyUsername),
		errors.Is(err, errs.ErrEmptyPassword),
		errors.Is(err, errs.ErrEmptyName),
		errors.Is(err, errs.ErrEmptyTitle),
		errors.Is(err, errs.ErrInvalidArgument),
		errors.Is(err, errs.ErrSchemaMismatch),
		errors.Is(err, errs.ErrUnresolvedReference):
		code = codes.InvalidArgument
	case errors.Is(err, errs.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, errs.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, errs.ErrRateLimited):
		code = codes.ResourceExhausted
	case errors.Is(err, errs.ErrInUse), errors.Is(err, errs.ErrBootstrapRequired):
		code = codes.FailedPrecondition
	default:
		log.Error("request failed", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s: internal error", op)
	}
	return status.Error(code, err.Error())
}
