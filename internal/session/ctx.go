// Package session carries the authenticated identity: per request in a context,
// or per interactive shell in a Gate.
package session

import (
	"context"

	"github.com/and161185/nextbest/internal/model"
)

type ctxKey string

const identityKey ctxKey = "nb.identity"

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the identity stored by WithIdentity.
func IdentityFromCtx(ctx context.Context) (model.Identity, bool) {
	v := ctx.Value(identityKey)
	if v == nil {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}
