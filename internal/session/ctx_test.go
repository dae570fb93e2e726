package session

import (
	"context"
	"testing"

	"github.com/and161185/nextbest/internal/model"
	"github.com/gofrs/uuid/v5"
)

func TestWithIdentity_And_IdentityFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := IdentityFromCtx(context.Background()); ok || id.AccountID != uuid.Nil {
		t.Fatalf("expected no identity in empty ctx")
	}

	want := model.Identity{AccountID: uuid.Must(uuid.NewV7()), Username: "alice", Role: model.RoleAdmin}
	ctx := WithIdentity(context.Background(), want)

	got, ok := IdentityFromCtx(ctx)
	if !ok {
		t.Fatalf("expected identity in ctx")
	}
	if got != want {
		t.Fatalf("mismatch: got %+v, want %+v", got, want)
	}

	type ctxKey string
	const identityKey ctxKey = "nb.identity"
	bad := context.WithValue(context.Background(), identityKey, "not-an-identity")
	if _, ok := IdentityFromCtx(bad); ok {
		t.Fatalf("expected miss on wrong typed value")
	}
}
