package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/and161185/nextbest/internal/authz"
	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/service"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// State is where an interactive session stands.
type State int

const (
	// StateBootstrap means no account exists; only Bootstrap is accepted.
	StateBootstrap State = iota
	StateLoggedOut
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateLoggedOut:
		return "logged out"
	case StateLoggedIn:
		return "logged in"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Gate is the session of one interactive shell. It is safe for concurrent use,
// although a shell normally drives it from a single goroutine.
type Gate struct {
	auth   service.AuthService
	z      *authz.Enforcer
	origin string
	log    *zap.Logger

	mu    sync.Mutex
	state State
	ident model.Identity
}

// NewGate inspects the store and starts in Bootstrap or LoggedOut.
// origin identifies the terminal for login rate limiting.
func NewGate(ctx context.Context, auth service.AuthService, z *authz.Enforcer, origin string, log *zap.Logger) (*Gate, error) {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gate{auth: auth, z: z, origin: origin, log: log}
	if err := g.Refresh(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Refresh re-reads whether the store still needs bootstrapping. A logged-in session is left alone.
func (g *Gate) Refresh(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateLoggedIn {
		return nil
	}
	need, err := g.auth.NeedsBootstrap(ctx)
	if err != nil {
		return err
	}
	if need {
		g.state = StateBootstrap
	} else {
		g.state = StateLoggedOut
	}
	return nil
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Identity returns the logged-in identity.
func (g *Gate) Identity() (model.Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ident, g.state == StateLoggedIn
}

// Bootstrap creates the first (admin) account and leaves the session logged out.
func (g *Gate) Bootstrap(ctx context.Context, username, password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateBootstrap {
		return fmt.Errorf("already bootstrapped: %w", errs.ErrForbidden)
	}
	a, err := g.auth.Register(ctx, username, password)
	if err != nil {
		return err
	}
	g.state = StateLoggedOut
	g.log.Info("bootstrap account created", zap.String("username", a.Username), zap.String("role", string(a.Role)))
	return nil
}

// Login authenticates and moves to LoggedIn. A failed attempt logs out any previous identity.
func (g *Gate) Login(ctx context.Context, username, password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateBootstrap {
		return errs.ErrBootstrapRequired
	}
	g.state, g.ident = StateLoggedOut, model.Identity{}
	a, err := g.auth.Authenticate(ctx, username, password, g.origin)
	if err != nil {
		return err
	}
	g.state, g.ident = StateLoggedIn, a.Identity()
	return nil
}

// Register creates a standard account and logs straight into it. It is only
// available while logged out.
func (g *Gate) Register(ctx context.Context, username, password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case StateBootstrap:
		return errs.ErrBootstrapRequired
	case StateLoggedIn:
		return fmt.Errorf("log out before registering: %w", errs.ErrForbidden)
	}
	a, err := g.auth.Register(ctx, username, password)
	if err != nil {
		return err
	}
	g.state, g.ident = StateLoggedIn, a.Identity()
	return nil
}

// Logout forgets the identity.
func (g *Gate) Logout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateLoggedIn {
		g.state, g.ident = StateLoggedOut, model.Identity{}
	}
}

// Require returns the identity when it may perform act on obj.
func (g *Gate) Require(obj, act string) (model.Identity, error) {
	g.mu.Lock()
	st, ident := g.state, g.ident
	g.mu.Unlock()
	if st != StateLoggedIn {
		return model.Identity{}, errs.ErrUnauthorized
	}
	if err := g.z.Check(ident.Role, obj, act); err != nil {
		return model.Identity{}, err
	}
	return ident, nil
}

// AccountID is the owner id for library calls.
func (g *Gate) AccountID() (uuid.UUID, error) {
	ident, err := g.Require(authz.ObjLibrary, authz.ActRead)
	if err != nil {
		return uuid.Nil, err
	}
	return ident.AccountID, nil
}

// ChangeOwnPassword rotates the logged-in account's password.
func (g *Gate) ChangeOwnPassword(ctx context.Context, newPassword string) error {
	ident, err := g.Require(authz.ObjSelf, authz.ActWrite)
	if err != nil {
		return err
	}
	return g.auth.ChangePassword(ctx, ident.Username, newPassword)
}

// ListAccounts lists every account; admins only.
func (g *Gate) ListAccounts(ctx context.Context) ([]model.Account, error) {
	ident, err := g.Require(authz.ObjAccounts, authz.ActRead)
	if err != nil {
		return nil, err
	}
	return g.auth.ListAccounts(ctx, ident)
}

// DeleteAccount removes another account; admins only, never the caller's own.
func (g *Gate) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	ident, err := g.Require(authz.ObjAccounts, authz.ActWrite)
	if err != nil {
		return err
	}
	if id == ident.AccountID {
		return fmt.Errorf("cannot delete own account: %w", errs.ErrForbidden)
	}
	return g.auth.DeleteAccount(ctx, ident, id)
}
