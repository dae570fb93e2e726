package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/nextbest/internal/crypto"
	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/limiter"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAccounts struct {
	mu    sync.Mutex
	order []uuid.UUID
	byID  map[uuid.UUID]*model.Account

	createErr error
	getErr    error
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{byID: map[uuid.UUID]*model.Account{}} }

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.Username == a.Username {
			return errs.ErrDuplicateUsername
		}
	}
	a.Role = model.BootstrapRole(int64(len(f.byID)))
	a.CreatedAt = time.Now()
	cpy := *a
	f.byID[a.ID] = &cpy
	f.order = append(f.order, a.ID)
	return nil
}
func (f *fakeAccounts) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}
func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}
func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byID {
		if a.Username == username {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeAccounts) UpdateCredentials(_ context.Context, id uuid.UUID, hash, salt string, iterations int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.PasswordHash, a.Salt, a.Iterations = hash, salt, iterations
	return nil
}
func (f *fakeAccounts) List(context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Account, 0, len(f.order))
	for _, id := range f.order {
		if a, ok := f.byID[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}
func (f *fakeAccounts) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func testAuthConfig() AuthConfig {
	return AuthConfig{SignKey: []byte("k"), AccessTTL: time.Minute, Iterations: 1000}
}

func TestAuth_Register_Validation(t *testing.T) {
	t.Parallel()
	s := NewAuthService(newFakeAccounts(), testAuthConfig(), &fakeLimiter{}, nil)
	ctx := context.Background()

	if _, err := s.Register(ctx, "  ", "pwd"); !errors.Is(err, errs.ErrEmptyUsername) {
		t.Fatalf("want ErrEmptyUsername, got %v", err)
	}
	if _, err := s.Register(ctx, "alice", ""); !errors.Is(err, errs.ErrEmptyPassword) {
		t.Fatalf("want ErrEmptyPassword, got %v", err)
	}
	if _, err := s.Register(ctx, "alice", "pwd"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Register(ctx, "alice", "pwd2"); !errors.Is(err, errs.ErrDuplicateUsername) {
		t.Fatalf("want ErrDuplicateUsername, got %v", err)
	}
}

func TestAuth_Register_PropagatesRepoErrors(t *testing.T) {
	t.Parallel()
	accounts := newFakeAccounts()
	s := NewAuthService(accounts, testAuthConfig(), &fakeLimiter{}, nil)

	accounts.getErr = errors.New("db down")
	if _, err := s.Register(context.Background(), "bob", "pwd"); err == nil || errors.Is(err, errs.ErrDuplicateUsername) {
		t.Fatalf("want propagated lookup error, got %v", err)
	}
	accounts.getErr = nil

	accounts.createErr = errors.New("boom")
	if _, err := s.Register(context.Background(), "bob", "pwd"); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Register_FirstAccountIsOnlyAdmin(t *testing.T) {
	t.Parallel()
	s := NewAuthService(newFakeAccounts(), testAuthConfig(), &fakeLimiter{}, nil)
	ctx := context.Background()

	need, err := s.NeedsBootstrap(ctx)
	if err != nil || !need {
		t.Fatalf("NeedsBootstrap before any account: need=%v err=%v", need, err)
	}
	admins := 0
	for i := 0; i < 4; i++ {
		a, err := s.Register(ctx, fmt.Sprintf("u%d", i), "pw")
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if a.Role == model.RoleAdmin {
			admins++
			if i != 0 {
				t.Fatalf("account #%d became admin", i)
			}
		}
	}
	if admins != 1 {
		t.Fatalf("admins=%d, want 1", admins)
	}
	if need, _ := s.NeedsBootstrap(ctx); need {
		t.Fatalf("NeedsBootstrap must be false once accounts exist")
	}
}

func TestAuth_Register_SamePasswordDifferentSalts(t *testing.T) {
	t.Parallel()
	s := NewAuthService(newFakeAccounts(), testAuthConfig(), &fakeLimiter{}, nil)
	ctx := context.Background()

	a, _ := s.Register(ctx, "a", "same")
	b, _ := s.Register(ctx, "b", "same")
	if a.Salt == b.Salt || a.PasswordHash == b.PasswordHash {
		t.Fatalf("same password must hash differently under different salts")
	}
	if a.Iterations != 1000 {
		t.Fatalf("iterations=%d, want 1000", a.Iterations)
	}
}

func TestAuth_VerifyCredentials_AfterRotation(t *testing.T) {
	t.Parallel()
	s := NewAuthService(newFakeAccounts(), testAuthConfig(), &fakeLimiter{}, nil)
	ctx := context.Background()
	if _, err := s.Register(ctx, "alice", "old"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := s.VerifyCredentials(ctx, "alice", "old"); err != nil {
		t.Fatalf("old password before rotation: %v", err)
	}
	if err := s.ChangePassword(ctx, "alice", "new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, "alice", "old"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("old password must fail after rotation, got %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, "alice", "new"); err != nil {
		t.Fatalf("new password: %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, "nobody", "new"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("unknown user must look like a wrong password, got %v", err)
	}

	if err := s.ChangePassword(ctx, "alice", " "); !errors.Is(err, errs.ErrEmptyPassword) {
		t.Fatalf("want ErrEmptyPassword, got %v", err)
	}
	if err := s.ChangePassword(ctx, "ghost", "x"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAuth_ChangePassword_UsesCurrentIterations(t *testing.T) {
	t.Parallel()
	accounts := newFakeAccounts()
	ctx := context.Background()
	old := NewAuthService(accounts, AuthConfig{SignKey: []byte("k"), AccessTTL: time.Minute, Iterations: 500}, &fakeLimiter{}, nil)
	a, _ := old.Register(ctx, "alice", "pw")

	// raising the iteration count keeps existing hashes valid
	s := NewAuthService(accounts, testAuthConfig(), &fakeLimiter{}, nil)
	if _, err := s.VerifyCredentials(ctx, "alice", "pw"); err != nil {
		t.Fatalf("verify with stored iteration count: %v", err)
	}
	if err := s.ChangePassword(ctx, "alice", "pw2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	got, _ := accounts.GetByID(ctx, a.ID)
	if got.Iterations != 1000 || !pkgcrypto.VerifyPassword("pw2", got.Salt, 1000, got.PasswordHash) {
		t.Fatalf("rotated credentials not stored with current iterations: %+v", got)
	}
}

func TestAuth_LoginWithIP_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	accounts := newFakeAccounts()
	lim := &fakeLimiter{allowOK: true}
	core, logs := observer.New(zap.InfoLevel)
	s := NewAuthService(accounts, AuthConfig{SignKey: []byte("secret"), AccessTTL: 2 * time.Minute, Iterations: 1000}, lim, zap.New(core))
	u, err := s.Register(context.Background(), "alice", "correct")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, _, err := s.LoginWithIP(context.Background(), "nope", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	lim.failBlocked = true
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}

	lim.failBlocked = false
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	accounts.getErr = errors.New("db down")
	failuresBefore := lim.failureCalls
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "correct", ""); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want storage error, got %v", err)
	}
	if lim.failureCalls != failuresBefore {
		t.Fatalf("storage errors must not count as failed logins")
	}
	accounts.getErr = nil

	tok, got, err := s.LoginWithIP(context.Background(), "alice", "correct", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("LoginWithIP success: %v", err)
	}
	if tok.AccessToken == "" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token: %+v", tok)
	}
	if got.ID != u.ID || got.Role != model.RoleAdmin {
		t.Fatalf("bad account returned: %+v", got)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}
	if logs.FilterMessage("login failed").Len() == 0 {
		t.Fatalf("failed logins must be logged")
	}
}

func TestAuth_IssueToken_SubjectAndTTL(t *testing.T) {
	t.Parallel()
	s := NewAuthService(newFakeAccounts(), AuthConfig{SignKey: []byte("k"), AccessTTL: time.Second}, &fakeLimiter{}, nil)
	a := model.Account{ID: uuid.Must(uuid.NewV7())}

	tok, err := s.IssueToken(a)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tok.AccessToken, claims, func(*jwt.Token) (any, error) { return []byte("k"), nil })
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != a.ID.String() {
		t.Fatalf("subject=%s, want %s", claims.Subject, a.ID)
	}
	if d := time.Until(tok.ExpiresAt); d <= 0 || d > 2*time.Second {
		t.Fatalf("unexpected ttl: %v", d)
	}
}

func TestAuth_AdminOperations(t *testing.T) {
	t.Parallel()
	s := NewAuthService(newFakeAccounts(), testAuthConfig(), &fakeLimiter{}, nil)
	ctx := context.Background()
	root, _ := s.Register(ctx, "root", "pw")
	bob, _ := s.Register(ctx, "bob", "pw")
	carol, _ := s.Register(ctx, "carol", "pw")

	if _, err := s.ListAccounts(ctx, bob.Identity()); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("non-admin list: want ErrForbidden, got %v", err)
	}
	list, err := s.ListAccounts(ctx, root.Identity())
	if err != nil || len(list) != 3 {
		t.Fatalf("admin list: len=%d err=%v", len(list), err)
	}

	if err := s.DeleteAccount(ctx, bob.Identity(), carol.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("non-admin delete: want ErrForbidden, got %v", err)
	}
	if err := s.DeleteAccount(ctx, root.Identity(), root.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("self delete: want ErrForbidden, got %v", err)
	}
	if err := s.DeleteAccount(ctx, root.Identity(), carol.ID); err != nil {
		t.Fatalf("delete carol: %v", err)
	}
	if err := s.DeleteAccount(ctx, root.Identity(), carol.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("delete twice: want ErrNotFound, got %v", err)
	}
	if _, err := s.Lookup(ctx, carol.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("lookup deleted: want ErrNotFound, got %v", err)
	}
	if _, err := s.Lookup(ctx, root.ID); err != nil {
		t.Fatalf("lookup root: %v", err)
	}
}
