// Package service contains application services for accounts and the suggestion library.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/nextbest/internal/crypto"
	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/limiter"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthService defines account, authentication and administration operations.
type AuthService interface {
	// NeedsBootstrap reports whether no account exists yet.
	NeedsBootstrap(ctx context.Context) (bool, error)
	// Register creates an account; the first one ever becomes admin.
	Register(ctx context.Context, username, password string) (model.Account, error)
	// VerifyCredentials checks a username/password pair without rate limiting.
	VerifyCredentials(ctx context.Context, username, password string) (model.Account, error)
	// Authenticate applies rate-limiting per (username, origin) and verifies credentials.
	Authenticate(ctx context.Context, username, password, origin string) (model.Account, error)
	// LoginWithIP authenticates and issues an access token.
	LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.Account, error)
	// IssueToken signs an access token for a.
	IssueToken(a model.Account) (model.Tokens, error)
	// Lookup loads a live account by id.
	Lookup(ctx context.Context, id uuid.UUID) (model.Account, error)
	// ChangePassword replaces the password of username.
	ChangePassword(ctx context.Context, username, newPassword string) error
	// ListAccounts returns all accounts; admin only.
	ListAccounts(ctx context.Context, actor model.Identity) ([]model.Account, error)
	// DeleteAccount removes another account; admin only, never the actor itself.
	DeleteAccount(ctx context.Context, actor model.Identity, id uuid.UUID) error
}

// AuthConfig carries token and hashing parameters.
type AuthConfig struct {
	SignKey    []byte
	AccessTTL  time.Duration
	Iterations int // PBKDF2 rounds for new hashes
}

type AuthServiceImpl struct {
	accounts repository.AccountRepository
	cfg      AuthConfig
	lim      limiter.Limiter
	log      *zap.Logger

	dummySalt string
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, cfg AuthConfig, lim limiter.Limiter, log *zap.Logger) *AuthServiceImpl {
	if cfg.Iterations <= 0 {
		cfg.Iterations = pkgcrypto.DefaultIterations
	}
	if log == nil {
		log = zap.NewNop()
	}
	salt, err := pkgcrypto.GenerateSalt(pkgcrypto.DefaultSaltLen)
	if err != nil {
		salt = strings.Repeat("00", pkgcrypto.DefaultSaltLen)
	}
	return &AuthServiceImpl{accounts: accounts, cfg: cfg, lim: lim, log: log, dummySalt: salt}
}

// NeedsBootstrap reports whether the account table is empty.
func (s *AuthServiceImpl) NeedsBootstrap(ctx context.Context) (bool, error) {
	n, err := s.accounts.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Register creates a new account with a fresh salt. The role is decided by the repository
// in the same transaction as the insert.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (model.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.Account{}, errs.ErrEmptyUsername
	}
	if strings.TrimSpace(password) == "" {
		return model.Account{}, errs.ErrEmptyPassword
	}
	if _, err := s.accounts.GetByUsername(ctx, username); err == nil {
		return model.Account{}, errs.ErrDuplicateUsername
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.Account{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.Account{}, err
	}
	salt, err := pkgcrypto.GenerateSalt(pkgcrypto.DefaultSaltLen)
	if err != nil {
		return model.Account{}, err
	}
	a := &model.Account{
		ID:           id,
		Username:     username,
		PasswordHash: pkgcrypto.HashPassword(password, salt, s.cfg.Iterations),
		Salt:         salt,
		Iterations:   s.cfg.Iterations,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return model.Account{}, err
	}
	s.log.Info("account registered", zap.String("username", a.Username), zap.String("role", string(a.Role)))
	return *a, nil
}

// VerifyCredentials returns the account when password matches. Unknown usernames cost
// one derivation too, and both failures look the same to the caller.
func (s *AuthServiceImpl) VerifyCredentials(ctx context.Context, username, password string) (model.Account, error) {
	a, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, errs.ErrNotFound) {
		_ = pkgcrypto.HashPassword(password, s.dummySalt, s.cfg.Iterations)
		return model.Account{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Account{}, err
	}
	if !pkgcrypto.VerifyPassword(password, a.Salt, a.Iterations, a.PasswordHash) {
		return model.Account{}, errs.ErrUnauthorized
	}
	return *a, nil
}

// Authenticate verifies credentials with rate limiting by (username, origin).
func (s *AuthServiceImpl) Authenticate(ctx context.Context, username, password, origin string) (model.Account, error) {
	originHash := limiter.HashOrigin(origin)

	// Check if requests are currently allowed for this (user, origin).
	allowed, _, err := s.lim.Allow(ctx, username, originHash)
	if err != nil {
		return model.Account{}, err
	}
	if !allowed {
		return model.Account{}, errs.ErrRateLimited
	}

	a, err := s.VerifyCredentials(ctx, username, password)
	if errors.Is(err, errs.ErrUnauthorized) {
		s.log.Info("login failed", zap.String("username", username))
		// Record failure; if threshold reached, report rate-limited.
		if blocked, _, ferr := s.lim.Failure(ctx, username, originHash); ferr == nil && blocked {
			return model.Account{}, errs.ErrRateLimited
		}
		return model.Account{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Account{}, err
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, username, originHash)
	return a, nil
}

// LoginWithIP authenticates with rate limiting and issues an access token.
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.Account, error) {
	a, err := s.Authenticate(ctx, username, password, ip)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	tok, err := s.IssueToken(a)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	return tok, a, nil
}

// IssueToken creates a signed HS256 JWT with the account id as subject.
func (s *AuthServiceImpl) IssueToken(a model.Account) (model.Tokens, error) {
	now := time.Now()
	exp := now.Add(s.cfg.AccessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   a.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.cfg.SignKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Lookup loads an account by id.
func (s *AuthServiceImpl) Lookup(ctx context.Context, id uuid.UUID) (model.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	return *a, nil
}

// ChangePassword stores a new salt and digest for username using the current iteration count.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, username, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return errs.ErrEmptyPassword
	}
	a, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	salt, err := pkgcrypto.GenerateSalt(pkgcrypto.DefaultSaltLen)
	if err != nil {
		return err
	}
	hash := pkgcrypto.HashPassword(newPassword, salt, s.cfg.Iterations)
	if err := s.accounts.UpdateCredentials(ctx, a.ID, hash, salt, s.cfg.Iterations); err != nil {
		return err
	}
	s.log.Info("password changed", zap.String("username", username))
	return nil
}

// ListAccounts returns every account to an admin.
func (s *AuthServiceImpl) ListAccounts(ctx context.Context, actor model.Identity) ([]model.Account, error) {
	if !actor.IsAdmin() {
		return nil, errs.ErrForbidden
	}
	return s.accounts.List(ctx)
}

// DeleteAccount lets an admin remove any account but their own.
func (s *AuthServiceImpl) DeleteAccount(ctx context.Context, actor model.Identity, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return errs.ErrForbidden
	}
	if actor.AccountID == id {
		return fmt.Errorf("cannot delete own account: %w", errs.ErrForbidden)
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("account deleted", zap.String("by", actor.Username), zap.String("id", id.String()))
	return nil
}
