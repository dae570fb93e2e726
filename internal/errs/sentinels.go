// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication or a missing session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrBootstrapRequired indicates that no account exists yet and the first one must be created.
	ErrBootstrapRequired = errors.New("bootstrap required")

	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrEmptyUsername and ErrEmptyPassword reject blank credentials.
	ErrEmptyUsername = errors.New("empty username")
	ErrEmptyPassword = errors.New("empty password")

	// ErrEmptyName rejects a blank friend name.
	ErrEmptyName = errors.New("empty name")

	// ErrEmptyTitle rejects a blank suggestion title.
	ErrEmptyTitle = errors.New("empty title")

	// ErrDuplicateFriend indicates the account already has a friend with that name.
	ErrDuplicateFriend = errors.New("friend already exists")

	// ErrDuplicateSuggestion indicates the account already has that title for that media type.
	ErrDuplicateSuggestion = errors.New("suggestion already exists")

	// ErrUnresolvedReference indicates a friend or media type reference did not resolve
	// within the caller's data.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrInUse indicates the entity is still referenced and cannot be deleted.
	ErrInUse = errors.New("in use")

	// ErrInvalidArgument covers malformed input such as out-of-range ratings.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSchemaMismatch indicates an import file lacks required columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// SchemaMismatchError lists the required import columns that were missing.
type SchemaMismatchError struct {
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: missing columns %s", ErrSchemaMismatch, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match ErrSchemaMismatch.
func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }
