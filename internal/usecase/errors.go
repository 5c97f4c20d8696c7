package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure is the parent of every rejected login. Callers only ever see its two refinements.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrInvalidCredentials covers unknown users, inactive accounts and wrong passwords alike.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthFailure)
	// ErrAccountLocked indicates the lockout window is still open.
	ErrAccountLocked = fmt.Errorf("%w: account locked", ErrAuthFailure)

	// ErrInvalidSession indicates the session id is unknown or expired. Treat as not authenticated.
	ErrInvalidSession = errors.New("invalid or expired session")
	// ErrPermissionDenied indicates the session role may not perform the action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPersistence wraps failures surfaced by the user, event or settings stores.
	ErrPersistence = errors.New("persistence failure")

	// ErrUserExists indicates the username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidRole indicates a role outside the known set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidUsername indicates an empty or malformed username.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidIP indicates an address that does not parse.
	ErrInvalidIP = errors.New("invalid ip address")
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
