package auth

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrSessionMismatch    = errors.New("invalid user session")
	ErrTokenAlreadyUsed   = errors.New("setup token already used")
	ErrInvalidPattern     = errors.New("invalid pattern")
	ErrNotFound           = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrPatternAlreadySet  = errors.New("pattern already set")
)

// ValidationError carries a client-facing message for bad input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// LockedError reports how many whole minutes are left in the lockout window.
type LockedError struct {
	RemainingMinutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: try again in %d minutes", ErrAccountLocked, e.RemainingMinutes)
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

type PatternMismatchError struct {
	AttemptsLeft int
}

func (e *PatternMismatchError) Error() string {
	return fmt.Sprintf("%s: %d attempts left", ErrInvalidPattern, e.AttemptsLeft)
}

func (e *PatternMismatchError) Is(target error) bool { return target == ErrInvalidPattern }
