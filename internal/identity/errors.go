package identity

import "errors"

var (
	// ErrMissingContactAddress means the provider returned no usable email.
	ErrMissingContactAddress = errors.New("identity provider returned no usable email")
	// ErrDuplicateContactAddress means a concurrent sign-in created the
	// account first. The caller should ask the user to sign in again.
	ErrDuplicateContactAddress = errors.New("account for this email was created concurrently")
	// ErrHandleTaken means the allocated handle was claimed between the
	// availability check and the insert.
	ErrHandleTaken = errors.New("handle was claimed concurrently")

	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked is returned while a password lockout is still running.
	ErrAccountLocked = errors.New("account locked")
)

// StoreError wraps any other account store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "account store " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }
