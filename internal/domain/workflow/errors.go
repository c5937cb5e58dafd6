package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)

var (
	// ErrInvalidConfiguration is returned when a valid stage chain cannot be built
	ErrInvalidConfiguration = errors.New("invalid workflow configuration")

	// ErrNotFound is returned when an instance or verification code does not resolve
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the acting identity is not the current stage's approver
	ErrUnauthorized = errors.New("acting identity is not authorized for this stage")

	// ErrValidation is returned for malformed input, e.g. a reject without a comment
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyTerminal is returned when deciding on an APPROVED or REJECTED instance
	ErrAlreadyTerminal = errors.New("instance already concluded")

	// ErrConflict is returned when a concurrent decision moved the instance first
	ErrConflict = errors.New("instance was modified concurrently")

	// ErrAlreadyAssigned is returned when a verification code is minted twice
	ErrAlreadyAssigned = errors.New("verification code already assigned")

	// ErrPrecondition is returned when a check annotation is not allowed in the current state
	ErrPrecondition = errors.New("precondition failed")
)

// IsActionUnavailable reports whether err reflects a valid state race rather than a fault
func IsActionUnavailable(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, ErrConflict)
}

// IsRetryable reports whether the caller may retry after re-reading current state
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
