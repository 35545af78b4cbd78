package automation

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed requests (unknown kind, empty code)
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when no session has the given id
	ErrNotFound = errors.New("session not found")
	// ErrForbidden is returned when the caller does not own the session
	ErrForbidden = errors.New("access denied")
	// ErrNoBusinessProfile is returned when the owner has no business record
	ErrNoBusinessProfile = errors.New("business profile not found")
	// ErrNoOTPPending is returned when a code is submitted while none is requested
	ErrNoOTPPending = errors.New("no OTP required at this time")
	// ErrConcurrency is returned when a conflicting session or runner is already active
	ErrConcurrency = errors.New("conflicting automation in progress")
	// ErrIllegalTransition is returned for a state change the lifecycle does not allow
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrRateLimited is returned when codes are submitted faster than allowed
	ErrRateLimited = errors.New("too many OTP submissions")
	// ErrCapacity is returned when no browser can be allocated for a new session
	ErrCapacity = errors.New("automation capacity exhausted")
	// ErrSessionActive is returned when removing a session that is still live
	ErrSessionActive = errors.New("session is still active")
	// ErrOTPRejected is returned by a Driver when the portal refuses a code
	ErrOTPRejected = errors.New("OTP rejected by portal")
	// ErrShuttingDown is returned once Shutdown has begun
	ErrShuttingDown = fmt.Errorf("%w: orchestrator is shutting down", ErrCapacity)
)

// AutomationError wraps a driver failure with the script step it happened in.
type AutomationError struct {
	Step string
	Err  error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}
