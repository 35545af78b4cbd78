package automation

import "fmt"

// State is the lifecycle state of an automation session.
type State string

const (
	StateInitializing           State = "initializing"            // StateInitializing is the state of a freshly created session.
	StateNavigating             State = "navigating"              // StateNavigating means the browser is loading the portal.
	StateFillingForm            State = "filling_form"            // StateFillingForm means business details are being entered.
	StateOTPRequired            State = "otp_required"            // StateOTPRequired means the session is suspended until the owner supplies a code.
	StateVerifyingOTP           State = "verifying_otp"           // StateVerifyingOTP means a submitted code is being checked by the portal.
	StateCompletingRegistration State = "completing_registration" // StateCompletingRegistration means the application is being finalized.
	StateCompleted              State = "completed"               // StateCompleted is terminal: the application was submitted.
	StateFailed                 State = "failed"                  // StateFailed is terminal: a step failed or the code expired.
	StateCancelled              State = "cancelled"               // StateCancelled is terminal: the owner cancelled.
)

// transitions lists the forward edges of the lifecycle. Failed and cancelled
// are reachable from every non-terminal state and are not listed here.
var transitions = map[State][]State{
	StateInitializing:           {StateNavigating},
	StateNavigating:             {StateFillingForm},
	StateFillingForm:            {StateOTPRequired},
	StateOTPRequired:            {StateVerifyingOTP},
	StateVerifyingOTP:           {StateOTPRequired, StateCompletingRegistration},
	StateCompletingRegistration: {StateCompleted},
}

// IsTerminal reports whether no further transitions leave s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateInitializing, StateNavigating, StateFillingForm, StateOTPRequired, StateVerifyingOTP,
		StateCompletingRegistration, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrIllegalTransition for an illegal edge.
func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
