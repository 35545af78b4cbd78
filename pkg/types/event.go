package types

import (
	"fmt"
	"time"
)

// SessionEventType defines the type of event emitted by the automation orchestrator.
type SessionEventType string

const (
	EventTypeStep         SessionEventType = "step"          // EventTypeStep indicates a step log entry was appended without a state change.
	EventTypeStateChange  SessionEventType = "state_change"  // EventTypeStateChange indicates the session moved to a new state.
	EventTypeOTPRequest   SessionEventType = "otp_request"   // EventTypeOTPRequest indicates the session is waiting for the owner's code.
	EventTypeSessionEnded SessionEventType = "session_ended" // EventTypeSessionEnded indicates the session reached a terminal state.
)

// SessionEvent represents an event emitted while an automation session runs.
type SessionEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Timestamp is when the event happened.
	Timestamp time.Time

	// SessionID identifies the session.
	SessionID string

	// OwnerID is the user that owns the session.
	OwnerID string

	// LicenseKind is the registration being automated.
	LicenseKind string

	// State is the session state after the event.
	State string

	// PreviousState is the state before a state change.
	PreviousState string

	// Label is the step log label, e.g. "Filling Registration Form".
	Label string

	// Detail is the step log detail.
	Detail string

	// Type indicates the kind of event.
	Type SessionEventType
}

// String renders the event as a single log line.
func (e *SessionEvent) String() string {
	switch e.Type {
	case EventTypeStateChange:
		return fmt.Sprintf("session %s: %s -> %s (%s)", e.SessionID, e.PreviousState, e.State, e.Label)
	case EventTypeOTPRequest:
		return fmt.Sprintf("session %s: waiting for OTP (%s)", e.SessionID, e.Detail)
	case EventTypeSessionEnded:
		return fmt.Sprintf("session %s ended: %s", e.SessionID, e.State)
	default:
		return fmt.Sprintf("session %s: %s", e.SessionID, e.Label)
	}
}

// NewStepEvent creates an event for a log entry appended within the current state.
func NewStepEvent(sessionID, state, label, detail string, at time.Time) *SessionEvent {
	return &SessionEvent{
		Type:      EventTypeStep,
		SessionID: sessionID,
		State:     state,
		Label:     label,
		Detail:    detail,
		Timestamp: at,
		Metadata:  make(map[string]interface{}),
	}
}

// NewStateChangeEvent creates an event for a state transition.
func NewStateChangeEvent(sessionID, from, to, label, detail string, at time.Time) *SessionEvent {
	return &SessionEvent{
		Type:          EventTypeStateChange,
		SessionID:     sessionID,
		PreviousState: from,
		State:         to,
		Label:         label,
		Detail:        detail,
		Timestamp:     at,
		Metadata:      make(map[string]interface{}),
	}
}

// NewOTPRequestEvent creates an event for a suspension awaiting the owner's code.
func NewOTPRequestEvent(sessionID, contact string, expiresAt time.Time) *SessionEvent {
	return &SessionEvent{
		Type:      EventTypeOTPRequest,
		SessionID: sessionID,
		State:     "otp_required",
		Detail:    contact,
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"expires_at": expiresAt,
		},
	}
}

// NewSessionEndedEvent creates an event for a terminal transition.
func NewSessionEndedEvent(sessionID, state string, at time.Time) *SessionEvent {
	return &SessionEvent{
		Type:      EventTypeSessionEnded,
		SessionID: sessionID,
		State:     state,
		Timestamp: at,
		Metadata:  make(map[string]interface{}),
	}
}
