package types

import (
	"testing"
	"time"
)

func TestSessionEventType(t *testing.T) {
	tests := []struct {
		eventType SessionEventType
		name      string
		expected  string
	}{
		{name: "step", eventType: EventTypeStep, expected: "step"},
		{name: "state_change", eventType: EventTypeStateChange, expected: "state_change"},
		{name: "otp_request", eventType: EventTypeOTPRequest, expected: "otp_request"},
		{name: "session_ended", eventType: EventTypeSessionEnded, expected: "session_ended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(tt.eventType))
			}
		})
	}
}

func TestNewStateChangeEvent(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	event := NewStateChangeEvent("s1", "navigating", "filling_form", "Filling Registration Form", "Entering business details", at)

	if event.Type != EventTypeStateChange {
		t.Errorf("expected type %s, got %s", EventTypeStateChange, event.Type)
	}
	if event.PreviousState != "navigating" || event.State != "filling_form" {
		t.Errorf("unexpected states %s -> %s", event.PreviousState, event.State)
	}
	if !event.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, event.Timestamp)
	}
	if event.Metadata == nil {
		t.Error("expected metadata to be initialized")
	}
	if got := event.String(); got != "session s1: navigating -> filling_form (Filling Registration Form)" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestNewStepEvent(t *testing.T) {
	event := NewStepEvent("s2", "initializing", "Launching Browser", "Starting automated browser session", time.Now())

	if event.Type != EventTypeStep {
		t.Errorf("expected type %s, got %s", EventTypeStep, event.Type)
	}
	if event.PreviousState != "" {
		t.Errorf("step events carry no previous state, got %q", event.PreviousState)
	}
	if got := event.String(); got != "session s2: Launching Browser" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestNewOTPRequestEvent(t *testing.T) {
	expires := time.Now().Add(5 * time.Minute)
	event := NewOTPRequestEvent("s3", "+919800000001", expires)

	if event.Type != EventTypeOTPRequest {
		t.Errorf("expected type %s, got %s", EventTypeOTPRequest, event.Type)
	}
	if event.State != "otp_required" {
		t.Errorf("expected otp_required, got %s", event.State)
	}
	if got, ok := event.Metadata["expires_at"].(time.Time); !ok || !got.Equal(expires) {
		t.Errorf("expected expires_at metadata %v, got %v", expires, event.Metadata["expires_at"])
	}
}

func TestNewSessionEndedEvent(t *testing.T) {
	event := NewSessionEndedEvent("s4", "completed", time.Now())

	if event.Type != EventTypeSessionEnded {
		t.Errorf("expected type %s, got %s", EventTypeSessionEnded, event.Type)
	}
	if got := event.String(); got != "session s4 ended: completed" {
		t.Errorf("unexpected string %q", got)
	}
}
