package automation

import (
	"context"
	"sync"
	"time"

	"github.com/entrhq/regpilot/pkg/types"
	"golang.org/x/time/rate"
)

// StepLogEntry is one line of a session's progress log.
type StepLogEntry struct {
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
}

// PendingInput describes the code a suspended session is waiting for.
type PendingInput struct {
	Message       string    `json:"message"`
	TargetContact string    `json:"targetContact"`
	InputKind     string    `json:"inputKind"`
	Channel       string    `json:"channel"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	SessionID    string
	OwnerID      string
	LicenseKind  LicenseKind
	BusinessRef  string
	State        State
	StepLog      []StepLogEntry
	PendingInput *PendingInput
	StartedAt    time.Time
	FinishedAt   *time.Time
	Elapsed      time.Duration
}

// Summary is the list view of a session.
type Summary struct {
	SessionID   string      `json:"sessionId"`
	LicenseKind LicenseKind `json:"licenseKind"`
	State       State       `json:"state"`
	LastStep    string      `json:"lastStep,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  *time.Time  `json:"finishedAt,omitempty"`
}

// Session is one automation run. All mutable fields are guarded by mu.
type Session struct {
	id          string
	ownerID     string
	kind        LicenseKind
	businessRef string
	form        FormData
	startedAt   time.Time
	now         func() time.Time

	mu         sync.Mutex
	state      State
	stepLog    []StepLogEntry
	pending    *PendingInput
	finishedAt time.Time
	driver     Driver

	// resumeAt is the index of the next script step to execute.
	resumeAt    int
	running     bool
	cancelRun   context.CancelFunc
	synced      bool
	otpAttempts int
	otpValue    string
	lastInput   InputRequest
	inputSeq    uint64
	otpTimer    *time.Timer
	limiter     *rate.Limiter

	// outbox holds events raised under mu, delivered by unlock.
	outbox []*types.SessionEvent
	emit   func(*types.SessionEvent)
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// OwnerID returns the owning user.
func (s *Session) OwnerID() string { return s.ownerID }

// Kind returns the license kind.
func (s *Session) Kind() LicenseKind { return s.kind }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// unlock releases mu and delivers events queued while it was held.
func (s *Session) unlock() {
	events := s.outbox
	s.outbox = nil
	s.mu.Unlock()
	if s.emit == nil {
		return
	}
	for _, ev := range events {
		ev.OwnerID = s.ownerID
		ev.LicenseKind = string(s.kind)
		s.emit(ev)
	}
}

// stamp returns the current time clamped to never precede the last log entry.
func (s *Session) stamp() time.Time {
	t := s.now()
	if n := len(s.stepLog); n > 0 && t.Before(s.stepLog[n-1].Timestamp) {
		t = s.stepLog[n-1].Timestamp
	}
	return t
}

// appendLocked appends a log entry without changing state.
func (s *Session) appendLocked(label, detail string) {
	entry := StepLogEntry{Label: label, Timestamp: s.stamp(), Detail: detail}
	s.stepLog = append(s.stepLog, entry)
	s.outbox = append(s.outbox, types.NewStepEvent(s.id, string(s.state), label, detail, entry.Timestamp))
}

// transitionLocked moves to the next state and appends its log entry in the
// same critical section. Leaving otp_required clears the pending input;
// entering a terminal state records the finish time.
func (s *Session) transitionLocked(to State, label, detail string) error {
	from := s.state
	if err := checkTransition(from, to); err != nil {
		return err
	}
	entry := StepLogEntry{Label: label, Timestamp: s.stamp(), Detail: detail}
	s.stepLog = append(s.stepLog, entry)
	s.state = to
	if to != StateOTPRequired {
		s.pending = nil
	}
	s.outbox = append(s.outbox, types.NewStateChangeEvent(s.id, string(from), string(to), label, detail, entry.Timestamp))
	if to.IsTerminal() {
		s.finishedAt = entry.Timestamp
		s.stopTimerLocked()
		s.outbox = append(s.outbox, types.NewSessionEndedEvent(s.id, string(to), entry.Timestamp))
	}
	return nil
}

// takeDriverLocked hands the driver to the caller, who must Close it.
func (s *Session) takeDriverLocked() Driver {
	d := s.driver
	s.driver = nil
	return d
}

func (s *Session) stopTimerLocked() {
	if s.otpTimer != nil {
		s.otpTimer.Stop()
		s.otpTimer = nil
	}
	// invalidates a timer whose callback is already queued
	s.inputSeq++
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:   s.id,
		OwnerID:     s.ownerID,
		LicenseKind: s.kind,
		BusinessRef: s.businessRef,
		State:       s.state,
		StepLog:     make([]StepLogEntry, len(s.stepLog)),
		StartedAt:   s.startedAt,
	}
	copy(snap.StepLog, s.stepLog)
	if s.pending != nil {
		p := *s.pending
		snap.PendingInput = &p
	}
	if s.state.IsTerminal() {
		f := s.finishedAt
		snap.FinishedAt = &f
		snap.Elapsed = s.finishedAt.Sub(s.startedAt)
	} else {
		snap.Elapsed = s.now().Sub(s.startedAt)
	}
	return snap
}

func (s *Session) summaryLocked() Summary {
	sum := Summary{
		SessionID:   s.id,
		LicenseKind: s.kind,
		State:       s.state,
		StartedAt:   s.startedAt,
	}
	if n := len(s.stepLog); n > 0 {
		sum.LastStep = s.stepLog[n-1].Label
	}
	if s.state.IsTerminal() {
		f := s.finishedAt
		sum.FinishedAt = &f
	}
	return sum
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}
