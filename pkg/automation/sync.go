package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/regpilot/pkg/license"
	"github.com/entrhq/regpilot/pkg/logging"
)

// Synchronizer writes a session's terminal outcome to the license store.
type Synchronizer struct {
	store   license.Store
	timeout time.Duration
	logger  *logging.Logger
}

// NewSynchronizer creates a synchronizer. A non-positive timeout disables the
// per-update deadline.
func NewSynchronizer(store license.Store, timeout time.Duration, logger *logging.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Synchronizer{store: store, timeout: timeout, logger: logger}
}

// Sync records the outcome of a terminal session at most once: completed
// becomes applied with the finish time, cancelled reverts to pending and
// failed leaves the license untouched. Missing business or license entries
// are logged and skipped.
func (y *Synchronizer) Sync(ctx context.Context, s *Session) error {
	s.mu.Lock()
	if s.synced || !s.state.IsTerminal() {
		s.mu.Unlock()
		return nil
	}
	s.synced = true
	state := s.state
	finished := s.finishedAt
	businessRef := s.businessRef
	s.mu.Unlock()

	script, ok := ScriptFor(s.kind)
	if !ok {
		return fmt.Errorf("%w: unknown license kind %q", ErrValidation, s.kind)
	}

	var status license.Status
	var appliedAt *time.Time
	switch state {
	case StateCompleted:
		status = license.StatusApplied
		at := finished.UTC()
		appliedAt = &at
	case StateCancelled:
		status = license.StatusPending
	default:
		y.logger.Debugf("session %s ended %s; license %q left unchanged", s.id, state, script.LicenseType)
		return nil
	}

	// The outcome must be recorded even when the caller's context is done.
	ctx = context.WithoutCancel(ctx)
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	err := y.store.UpdateLicenseStatus(ctx, businessRef, script.LicenseType, status, appliedAt)
	switch {
	case err == nil:
		y.logger.Infof("session %s: license %q on business %s set to %s", s.id, script.LicenseType, businessRef, status)
		return nil
	case errors.Is(err, license.ErrLicenseNotFound), errors.Is(err, license.ErrBusinessNotFound):
		y.logger.Warnf("session %s: cannot record %s for %q on business %s: %v", s.id, status, script.LicenseType, businessRef, err)
		return nil
	default:
		y.logger.Errorf("session %s: license update failed: %v", s.id, err)
		return fmt.Errorf("record license outcome: %w", err)
	}
}
