package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/regpilot/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultOTPMessage = "Please enter the OTP sent to your registered mobile number"

// startRunnerLocked launches a goroutine that steps s from s.resumeAt. The
// caller holds s.mu.
func (o *Orchestrator) startRunnerLocked(s *Session) error {
	if s.running {
		return ErrConcurrency
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(o.baseCtx)
	s.running = true
	s.cancelRun = cancel
	o.wg.Add(1)
	go o.run(ctx, cancel, s)
	return nil
}

// run executes script steps until the session suspends, finishes or is
// stopped from outside. Driver calls happen without s.mu held; after each call
// the runner re-checks the state and leaves a session that was cancelled,
// timed out or aborted meanwhile untouched.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, s *Session) {
	defer o.wg.Done()
	defer cancel()

	script := scripts[s.kind]

	for {
		s.mu.Lock()
		if s.state.IsTerminal() {
			s.running = false
			s.unlock()
			return
		}

		idx := s.resumeAt
		st := script.steps[idx]
		if st.kind != stepAwaitInput {
			var err error
			if s.state == st.state {
				s.appendLocked(st.label, st.detail)
			} else {
				err = s.transitionLocked(st.state, st.label, st.detail)
			}
			if err != nil {
				drv := o.failLocked(s, labelFailed, err.Error())
				s.unlock()
				o.settle(ctx, s, drv)
				return
			}
		}
		drv := s.driver
		otp := s.otpValue
		s.otpValue = ""
		s.unlock()

		req, err := o.execute(ctx, s, script, st, drv, otp)

		s.mu.Lock()
		if s.state.IsTerminal() {
			s.running = false
			s.unlock()
			return
		}

		if err != nil {
			if st.kind == stepVerifyOTP && errors.Is(err, ErrOTPRejected) && s.otpAttempts < o.maxAttempts {
				detail := fmt.Sprintf("Portal rejected the OTP (attempt %d of %d); waiting for a new code", s.otpAttempts, o.maxAttempts)
				if serr := o.suspendLocked(s, s.lastInput, labelRejected, detail); serr == nil {
					s.running = false
					s.unlock()
					o.logger.Infof("session %s: OTP rejected, re-requesting", s.id)
					return
				}
			}
			o.logger.Errorf("session %s failed at %s: %v", s.id, st.kind, err)
			drv := o.failLocked(s, labelFailed, err.Error())
			s.unlock()
			o.settle(ctx, s, drv)
			return
		}

		s.resumeAt = idx + 1

		if st.kind == stepAwaitInput {
			s.lastInput = req
			if serr := o.suspendLocked(s, req, labelRequired, st.detail); serr != nil {
				drv := o.failLocked(s, labelFailed, serr.Error())
				s.unlock()
				o.settle(ctx, s, drv)
				return
			}
			s.running = false
			s.unlock()
			o.logger.Infof("session %s: waiting for OTP", s.id)
			return
		}

		if s.resumeAt == len(script.steps) {
			if terr := s.transitionLocked(StateCompleted, labelCompleted, script.CompletedDetail); terr != nil {
				o.logger.Errorf("session %s: %v", s.id, terr)
			}
			drv := s.takeDriverLocked()
			s.unlock()
			o.settle(ctx, s, drv)
			o.logger.Infof("session %s completed", s.id)
			return
		}
		s.unlock()
	}
}

// settle releases the driver of a session the runner just finished, records
// the outcome and only then marks the runner idle.
func (o *Orchestrator) settle(ctx context.Context, s *Session, drv Driver) {
	o.release(s, drv)
	o.syncSession(ctx, s)
	s.mu.Lock()
	s.running = false
	s.unlock()
}

// execute performs one driver call inside a trace span. A panicking driver
// is reported as a failed step.
func (o *Orchestrator) execute(ctx context.Context, s *Session, script *Script, st step, drv Driver, otp string) (req InputRequest, err error) {
	ctx, span := o.tracer.Start(ctx, "automation."+st.kind.String(), trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("license.kind", string(s.kind)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
		if err != nil {
			err = &AutomationError{Step: st.kind.String(), Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if drv == nil {
		return InputRequest{}, errors.New("no browser attached")
	}

	switch st.kind {
	case stepOpen:
		err = drv.Open(ctx)
	case stepNavigate:
		err = drv.Navigate(ctx, script.PortalURL)
	case stepFill:
		err = drv.FillForm(ctx, s.form)
	case stepAwaitInput:
		req, err = drv.WaitForHumanInput(ctx)
	case stepVerifyOTP:
		err = drv.SubmitOTP(ctx, otp)
	case stepFinalize:
		err = drv.Finalize(ctx)
	default:
		err = fmt.Errorf("unknown step %d", st.kind)
	}
	return req, err
}

// suspendLocked moves s to otp_required, publishes the pending input and arms
// the expiry timer for this suspension.
func (o *Orchestrator) suspendLocked(s *Session, req InputRequest, label, detail string) error {
	if err := s.transitionLocked(StateOTPRequired, label, detail); err != nil {
		return err
	}

	expiry := req.ExpiresIn
	if expiry <= 0 {
		expiry = o.otpExpiry
	}
	pending := &PendingInput{
		Message:       req.Message,
		TargetContact: req.Contact,
		InputKind:     req.Kind,
		Channel:       req.Channel,
		ExpiresAt:     s.now().Add(expiry),
	}
	if pending.Message == "" {
		pending.Message = defaultOTPMessage
	}
	if pending.TargetContact == "" {
		pending.TargetContact = s.form.Phone
	}
	if pending.InputKind == "" {
		pending.InputKind = "otp"
	}
	if pending.Channel == "" {
		pending.Channel = "sms"
	}
	s.pending = pending

	s.inputSeq++
	seq := s.inputSeq
	s.otpTimer = time.AfterFunc(expiry, func() { o.expire(s, seq) })
	s.outbox = append(s.outbox, types.NewOTPRequestEvent(s.id, pending.TargetContact, pending.ExpiresAt))
	return nil
}

// expire fails a session still waiting on the suspension identified by seq.
func (o *Orchestrator) expire(s *Session, seq uint64) {
	s.mu.Lock()
	if s.state != StateOTPRequired || s.inputSeq != seq {
		s.unlock()
		return
	}
	drv := o.failLocked(s, labelTimedOut, "No OTP was provided before the code expired")
	s.unlock()

	o.logger.Warnf("session %s: OTP expired", s.id)
	o.release(s, drv)
	o.syncSession(o.baseCtx, s)
}
