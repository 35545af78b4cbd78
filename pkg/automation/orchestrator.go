// Package automation runs government-registration sessions: it steps a
// browser driver through a portal script, suspends when the portal demands a
// one-time passcode, resumes when the owner supplies it and records the
// outcome on the owner's license entry.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/regpilot/pkg/config"
	"github.com/entrhq/regpilot/pkg/license"
	"github.com/entrhq/regpilot/pkg/logging"
	"github.com/entrhq/regpilot/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/entrhq/regpilot/pkg/automation"

// EventEmitter is a function type for emitting session events
type EventEmitter func(event *types.SessionEvent)

// Options configures an Orchestrator.
type Options struct {
	Store     license.Store
	NewDriver DriverFactory
	Config    config.AutomationConfig
	Logger    *logging.Logger
	// OnEvent, if set, receives every step and state change. It is called
	// without any session lock held and must not block.
	OnEvent EventEmitter
	// Now overrides the clock used for log timestamps.
	Now    func() time.Time
	Tracer trace.Tracer
}

// CreateResult is returned when a session starts.
type CreateResult struct {
	SessionID         string
	Status            State
	EstimatedDuration string
	Message           string
}

// Orchestrator creates, steps, suspends, resumes and cancels sessions.
type Orchestrator struct {
	registry  *Registry
	store     license.Store
	newDriver DriverFactory
	syncer    *Synchronizer
	logger    *logging.Logger
	tracer    trace.Tracer
	emitEvent EventEmitter
	now       func() time.Time

	otpExpiry   time.Duration
	maxAttempts int
	rateEvery   time.Duration
	rateBurst   int
	retention   time.Duration

	baseCtx    context.Context
	cancelBase context.CancelFunc

	// mu guards closed; runners register with wg under its read lock.
	mu       sync.RWMutex
	closed   bool
	createMu sync.Mutex
	wg       sync.WaitGroup

	stopOnce    sync.Once
	janitorStop chan struct{}
	janitorDone chan struct{}
}

// New creates an orchestrator and starts its eviction janitor.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("license store is required")
	}
	if opts.NewDriver == nil {
		return nil, errors.New("driver factory is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	cfg := opts.Config
	defaults := config.DefaultConfig().Automation
	if cfg.OTPExpiry <= 0 {
		cfg.OTPExpiry = defaults.OTPExpiry
	}
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = defaults.MaxOTPAttempts
	}
	if cfg.OTPRateBurst <= 0 {
		cfg.OTPRateBurst = defaults.OTPRateBurst
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry:    NewRegistry(opts.Now),
		store:       opts.Store,
		newDriver:   opts.NewDriver,
		syncer:      NewSynchronizer(opts.Store, cfg.SyncTimeout.Std(), opts.Logger),
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		emitEvent:   opts.OnEvent,
		now:         opts.Now,
		otpExpiry:   cfg.OTPExpiry.Std(),
		maxAttempts: cfg.MaxOTPAttempts,
		rateEvery:   cfg.OTPRateEvery.Std(),
		rateBurst:   cfg.OTPRateBurst,
		retention:   cfg.Retention.Std(),
		baseCtx:     baseCtx,
		cancelBase:  cancel,
	}

	if interval := cfg.SweepInterval.Std(); interval > 0 && o.retention > 0 {
		o.janitorStop = make(chan struct{})
		o.janitorDone = make(chan struct{})
		go o.janitor(interval)
	}
	return o, nil
}

// Registry returns the session registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}

// Create starts a session for the owner's business. An owner may run at most
// one live session per kind.
func (o *Orchestrator) Create(ctx context.Context, ownerID string, kind LicenseKind) (CreateResult, error) {
	script, ok := ScriptFor(kind)
	if !ok {
		return CreateResult{}, fmt.Errorf("%w: unknown license kind %q", ErrValidation, kind)
	}
	if ownerID == "" {
		return CreateResult{}, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	business, err := o.store.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, license.ErrBusinessNotFound) {
			return CreateResult{}, ErrNoBusinessProfile
		}
		return CreateResult{}, fmt.Errorf("load business profile: %w", err)
	}

	o.createMu.Lock()
	defer o.createMu.Unlock()

	if o.isClosed() {
		return CreateResult{}, ErrShuttingDown
	}
	for _, existing := range o.registry.ownedBy(ownerID) {
		if existing.kind == kind && !existing.State().IsTerminal() {
			return CreateResult{}, fmt.Errorf("%w: session %s is already running %s", ErrConcurrency, existing.id, kind)
		}
	}

	driver, err := o.newDriver(kind)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", ErrCapacity, err)
	}
	if driver == nil {
		return CreateResult{}, fmt.Errorf("%w: driver factory returned no driver", ErrCapacity)
	}

	s := o.registry.create(ownerID, kind, newSessionParams{
		businessRef: business.ID,
		form:        script.FormFor(business),
		driver:      driver,
		limiter:     rate.NewLimiter(rate.Every(o.rateEvery), o.rateBurst),
		emit:        o.emitEvent,
	})

	s.mu.Lock()
	if err := o.startRunnerLocked(s); err != nil {
		drv := o.failLocked(s, labelAborted, "Service shutting down")
		s.unlock()
		o.release(s, drv)
		return CreateResult{}, err
	}
	s.unlock()

	o.logger.Infof("session %s started: owner=%s kind=%s business=%s", s.id, ownerID, kind, business.ID)
	return CreateResult{
		SessionID:         s.id,
		Status:            StateInitializing,
		EstimatedDuration: script.EstimatedDuration,
		Message:           script.StartedMessage,
	}, nil
}

// lookup returns the session if the owner may access it.
func (o *Orchestrator) lookup(ownerID, sessionID string) (*Session, error) {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.ownerID != ownerID {
		return nil, fmt.Errorf("%w: session %s", ErrForbidden, sessionID)
	}
	return s, nil
}

// Status returns a snapshot of one session.
func (o *Orchestrator) Status(ownerID, sessionID string) (Snapshot, error) {
	s, err := o.lookup(ownerID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// List returns summaries of the owner's sessions.
func (o *Orchestrator) List(ownerID string) []Summary {
	return o.registry.ListByOwner(ownerID)
}

// SubmitOTP hands the owner's code to a suspended session and resumes it.
// It returns the session state after the hand-off.
func (o *Orchestrator) SubmitOTP(ctx context.Context, ownerID, sessionID, otp string) (State, error) {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return "", fmt.Errorf("%w: OTP is required", ErrValidation)
	}
	s, err := o.lookup(ownerID, sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.state != StateOTPRequired {
		state := s.state
		s.unlock()
		return state, ErrNoOTPPending
	}
	if s.running {
		s.unlock()
		return StateOTPRequired, ErrConcurrency
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.unlock()
		return StateOTPRequired, ErrRateLimited
	}

	s.stopTimerLocked()
	if err := s.transitionLocked(StateVerifyingOTP, labelSubmitted, "User provided OTP for verification"); err != nil {
		s.unlock()
		return StateOTPRequired, err
	}
	s.otpAttempts++
	s.otpValue = otp

	if err := o.startRunnerLocked(s); err != nil {
		drv := o.failLocked(s, labelAborted, "Service shutting down")
		s.unlock()
		o.release(s, drv)
		o.syncSession(ctx, s)
		return StateFailed, err
	}
	state, attempt := s.state, s.otpAttempts
	s.unlock()

	o.logger.Infof("session %s: OTP submitted (attempt %d of %d)", sessionID, attempt, o.maxAttempts)
	return state, nil
}

// Cancel stops a live session and releases its browser before returning.
// Cancelling a terminal session is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, ownerID, sessionID string) error {
	s, err := o.lookup(ownerID, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.unlock()
		return nil
	}
	if err := s.transitionLocked(StateCancelled, labelCancelled, "User cancelled the automation process"); err != nil {
		s.unlock()
		return err
	}
	drv := s.takeDriverLocked()
	stop := s.cancelRun
	s.unlock()

	if stop != nil {
		stop()
	}
	o.release(s, drv)
	o.syncSession(ctx, s)
	o.logger.Infof("session %s cancelled by owner", sessionID)
	return nil
}

// Sweep evicts finished sessions older than the retention period.
func (o *Orchestrator) Sweep() int {
	if o.retention <= 0 {
		return 0
	}
	return o.registry.Evict(o.now().Add(-o.retention))
}

func (o *Orchestrator) janitor(interval time.Duration) {
	defer close(o.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.janitorStop:
			return
		case <-ticker.C:
			if n := o.Sweep(); n > 0 {
				o.logger.Debugf("evicted %d finished sessions", n)
			}
		}
	}
}

// Shutdown refuses new work, fails every live session, releases their
// browsers and waits for runners to exit or ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.stopOnce.Do(func() {
		if o.janitorStop != nil {
			close(o.janitorStop)
		}
		o.cancelBase()
	})

	aborted := 0
	for _, s := range o.registry.all() {
		s.mu.Lock()
		if s.state.IsTerminal() {
			s.unlock()
			continue
		}
		drv := o.failLocked(s, labelAborted, "Service shutting down")
		s.unlock()
		o.release(s, drv)
		o.syncSession(ctx, s)
		aborted++
	}
	if aborted > 0 {
		o.logger.Warnf("aborted %d live sessions on shutdown", aborted)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		if o.janitorDone != nil {
			<-o.janitorDone
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for session runners: %w", ctx.Err())
	}
}

// failLocked moves s to failed and hands back its driver for release.
func (o *Orchestrator) failLocked(s *Session, label, detail string) Driver {
	if err := s.transitionLocked(StateFailed, label, detail); err != nil {
		o.logger.Errorf("session %s: %v", s.id, err)
	}
	return s.takeDriverLocked()
}

// release closes a driver taken from a session.
func (o *Orchestrator) release(s *Session, drv Driver) {
	if drv == nil {
		return
	}
	if err := drv.Close(); err != nil {
		o.logger.Warnf("session %s: closing browser: %v", s.id, err)
	}
}

func (o *Orchestrator) syncSession(ctx context.Context, s *Session) {
	if ctx == nil {
		ctx = o.baseCtx
	}
	// errors are logged by the synchronizer
	_ = o.syncer.Sync(ctx, s)
}
