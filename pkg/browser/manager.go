package browser

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/entrhq/regpilot/pkg/automation"
	"github.com/entrhq/regpilot/pkg/config"
	"github.com/entrhq/regpilot/pkg/logging"
	"github.com/playwright-community/playwright-go"
)

// Default values for browser sessions
const (
	DefaultMaxSessions    = 5
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

var (
	// ErrAtCapacity is returned when every driver slot is in use.
	ErrAtCapacity = errors.New("maximum number of browser sessions reached")
	// ErrManagerClosed is returned after Shutdown.
	ErrManagerClosed = errors.New("browser manager is shut down")
)

// Manager hands out drivers and owns the shared Playwright instance.
type Manager struct {
	cfg    config.BrowserConfig
	allow  *HostAllowlist
	logger *logging.Logger

	mu          sync.Mutex
	playwright  *playwright.Playwright
	initialized bool
	active      int
	maxSessions int
	closed      bool
}

// NewManager creates a manager for the configured browser mode. Playwright is
// not started until the first driver opens.
func NewManager(cfg config.BrowserConfig, logger *logging.Logger) (*Manager, error) {
	switch cfg.Mode {
	case config.BrowserPlaywright, config.BrowserSimulated:
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
	allow, err := NewHostAllowlist(cfg.AllowedHosts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	max := cfg.MaxSessions
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Manager{
		cfg:         cfg,
		allow:       allow,
		logger:      logger,
		maxSessions: max,
	}, nil
}

// NewDriver allocates a driver slot. It satisfies automation.DriverFactory.
func (m *Manager) NewDriver(kind automation.LicenseKind) (automation.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.active >= m.maxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrAtCapacity, m.maxSessions)
	}
	m.active++

	s := &slot{m: m}
	m.logger.Debugf("allocated %s driver for %s (%d/%d)", m.cfg.Mode, kind, m.active, m.maxSessions)
	if m.cfg.Mode == config.BrowserSimulated {
		return newSimulatedDriver(m.cfg.StepDelay.Std(), m.allow, s), nil
	}
	return newPlaywrightDriver(m, kind, s), nil
}

// Active returns the number of drivers holding a slot.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// start installs and runs Playwright on first use.
func (m *Manager) start() (*playwright.Playwright, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.initialized {
		return m.playwright, nil
	}

	// Keep driver download and server chatter out of the service logs
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	m.logger.Infof("playwright started")
	return pw, nil
}

func (m *Manager) timeout() float64 {
	if ms := m.cfg.Timeout.Std().Milliseconds(); ms > 0 {
		return float64(ms)
	}
	return DefaultTimeout
}

// Shutdown refuses new drivers and stops Playwright. Drivers still open are
// not closed here; the orchestrator releases them during its own shutdown.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}

// slot is one unit of manager capacity, returned exactly once.
type slot struct {
	m    *Manager
	once sync.Once
}

func (s *slot) release() {
	s.once.Do(func() {
		s.m.mu.Lock()
		s.m.active--
		s.m.mu.Unlock()
	})
}
