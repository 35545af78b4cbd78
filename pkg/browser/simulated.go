package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/entrhq/regpilot/pkg/automation"
)

var otpPattern = regexp.MustCompile(`^\d{4,8}$`)

// SimulatedDriver walks the portal steps without a browser. Each call waits
// for the step delay; SubmitOTP accepts any 4 to 8 digit code.
type SimulatedDriver struct {
	delay time.Duration
	allow *HostAllowlist
	slot  *slot

	mu      sync.Mutex
	opened  bool
	contact string

	done      chan struct{}
	closeOnce sync.Once
}

func newSimulatedDriver(delay time.Duration, allow *HostAllowlist, s *slot) *SimulatedDriver {
	return &SimulatedDriver{
		delay: delay,
		allow: allow,
		slot:  s,
		done:  make(chan struct{}),
	}
}

func (d *SimulatedDriver) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-d.done:
		return errBrowserClosed
	default:
	}
	if d.delay <= 0 {
		return nil
	}

	t := time.NewTimer(d.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return errBrowserClosed
	}
}

func (d *SimulatedDriver) requireOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return errors.New("browser not open")
	}
	return nil
}

func (d *SimulatedDriver) Open(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.opened = true
	d.mu.Unlock()
	return nil
}

func (d *SimulatedDriver) Navigate(ctx context.Context, url string) error {
	if err := d.requireOpen(); err != nil {
		return err
	}
	if err := d.allow.Check(url); err != nil {
		return err
	}
	return d.wait(ctx)
}

func (d *SimulatedDriver) FillForm(ctx context.Context, data automation.FormData) error {
	if err := d.requireOpen(); err != nil {
		return err
	}
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.contact = maskContact(data.Phone)
	d.mu.Unlock()
	return nil
}

func (d *SimulatedDriver) WaitForHumanInput(ctx context.Context) (automation.InputRequest, error) {
	if err := d.requireOpen(); err != nil {
		return automation.InputRequest{}, err
	}
	if err := d.wait(ctx); err != nil {
		return automation.InputRequest{}, err
	}
	d.mu.Lock()
	contact := d.contact
	d.mu.Unlock()
	return automation.InputRequest{Contact: contact, Kind: "otp", Channel: "sms"}, nil
}

func (d *SimulatedDriver) SubmitOTP(ctx context.Context, otp string) error {
	if err := d.requireOpen(); err != nil {
		return err
	}
	if err := d.wait(ctx); err != nil {
		return err
	}
	if !otpPattern.MatchString(otp) {
		return fmt.Errorf("%w: code must be 4 to 8 digits", automation.ErrOTPRejected)
	}
	return nil
}

func (d *SimulatedDriver) Finalize(ctx context.Context) error {
	if err := d.requireOpen(); err != nil {
		return err
	}
	return d.wait(ctx)
}

// Close wakes any call in flight and returns the slot. It is idempotent.
func (d *SimulatedDriver) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.slot.release()
	})
	return nil
}

// maskContact keeps the last four digits of a phone number.
func maskContact(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	masked := make([]rune, len(digits))
	for i := range digits {
		if i < len(digits)-4 {
			masked[i] = 'X'
		} else {
			masked[i] = digits[i]
		}
	}
	return string(masked)
}
