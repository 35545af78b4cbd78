package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/regpilot/pkg/automation"
	"github.com/playwright-community/playwright-go"
)

const (
	// pollInterval is how often page content is checked while waiting
	pollInterval = 500 * time.Millisecond

	// rejectionWindow bounds how long SubmitOTP watches for an error banner
	rejectionWindow = 5 * time.Second
)

var errBrowserClosed = errors.New("browser closed")

// PlaywrightDriver drives a Chromium page through a registration portal.
type PlaywrightDriver struct {
	m    *Manager
	kind automation.LicenseKind
	slot *slot

	mu      sync.Mutex
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	closed  bool

	closeOnce sync.Once
}

func newPlaywrightDriver(m *Manager, kind automation.LicenseKind, s *slot) *PlaywrightDriver {
	return &PlaywrightDriver{m: m, kind: kind, slot: s}
}

// Open launches Chromium with a fresh context and page.
func (d *PlaywrightDriver) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pw, err := d.m.start()
	if err != nil {
		return err
	}

	headless := d.m.cfg.Headless
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		},
	})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(d.m.timeout())

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = page.Close()
		_ = bctx.Close()
		_ = browser.Close()
		return errBrowserClosed
	}
	d.browser, d.context, d.page = browser, bctx, page
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	d.m.logger.Debugf("browser opened for %s", d.kind)
	return nil
}

func (d *PlaywrightDriver) currentPage(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errBrowserClosed
	}
	if d.page == nil {
		return nil, errors.New("browser not open")
	}
	return d.page, nil
}

// Navigate loads url after checking it against the host allowlist.
func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	page, err := d.currentPage(ctx)
	if err != nil {
		return err
	}
	if err := d.m.allow.Check(url); err != nil {
		return err
	}

	waitUntil := playwright.WaitUntilState("domcontentloaded")
	timeout := d.m.timeout()
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &timeout,
	}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	// Portals redirect; the landing page must stay on an allowed host
	if err := d.m.allow.Check(page.URL()); err != nil {
		return fmt.Errorf("redirected off portal: %w", err)
	}
	return ctx.Err()
}

// FillForm fills each non-empty field using its configured selector, or
// [name="<field>"] when none is configured.
func (d *PlaywrightDriver) FillForm(ctx context.Context, data automation.FormData) error {
	page, err := d.currentPage(ctx)
	if err != nil {
		return err
	}

	fields := data.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	timeout := d.m.timeout()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		selector := fieldSelector(d.m.cfg.FieldSelectors, name)
		if err := page.Fill(selector, fields[name], playwright.PageFillOptions{Timeout: &timeout}); err != nil {
			return fmt.Errorf("fill %s failed: %w", name, err)
		}
	}
	return nil
}

func fieldSelector(configured map[string]string, field string) string {
	if s, ok := configured[field]; ok && s != "" {
		return s
	}
	return fmt.Sprintf("[name=%q]", field)
}

// WaitForHumanInput polls the page until an OTP prompt appears.
func (d *PlaywrightDriver) WaitForHumanInput(ctx context.Context) (automation.InputRequest, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		page, err := d.currentPage(ctx)
		if err != nil {
			return automation.InputRequest{}, err
		}
		content, err := page.Content()
		if err != nil {
			return automation.InputRequest{}, fmt.Errorf("failed to read page: %w", err)
		}
		prompt, ok, err := DetectPrompt(content)
		if err != nil {
			return automation.InputRequest{}, err
		}
		if ok {
			return automation.InputRequest{
				Message: prompt.Message,
				Contact: prompt.Contact,
				Kind:    "otp",
				Channel: prompt.Channel,
			}, nil
		}

		select {
		case <-ctx.Done():
			return automation.InputRequest{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SubmitOTP enters the code, submits it and watches briefly for an error.
func (d *PlaywrightDriver) SubmitOTP(ctx context.Context, otp string) error {
	page, err := d.currentPage(ctx)
	if err != nil {
		return err
	}

	timeout := d.m.timeout()
	if err := page.Fill(d.m.cfg.OTPSelector, otp, playwright.PageFillOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("fill otp failed: %w", err)
	}
	if err := page.Click(d.m.cfg.SubmitSelector, playwright.PageClickOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("submit otp failed: %w", err)
	}

	deadline := time.Now().Add(rejectionWindow)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		content, err := page.Content()
		if err != nil {
			return fmt.Errorf("failed to read page: %w", err)
		}
		if text, rejected, err := DetectRejection(content); err != nil {
			return err
		} else if rejected {
			return fmt.Errorf("%w: %s", automation.ErrOTPRejected, text)
		}
		if _, prompting, _ := DetectPrompt(content); !prompting || time.Now().After(deadline) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Finalize submits the completed application.
func (d *PlaywrightDriver) Finalize(ctx context.Context) error {
	page, err := d.currentPage(ctx)
	if err != nil {
		return err
	}
	timeout := d.m.timeout()
	if err := page.Click(d.m.cfg.SubmitSelector, playwright.PageClickOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("final submit failed: %w", err)
	}
	return ctx.Err()
}

// Close releases the page, context and browser. Errors are ignored so cleanup
// always completes and the slot is returned.
func (d *PlaywrightDriver) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		page, bctx, browser := d.page, d.context, d.browser
		d.page, d.context, d.browser = nil, nil, nil
		d.mu.Unlock()

		if page != nil {
			_ = page.Close()
		}
		if bctx != nil {
			_ = bctx.Close()
		}
		if browser != nil {
			_ = browser.Close()
		}
		d.slot.release()
		d.m.logger.Debugf("browser closed for %s", d.kind)
	})
	return nil
}
