package browser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// ErrHostNotAllowed is returned when a driver is asked to leave the portal hosts.
var ErrHostNotAllowed = errors.New("host not allowed")

// HostAllowlist matches URLs against glob patterns on the host name.
// An empty allowlist permits every http(s) host.
type HostAllowlist struct {
	patterns []string
	globs    []glob.Glob
}

// NewHostAllowlist compiles the host patterns. Patterns use '.' as the
// separator, so "*.gov.in" matches "www.gov.in" but not "a.b.gov.in";
// use "**.gov.in" for any depth.
func NewHostAllowlist(patterns []string) (*HostAllowlist, error) {
	a := &HostAllowlist{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid host pattern %q: %w", p, err)
		}
		a.patterns = append(a.patterns, p)
		a.globs = append(a.globs, g)
	}
	return a, nil
}

// Check returns nil if rawURL may be visited.
func (a *HostAllowlist) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrHostNotAllowed, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("invalid url %q: missing host", rawURL)
	}
	if a == nil || len(a.globs) == 0 {
		return nil
	}
	for _, g := range a.globs {
		if g.Match(host) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
}

// Patterns returns the compiled patterns.
func (a *HostAllowlist) Patterns() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.patterns...)
}
