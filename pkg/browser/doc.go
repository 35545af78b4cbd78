// Package browser provides the automation drivers that walk registration
// portals on behalf of a session.
//
// Two drivers are available behind a single Manager:
//
//   - A Playwright driver that launches Chromium, fills the portal form using
//     configured selectors and watches the page for a one-time password prompt.
//   - A simulated driver that reproduces the portal timing without a browser,
//     used for development and tests.
//
// The Manager caps the number of concurrent drivers. A slot is taken when the
// orchestrator allocates a driver and returned when the driver is closed.
//
// Navigation is restricted to an allowlist of portal hosts expressed as glob
// patterns, for example "*.gst.gov.in".
package browser
