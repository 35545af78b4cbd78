package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/regpilot/pkg/config"
	"github.com/entrhq/regpilot/pkg/license"
	"github.com/entrhq/regpilot/pkg/logging"
	"github.com/stretchr/testify/require"
)

// gate blocks a driver method until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) open() { close(g.release) }

// fakeDriver records calls and can be told to fail, panic or block per method.
type fakeDriver struct {
	mu        sync.Mutex
	calls     []string
	otps      []string
	opened    int
	closed    int
	failOn    map[string]error
	panicOn   string
	gates     map[string]*gate
	acceptOTP string
	input     InputRequest
	closedCh  chan struct{}
	closeOnce sync.Once
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		failOn:   make(map[string]error),
		gates:    make(map[string]*gate),
		closedCh: make(chan struct{}),
		input:    InputRequest{Kind: "otp", Channel: "sms"},
	}
}

func (d *fakeDriver) failAt(method string, err error) *fakeDriver {
	d.failOn[method] = err
	return d
}

func (d *fakeDriver) blockAt(method string) *gate {
	g := newGate()
	d.gates[method] = g
	return g
}

func (d *fakeDriver) call(ctx context.Context, method string) error {
	d.mu.Lock()
	d.calls = append(d.calls, method)
	err := d.failOn[method]
	g := d.gates[method]
	panicking := d.panicOn == method
	d.mu.Unlock()

	if panicking {
		panic("driver exploded in " + method)
	}
	if g != nil {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		case <-d.closedCh:
			return errors.New("browser closed")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return err
}

func (d *fakeDriver) Open(ctx context.Context) error {
	if err := d.call(ctx, "open"); err != nil {
		return err
	}
	d.mu.Lock()
	d.opened++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	return d.call(ctx, "navigate")
}

func (d *fakeDriver) FillForm(ctx context.Context, data FormData) error {
	return d.call(ctx, "fill")
}

func (d *fakeDriver) WaitForHumanInput(ctx context.Context) (InputRequest, error) {
	if err := d.call(ctx, "await"); err != nil {
		return InputRequest{}, err
	}
	return d.input, nil
}

func (d *fakeDriver) SubmitOTP(ctx context.Context, otp string) error {
	if err := d.call(ctx, "otp"); err != nil {
		return err
	}
	d.mu.Lock()
	d.otps = append(d.otps, otp)
	accept := d.acceptOTP
	d.mu.Unlock()
	if accept != "" && otp != accept {
		return ErrOTPRejected
	}
	return nil
}

func (d *fakeDriver) Finalize(ctx context.Context) error {
	return d.call(ctx, "finalize")
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	d.closeOnce.Do(func() { close(d.closedCh) })
	return nil
}

func (d *fakeDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *fakeDriver) submitted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.otps...)
}

func (d *fakeDriver) recordedCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// countingStore counts license updates.
type countingStore struct {
	*license.MemoryStore
	mu      sync.Mutex
	updates int
}

func (c *countingStore) UpdateLicenseStatus(ctx context.Context, businessID, licenseType string, status license.Status, appliedAt *time.Time) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.MemoryStore.UpdateLicenseStatus(ctx, businessID, licenseType, status, appliedAt)
}

func (c *countingStore) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

const testOwner = "user-1"

func seedBusiness(t *testing.T, store license.Store, owner string) *license.Business {
	t.Helper()
	b := &license.Business{
		OwnerID:  owner,
		Name:     "Sharma Traders",
		Type:     "Proprietorship",
		Industry: "Retail",
		Location: license.Location{Address: "12 MG Road", City: "Pune", State: "Maharashtra", Pincode: "411001"},
		Contact:  license.Contact{Email: "owner@sharma.example", Phone: "+919800000001"},
		RequiredLicenses: []license.License{
			{Type: "GST Registration", Department: "GSTN"},
			{Type: "MSME Registration", Department: "Ministry of MSME"},
		},
	}
	require.NoError(t, store.SaveBusiness(context.Background(), b))
	return b
}

// harness wires an orchestrator to fake drivers handed out in creation order.
type harness struct {
	t        *testing.T
	orch     *Orchestrator
	store    *countingStore
	business *license.Business

	mu      sync.Mutex
	drivers []*fakeDriver
	queue   []*fakeDriver
	factErr error
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{t: t, store: &countingStore{MemoryStore: license.NewMemoryStore()}}
	h.business = seedBusiness(t, h.store, testOwner)

	cfg := config.DefaultConfig().Automation
	cfg.SweepInterval = 0
	cfg.OTPRateEvery = 0

	opts := Options{
		Store:     h.store,
		NewDriver: h.newDriver,
		Config:    cfg,
		Logger:    logging.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	orch, err := New(opts)
	require.NoError(t, err)
	h.orch = orch
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return h
}

// prepare queues the driver returned by the next Create.
func (h *harness) prepare(d *fakeDriver) *fakeDriver {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, d)
	return d
}

func (h *harness) failFactory(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factErr = err
}

func (h *harness) newDriver(kind LicenseKind) (Driver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.factErr != nil {
		return nil, h.factErr
	}
	var d *fakeDriver
	if len(h.queue) > 0 {
		d, h.queue = h.queue[0], h.queue[1:]
	} else {
		d = newFakeDriver()
	}
	h.drivers = append(h.drivers, d)
	return d, nil
}

func (h *harness) create(kind LicenseKind) string {
	h.t.Helper()
	res, err := h.orch.Create(context.Background(), testOwner, kind)
	require.NoError(h.t, err)
	return res.SessionID
}

func (h *harness) waitState(id string, want State) Snapshot {
	h.t.Helper()
	var snap Snapshot
	require.Eventually(h.t, func() bool {
		s, err := h.orch.Status(testOwner, id)
		if err != nil {
			return false
		}
		snap = s
		return s.State == want
	}, 3*time.Second, 5*time.Millisecond, "session %s never reached %s", id, want)
	return snap
}

// waitSettled waits until the session is in want and no runner is active,
// so its driver has been released and its outcome recorded.
func (h *harness) waitSettled(id string, want State) Snapshot {
	h.t.Helper()
	s, err := h.orch.Registry().Get(id)
	require.NoError(h.t, err)
	require.Eventually(h.t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.state == want && !s.running
	}, 3*time.Second, 5*time.Millisecond, "session %s never settled in %s", id, want)
	return s.Snapshot()
}

func (h *harness) license(licenseType string) license.License {
	h.t.Helper()
	b, err := h.store.FindByID(context.Background(), h.business.ID)
	require.NoError(h.t, err)
	l, ok := b.License(licenseType)
	require.True(h.t, ok)
	return l
}

func labels(log []StepLogEntry) []string {
	out := make([]string, len(log))
	for i, e := range log {
		out[i] = e.Label
	}
	return out
}

// waitEntered waits until a blocked driver call has started.
func waitEntered(t *testing.T, g *gate) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("driver call never started")
	}
}
