package automation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Create("owner-1", KindTaxRegistration, "biz-1", newFakeDriver())

	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, StateInitializing, got.State())
	assert.Equal(t, "owner-1", got.OwnerID())
	assert.Equal(t, KindTaxRegistration, got.Kind())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	ids := make(chan string, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := r.Create(fmt.Sprintf("owner-%d", i%7), KindSmallEnterprise, "biz", newFakeDriver())
			ids <- s.ID()
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 200, r.Len())
}

func TestRegistry_ListByOwner(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r := NewRegistry(func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Minute)
	})

	first := r.Create("owner-1", KindTaxRegistration, "biz", newFakeDriver())
	r.Create("owner-2", KindTaxRegistration, "biz", newFakeDriver())
	second := r.Create("owner-1", KindSmallEnterprise, "biz", newFakeDriver())

	list := r.ListByOwner("owner-1")
	require.Len(t, list, 2)
	assert.Equal(t, first.ID(), list[0].SessionID)
	assert.Equal(t, second.ID(), list[1].SessionID)
	assert.Nil(t, list[0].FinishedAt)

	assert.Empty(t, r.ListByOwner("nobody"))
}

func TestRegistry_RemoveRequiresReleasedTerminalSession(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Create("owner-1", KindTaxRegistration, "biz", newFakeDriver())

	assert.ErrorIs(t, r.Remove(s.ID()), ErrSessionActive)

	s.mu.Lock()
	require.NoError(t, s.transitionLocked(StateFailed, labelFailed, "boom"))
	s.unlock()
	// terminal but still holding its driver
	assert.ErrorIs(t, r.Remove(s.ID()), ErrSessionActive)

	s.mu.Lock()
	drv := s.takeDriverLocked()
	s.unlock()
	require.NoError(t, drv.Close())

	require.NoError(t, r.Remove(s.ID()))
	_, err := r.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Remove(s.ID()), ErrNotFound)
}

func TestRegistry_Evict(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := NewRegistry(func() time.Time { return now })

	finish := func(s *Session) {
		s.mu.Lock()
		require.NoError(t, s.transitionLocked(StateCancelled, labelCancelled, ""))
		s.takeDriverLocked()
		s.unlock()
	}

	old := r.Create("owner", KindTaxRegistration, "biz", newFakeDriver())
	finish(old)

	now = base.Add(30 * time.Minute)
	recent := r.Create("owner", KindSmallEnterprise, "biz", newFakeDriver())
	finish(recent)

	live := r.Create("owner", KindTaxRegistration, "biz", newFakeDriver())

	assert.Equal(t, 1, r.Evict(base.Add(10*time.Minute)))
	_, err := r.Get(old.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(recent.ID())
	assert.NoError(t, err)

	assert.Equal(t, 1, r.Evict(base.Add(2*time.Hour)))
	_, err = r.Get(live.ID())
	assert.NoError(t, err, "live sessions are never evicted")
	assert.Equal(t, 1, r.Len())
}
