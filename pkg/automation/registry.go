package automation

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/regpilot/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const registryShards = 32

type registryShard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Registry is the concurrent id → session store. Sessions hash to one of a
// fixed set of shards; the shard lock guards membership only and session
// fields are guarded by the session's own mutex.
type Registry struct {
	shards [registryShards]*registryShard
	now    func() time.Time
}

// NewRegistry creates an empty registry. A nil clock uses time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := &Registry{now: now}
	for i := range r.shards {
		r.shards[i] = &registryShard{sessions: make(map[string]*Session)}
	}
	return r
}

func (r *Registry) shard(id string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%registryShards]
}

// newSessionParams holds what Create needs beyond the owner and kind.
type newSessionParams struct {
	businessRef string
	form        FormData
	driver      Driver
	limiter     *rate.Limiter
	emit        func(*types.SessionEvent)
}

// Create allocates an id and inserts a session in the initializing state.
func (r *Registry) Create(ownerID string, kind LicenseKind, businessRef string, driver Driver) *Session {
	return r.create(ownerID, kind, newSessionParams{businessRef: businessRef, driver: driver})
}

func (r *Registry) create(ownerID string, kind LicenseKind, p newSessionParams) *Session {
	s := &Session{
		id:          uuid.New().String(),
		ownerID:     ownerID,
		kind:        kind,
		businessRef: p.businessRef,
		form:        p.form,
		startedAt:   r.now(),
		now:         r.now,
		state:       StateInitializing,
		driver:      p.driver,
		limiter:     p.limiter,
		emit:        p.emit,
	}

	sh := r.shard(s.id)
	sh.mu.Lock()
	sh.sessions[s.id] = s
	sh.mu.Unlock()
	return s
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	sh := r.shard(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// all returns every session, in no particular order.
func (r *Registry) all() []*Session {
	var out []*Session
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// ownedBy returns the sessions of one owner.
func (r *Registry) ownedBy(ownerID string) []*Session {
	var out []*Session
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			if s.ownerID == ownerID {
				out = append(out, s)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// ListByOwner returns summaries of the owner's sessions, oldest first.
func (r *Registry) ListByOwner(ownerID string) []Summary {
	sessions := r.ownedBy(ownerID)
	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, s.summaryLocked())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// removable reports whether s may leave the registry. Caller holds s.mu.
func removable(s *Session) bool {
	return s.state.IsTerminal() && s.driver == nil && !s.running
}

// Remove deletes a terminal session whose driver has been released.
func (r *Registry) Remove(id string) error {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.mu.Lock()
	ok = removable(s)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionActive, id)
	}
	delete(sh.sessions, id)
	return nil
}

// Evict removes removable sessions that finished before cutoff and returns
// how many were removed.
func (r *Registry) Evict(cutoff time.Time) int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			s.mu.Lock()
			expired := removable(s) && s.finishedAt.Before(cutoff)
			s.mu.Unlock()
			if expired {
				delete(sh.sessions, id)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}
