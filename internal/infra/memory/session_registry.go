package memory

import (
	"context"
	"sync"
	"time"

	"negopro-questionnaire/internal/app"
)

// SessionRegistry is an in-memory implementation of app.SessionRepository.
// With a positive idle TTL, sessions untouched for longer are evicted and
// closed by Sweep.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*registryEntry
	idle     time.Duration
	now      func() time.Time
	onEvict  func(id string)
}

type registryEntry struct {
	session  *app.Session
	lastSeen time.Time
}

func NewSessionRegistry(idle time.Duration) *SessionRegistry {
	return NewSessionRegistryWithClock(idle, time.Now)
}

func NewSessionRegistryWithClock(idle time.Duration, now func() time.Time) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*registryEntry),
		idle:     idle,
		now:      now,
	}
}

// OnEvict registers fn to run for every session removed by Sweep.
func (r *SessionRegistry) OnEvict(fn func(id string)) {
	r.mu.Lock()
	r.onEvict = fn
	r.mu.Unlock()
}

func (r *SessionRegistry) GetOrCreate(id string, create func(id string) *app.Session) (*app.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = r.now()
		return e.session, false
	}
	session := create(id)
	r.sessions[id] = &registryEntry{session: session, lastSeen: r.now()}
	return session, true
}

func (r *SessionRegistry) Get(id string) (*app.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.session, true
}

func (r *SessionRegistry) Delete(id string) (*app.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return e.session, true
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts and closes sessions idle for longer than the idle TTL and
// returns how many were removed.
func (r *SessionRegistry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	r.mu.Lock()
	cutoff := r.now().Add(-r.idle)
	var evicted []string
	var sessions []*app.Session
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
			sessions = append(sessions, e.session)
		}
	}
	onEvict := r.onEvict
	r.mu.Unlock()

	for i, session := range sessions {
		session.Close()
		if onEvict != nil {
			onEvict(evicted[i])
		}
	}
	return len(sessions)
}

// Run sweeps every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, every time.Duration) {
	if r.idle <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
