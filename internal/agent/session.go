// internal/agent/session.go
package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sessionEntry pairs a session's conversational memory with the lock that
// serializes executions for that session. The exec lock is separate from the
// store lock so one busy session never blocks access to the others.
type sessionEntry struct {
	execMu    sync.Mutex
	entities  map[string]string
	expiresAt time.Time
}

// SessionStore holds short-lived per-conversation memory used for pronoun
// and reference resolution. Entries expire after their TTL; an expired
// session behaves exactly like a fresh one.
type SessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*sessionEntry
	ttl         time.Duration
	sweepPeriod time.Duration
	maxSessions int
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionStore creates a store with the given TTL and capacity bound.
func NewSessionStore(ttl, sweepPeriod time.Duration, maxSessions int, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		sessions:    make(map[string]*sessionEntry),
		ttl:         ttl,
		sweepPeriod: sweepPeriod,
		maxSessions: maxSessions,
		logger:      logger.Named("session_store"),
		now:         time.Now,
	}
}

// entry returns the live entry for a session, creating a fresh one when the
// session is unknown or its TTL elapsed. Callers must hold s.mu.
func (s *SessionStore) entry(sessionID string) *sessionEntry {
	e, ok := s.sessions[sessionID]
	if ok && s.now().Before(e.expiresAt) {
		return e
	}
	if ok {
		// Expired: reuse the exec lock so an in-flight holder is not
		// orphaned, but drop the remembered entities.
		e.entities = make(map[string]string)
		e.expiresAt = s.now().Add(s.ttl)
		return e
	}
	if len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}
	e = &sessionEntry{
		entities:  make(map[string]string),
		expiresAt: s.now().Add(s.ttl),
	}
	s.sessions[sessionID] = e
	return e
}

// evictOldestLocked removes the entry closest to expiry to make room. An
// entry whose exec lock is held has a request in flight and is never
// evicted; when every entry is busy the store briefly exceeds its capacity
// and the sweep catches up later.
func (s *SessionStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.sessions {
		if !e.execMu.TryLock() {
			continue
		}
		e.execMu.Unlock()
		if oldestID == "" || e.expiresAt.Before(oldest) {
			oldestID = id
			oldest = e.expiresAt
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

// Get returns a snapshot of the session's context, creating the session with
// empty entities and a fresh TTL if absent or expired.
func (s *SessionStore) Get(sessionID string) SessionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(sessionID)
	entities := make(map[string]string, len(e.entities))
	for k, v := range e.entities {
		entities[k] = v
	}
	return SessionContext{
		ID:        sessionID,
		Entities:  entities,
		ExpiresAt: e.expiresAt,
	}
}

// Update remembers one entity value for the session. Only the Execution
// Engine calls this, and only after a successful execution.
func (s *SessionStore) Update(sessionID, entityType, value string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(sessionID)
	e.entities[entityType] = value
}

// Touch resets the session's TTL. Called on every successful interaction.
func (s *SessionStore) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(sessionID)
	e.expiresAt = s.now().Add(s.ttl)
}

// Reset discards the session's memory entirely.
func (s *SessionStore) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// SessionSnapshot is the serializable form of one session's memory, used to
// carry context across one-shot CLI invocations.
type SessionSnapshot struct {
	ID        string            `json:"id"`
	Entities  map[string]string `json:"entities"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Export returns a snapshot of every live session.
func (s *SessionStore) Export() []SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	snaps := make([]SessionSnapshot, 0, len(s.sessions))
	for id, e := range s.sessions {
		if now.After(e.expiresAt) {
			continue
		}
		entities := make(map[string]string, len(e.entities))
		for k, v := range e.entities {
			entities[k] = v
		}
		snaps = append(snaps, SessionSnapshot{ID: id, Entities: entities, ExpiresAt: e.expiresAt})
	}
	return snaps
}

// Restore loads previously exported sessions, dropping any that expired in
// the meantime. Intended for startup, before the store takes traffic.
func (s *SessionStore) Restore(snaps []SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, snap := range snaps {
		if snap.ID == "" || now.After(snap.ExpiresAt) {
			continue
		}
		if len(s.sessions) >= s.maxSessions {
			s.evictOldestLocked()
		}
		entities := make(map[string]string, len(snap.Entities))
		for k, v := range snap.Entities {
			entities[k] = v
		}
		s.sessions[snap.ID] = &sessionEntry{entities: entities, expiresAt: snap.ExpiresAt}
	}
}

// execLock returns the lock that serializes executions for one session.
// Requests for different sessions proceed fully in parallel; a second
// request for a busy session queues on this lock.
func (s *SessionStore) execLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &s.entry(sessionID).execMu
}

// holdsExecLock reports whether mu is still the serialization lock for the
// session. The entry can be evicted or swept between execLock returning and
// the caller acquiring the lock; callers re-check after locking and retry
// when the entry was replaced underneath them.
func (s *SessionStore) holdsExecLock(sessionID string, mu *sync.Mutex) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	return ok && &e.execMu == mu
}

// Run sweeps expired sessions until the context is cancelled. Expiry is also
// checked lazily on access, so the sweep only bounds memory growth.
func (s *SessionStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (s *SessionStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, e := range s.sessions {
		if !now.After(e.expiresAt) {
			continue
		}
		// Never sweep a session with an in-flight execution; its entry owns
		// the serialization lock.
		if !e.execMu.TryLock() {
			continue
		}
		e.execMu.Unlock()
		delete(s.sessions, id)
		removed++
	}
	if removed > 0 {
		s.logger.Debug("Swept expired sessions", zap.Int("removed", removed), zap.Int("remaining", len(s.sessions)))
	}
}
