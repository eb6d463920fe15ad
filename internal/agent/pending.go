// internal/agent/pending.go
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pendingIntent struct {
	intent    Intent
	sessionID string
	expiresAt time.Time
}

// PendingStore holds intents awaiting operator confirmation, addressed by
// opaque one-shot tokens. A token redeems at most once; expiry and redeem
// both remove it.
type PendingStore struct {
	mu      sync.Mutex
	pending map[string]pendingIntent
	ttl     time.Duration

	now func() time.Time
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		pending: make(map[string]pendingIntent),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put parks an intent and returns the confirmation token the operator must
// present to run it.
func (p *PendingStore) Put(sessionID string, intent Intent) string {
	token := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[token] = pendingIntent{
		intent:    intent,
		sessionID: sessionID,
		expiresAt: p.now().Add(p.ttl),
	}
	return token
}

// Redeem consumes a token and returns the parked intent. The token must
// exist, must not have expired, and must belong to the presenting session.
func (p *PendingStore) Redeem(token, sessionID string) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.pending[token]
	if !ok {
		return Intent{}, fmt.Errorf("%w: unknown confirmation token", ErrConfirmationExpired)
	}
	if p.now().After(entry.expiresAt) {
		delete(p.pending, token)
		return Intent{}, fmt.Errorf("%w: confirmation token expired", ErrConfirmationExpired)
	}
	if entry.sessionID != sessionID {
		return Intent{}, fmt.Errorf("%w: confirmation token belongs to another session", ErrConfirmationExpired)
	}
	delete(p.pending, token)
	return entry.intent, nil
}

// Cancel drops a pending intent without running it. Reports whether the
// token was live.
func (p *PendingStore) Cancel(token, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.pending[token]
	if !ok || entry.sessionID != sessionID {
		return false
	}
	delete(p.pending, token)
	return true
}

// PendingSnapshot is the serializable form of one parked intent. Tokens are
// opaque to the operator either way, so the snapshot carries them verbatim.
type PendingSnapshot struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	Intent    Intent    `json:"intent"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Export returns a snapshot of every unexpired parked intent.
func (p *PendingStore) Export() []PendingSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	snaps := make([]PendingSnapshot, 0, len(p.pending))
	for token, entry := range p.pending {
		if now.After(entry.expiresAt) {
			continue
		}
		snaps = append(snaps, PendingSnapshot{
			Token:     token,
			SessionID: entry.sessionID,
			Intent:    entry.intent,
			ExpiresAt: entry.expiresAt,
		})
	}
	return snaps
}

// Restore loads previously exported parked intents, dropping any whose
// confirmation window closed in the meantime.
func (p *PendingStore) Restore(snaps []PendingSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for _, snap := range snaps {
		if snap.Token == "" || now.After(snap.ExpiresAt) {
			continue
		}
		p.pending[snap.Token] = pendingIntent{
			intent:    snap.Intent,
			sessionID: snap.SessionID,
			expiresAt: snap.ExpiresAt,
		}
	}
}

// Sweep removes expired tokens. Called periodically by the service's
// background sweeper.
func (p *PendingStore) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	removed := 0
	for token, entry := range p.pending {
		if now.After(entry.expiresAt) {
			delete(p.pending, token)
			removed++
		}
	}
	return removed
}
