// internal/agent/session_test.go
package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func newSessionStore(t *testing.T, maxSessions int) *SessionStore {
	t.Helper()
	return NewSessionStore(time.Minute, time.Minute, maxSessions, zaptest.NewLogger(t))
}

func TestSessionStoreRemembersEntities(t *testing.T) {
	s := newSessionStore(t, 16)

	s.Update("s1", "service", "auth-service")
	s.Update("s1", "namespace", "staging")
	s.Update("s2", "service", "billing")

	ctx := s.Get("s1")
	assert.Equal(t, "auth-service", ctx.Entities["service"])
	assert.Equal(t, "staging", ctx.Entities["namespace"])
	assert.Equal(t, "billing", s.Get("s2").Entities["service"])
}

func TestSessionStoreIgnoresEmptyValues(t *testing.T) {
	s := newSessionStore(t, 16)

	s.Update("s1", "service", "")
	assert.Empty(t, s.Get("s1").Entities)
}

func TestSessionStoreGetSnapshotIsACopy(t *testing.T) {
	s := newSessionStore(t, 16)

	s.Update("s1", "service", "auth-service")
	snap := s.Get("s1")
	snap.Entities["service"] = "tampered"

	assert.Equal(t, "auth-service", s.Get("s1").Entities["service"])
}

func TestSessionStoreLazyExpiry(t *testing.T) {
	s := newSessionStore(t, 16)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Update("s1", "service", "auth-service")
	current = current.Add(2 * time.Minute)

	// An expired session reads back as fresh and empty.
	assert.Empty(t, s.Get("s1").Entities)
}

func TestSessionStoreTouchExtendsTTL(t *testing.T) {
	s := newSessionStore(t, 16)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Update("s1", "service", "auth-service")
	current = current.Add(45 * time.Second)
	s.Touch("s1")
	current = current.Add(45 * time.Second)

	assert.Equal(t, "auth-service", s.Get("s1").Entities["service"])
}

func TestSessionStoreReset(t *testing.T) {
	s := newSessionStore(t, 16)

	s.Update("s1", "service", "auth-service")
	s.Reset("s1")
	assert.Empty(t, s.Get("s1").Entities)
}

func TestSessionStoreEvictsOldestAtCapacity(t *testing.T) {
	s := newSessionStore(t, 2)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Update("oldest", "service", "a")
	current = current.Add(time.Second)
	s.Update("newer", "service", "b")
	current = current.Add(time.Second)
	s.Update("newest", "service", "c")

	s.mu.Lock()
	_, oldestAlive := s.sessions["oldest"]
	_, newestAlive := s.sessions["newest"]
	s.mu.Unlock()
	assert.False(t, oldestAlive, "the entry closest to expiry is evicted")
	assert.True(t, newestAlive)
}

func TestSessionStoreEvictionSparesBusySessions(t *testing.T) {
	s := newSessionStore(t, 1)

	s.Update("busy", "service", "a")
	lock := s.execLock("busy")
	lock.Lock()
	defer lock.Unlock()

	// Creating a second session at capacity must not evict the busy one;
	// its serialization lock is still in force.
	s.Update("fresh", "service", "b")

	s.mu.Lock()
	_, busyAlive := s.sessions["busy"]
	_, freshAlive := s.sessions["fresh"]
	s.mu.Unlock()
	assert.True(t, busyAlive, "a session with an in-flight execution must survive eviction")
	assert.True(t, freshAlive)

	// The lock handed out for the busy session is still the live one, so a
	// second request keeps queueing behind the first.
	assert.False(t, s.execLock("busy").TryLock())
}

func TestSessionStoreHoldsExecLockDetectsReplacement(t *testing.T) {
	s := newSessionStore(t, 16)

	lock := s.execLock("a")
	lock.Lock()
	assert.True(t, s.holdsExecLock("a", lock))

	// Once the entry is dropped, the old lock no longer serializes the
	// session and callers must re-acquire.
	s.Reset("a")
	assert.False(t, s.holdsExecLock("a", lock))
	lock.Unlock()

	fresh := s.execLock("a")
	assert.True(t, s.holdsExecLock("a", fresh))
	assert.False(t, s.holdsExecLock("missing", fresh))
}

func TestSessionSweepSkipsBusySessions(t *testing.T) {
	s := newSessionStore(t, 16)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Update("busy", "service", "a")
	s.Update("idle", "service", "b")

	lock := s.execLock("busy")
	lock.Lock()
	defer lock.Unlock()

	current = current.Add(2 * time.Minute)
	s.sweep()

	s.mu.Lock()
	_, busyAlive := s.sessions["busy"]
	_, idleAlive := s.sessions["idle"]
	s.mu.Unlock()
	assert.True(t, busyAlive, "a session with an in-flight execution must survive the sweep")
	assert.False(t, idleAlive)
}

func TestSessionStoreRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := NewSessionStore(time.Minute, 10*time.Millisecond, 16, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSessionStoreExportRestore(t *testing.T) {
	s := newSessionStore(t, 16)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Update("live", "service", "auth-service")
	s.Update("live", "namespace", "prod")
	current = current.Add(2 * time.Minute)
	s.Update("fresh", "service", "billing")

	// "live" expired before the export; only "fresh" survives the round
	// trip into a new store.
	restored := newSessionStore(t, 16)
	restored.now = s.now
	restored.Restore(s.Export())

	assert.Empty(t, restored.Get("live").Entities)
	assert.Equal(t, "billing", restored.Get("fresh").Entities["service"])
}

func TestPendingStoreExportRestore(t *testing.T) {
	p := NewPendingStore(time.Minute)
	current := time.Now()
	p.now = func() time.Time { return current }

	stale := p.Put("s1", Intent{Action: "restart_service"})
	current = current.Add(2 * time.Minute)
	live := p.Put("s1", Intent{Action: "restart_service", Parameters: map[string]string{"service": "auth-service"}})

	// A restored token redeems exactly like the original; expired ones are
	// dropped on the way in.
	restored := NewPendingStore(time.Minute)
	restored.now = p.now
	restored.Restore(p.Export())

	_, err := restored.Redeem(stale, "s1")
	assert.ErrorIs(t, err, ErrConfirmationExpired)

	got, err := restored.Redeem(live, "s1")
	require.NoError(t, err)
	assert.Equal(t, "auth-service", got.Parameters["service"])
}

func TestPendingStoreRedeemIsOneShot(t *testing.T) {
	p := NewPendingStore(time.Minute)
	intent := Intent{Action: "restart_service", Parameters: map[string]string{"service": "auth-service"}}

	token := p.Put("s1", intent)
	require.NotEmpty(t, token)

	got, err := p.Redeem(token, "s1")
	require.NoError(t, err)
	assert.Equal(t, intent.Action, got.Action)
	assert.Equal(t, "auth-service", got.Parameters["service"])

	_, err = p.Redeem(token, "s1")
	assert.ErrorIs(t, err, ErrConfirmationExpired)
}

func TestPendingStoreRejectsWrongSession(t *testing.T) {
	p := NewPendingStore(time.Minute)
	token := p.Put("s1", Intent{Action: "restart_service"})

	_, err := p.Redeem(token, "someone-else")
	require.ErrorIs(t, err, ErrConfirmationExpired)

	// The token survives a mismatched redeem attempt.
	_, err = p.Redeem(token, "s1")
	assert.NoError(t, err)
}

func TestPendingStoreExpiry(t *testing.T) {
	p := NewPendingStore(time.Minute)
	current := time.Now()
	p.now = func() time.Time { return current }

	token := p.Put("s1", Intent{Action: "restart_service"})
	current = current.Add(2 * time.Minute)

	_, err := p.Redeem(token, "s1")
	assert.ErrorIs(t, err, ErrConfirmationExpired)
}

func TestPendingStoreCancel(t *testing.T) {
	p := NewPendingStore(time.Minute)
	token := p.Put("s1", Intent{Action: "restart_service"})

	assert.False(t, p.Cancel(token, "other"), "cancel requires the owning session")
	assert.True(t, p.Cancel(token, "s1"))
	assert.False(t, p.Cancel(token, "s1"), "a cancelled token is gone")
}

func TestPendingStoreSweep(t *testing.T) {
	p := NewPendingStore(time.Minute)
	current := time.Now()
	p.now = func() time.Time { return current }

	expired := p.Put("s1", Intent{Action: "restart_service"})
	current = current.Add(2 * time.Minute)
	live := p.Put("s1", Intent{Action: "get_logs"})

	assert.Equal(t, 1, p.Sweep())

	_, err := p.Redeem(expired, "s1")
	assert.ErrorIs(t, err, ErrConfirmationExpired)
	_, err = p.Redeem(live, "s1")
	assert.NoError(t, err)
}
