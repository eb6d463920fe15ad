// File: internal/service/runtime_test.go
package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opspilot/opspilot-cli/internal/agent"
)

func newRuntimeComponents(t *testing.T, path string) *Components {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return &Components{
		Sessions:    agent.NewSessionStore(time.Hour, time.Hour, 16, logger),
		pending:     agent.NewPendingStore(time.Hour),
		runtimePath: path,
		logger:      logger,
	}
}

func TestRuntimeSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.json")

	first := newRuntimeComponents(t, path)
	first.Sessions.Update("s1", "service", "auth-service")
	intent := agent.Intent{Action: "restart_service", Parameters: map[string]string{"service": "auth-service"}}
	token := first.pending.Put("s1", intent)
	first.saveRuntime()

	// A second process builds fresh stores and picks up where the first
	// left off: the token redeems and the session remembers its entities.
	second := newRuntimeComponents(t, path)
	second.loadRuntime()

	assert.Equal(t, "auth-service", second.Sessions.Get("s1").Entities["service"])
	got, err := second.pending.Redeem(token, "s1")
	require.NoError(t, err)
	assert.Equal(t, "restart_service", got.Action)
	assert.Equal(t, "auth-service", got.Parameters["service"])
}

func TestRuntimeSnapshotMissingFileIsFirstRun(t *testing.T) {
	c := newRuntimeComponents(t, filepath.Join(t.TempDir(), "runtime.json"))
	c.loadRuntime()
	assert.Empty(t, c.Sessions.Export())
}

func TestRuntimeSnapshotCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	c := newRuntimeComponents(t, path)
	c.loadRuntime()
	assert.Empty(t, c.Sessions.Export())
	assert.Empty(t, c.pending.Export())
}

func TestRuntimeSnapshotDisabledByEmptyPath(t *testing.T) {
	c := newRuntimeComponents(t, "")
	c.Sessions.Update("s1", "service", "auth-service")

	// Both directions are no-ops when persistence is unset; in particular
	// loadRuntime must not disturb live state.
	c.saveRuntime()
	c.loadRuntime()
	assert.Equal(t, "auth-service", c.Sessions.Get("s1").Entities["service"])
}
