// internal/plugins/backend/runner_test.go
package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opspilot/opspilot-cli/internal/config"
)

func TestRunCapturesStdout(t *testing.T) {
	r := NewExecRunner(config.BackendsConfig{}, zaptest.NewLogger(t))

	out, err := r.Run(context.Background(), "test", []string{"echo", "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestRunReportsStderrOnFailure(t *testing.T) {
	r := NewExecRunner(config.BackendsConfig{}, zaptest.NewLogger(t))

	_, err := r.Run(context.Background(), "test", []string{"sh", "-c", "echo boom >&2; exit 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	r := NewExecRunner(config.BackendsConfig{}, zaptest.NewLogger(t))

	_, err := r.Run(context.Background(), "test", nil)
	require.Error(t, err)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	r := NewExecRunner(config.BackendsConfig{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "test", []string{"sleep", "5"})
	require.Error(t, err)
}

func TestRunThrottlesConfiguredBackend(t *testing.T) {
	cfg := config.BackendsConfig{Limits: map[string]config.BackendConfig{
		"slow": {RateLimit: 20, Burst: 1},
	}}
	r := NewExecRunner(cfg, zaptest.NewLogger(t))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := r.Run(context.Background(), "slow", []string{"true"})
		require.NoError(t, err)
	}
	// Burst of one at 20/s means the second and third calls each wait
	// roughly 50ms for a token.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "kubectl get pods", Render([]string{"kubectl", "get", "pods"}))
}
