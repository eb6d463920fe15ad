// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/audit"
	"github.com/opspilot/opspilot-cli/internal/config"
	"github.com/opspilot/opspilot-cli/internal/nlp"
	"github.com/opspilot/opspilot-cli/internal/policy"
)

// stubPlugin serves the troubleshooting vocabulary against a fake backend.
type stubPlugin struct{}

func (stubPlugin) Name() string                  { return "troubleshooting" }
func (stubPlugin) Category() agent.TaskCategory  { return agent.CategoryTroubleshooting }
func (stubPlugin) RequiredPermissions() []string { return nil }

func (stubPlugin) Vocabulary() []agent.ActionSpec {
	return []agent.ActionSpec{
		{
			Action:         "get_logs",
			Category:       agent.CategoryTroubleshooting,
			Idempotent:     true,
			RequiredParams: []string{"service"},
			EntityParams:   []string{"service"},
		},
		{
			Action:         "restart_service",
			Category:       agent.CategoryTroubleshooting,
			Mutating:       true,
			RequiredParams: []string{"service"},
			EntityParams:   []string{"service"},
		},
	}
}

func (p stubPlugin) Match(intent agent.Intent) int {
	return agent.ScoreIntent(intent, agent.CategoryTroubleshooting, p.Vocabulary())
}

func (stubPlugin) DryRun(_ context.Context, intent agent.Intent) (*agent.Preview, error) {
	return &agent.Preview{
		Summary: "would " + intent.Action,
		Command: "kubectl " + intent.Action,
	}, nil
}

func (stubPlugin) Execute(_ context.Context, intent agent.Intent) (*agent.Outcome, error) {
	return &agent.Outcome{Output: "done: " + intent.Action}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *audit.MemorySink) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	pol, err := policy.New(config.PolicyConfig{
		RequireConfirmation: true,
		DryRunDefault:       false,
	})
	require.NoError(t, err)

	registry := agent.NewRegistry(logger)
	require.NoError(t, registry.Register(stubPlugin{}))

	resolver := agent.NewResolver(nlp.NewRulesDrafter(logger), registry, 0.5, logger)
	sessions := agent.NewSessionStore(time.Minute, time.Minute, 16, logger)
	sink := audit.NewMemorySink()
	engCfg := config.EngineConfig{
		MaxInFlight:    4,
		PluginTimeout:  2 * time.Second,
		ConfirmTTL:     time.Minute,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Actor:          "tester",
	}
	engine := agent.NewEngine(engCfg, resolver, registry, agent.NewGate(policy.NewStore(pol)),
		sessions, agent.NewPendingStore(engCfg.ConfirmTTL), sink, nil, logger)

	srv := New(engine, config.ServerConfig{Listen: "127.0.0.1:0", ShutdownTimeout: time.Second}, logger)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, sink
}

func postCommand(t *testing.T, ts *httptest.Server, body string) (*http.Response, resultEnvelope) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/command", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env resultEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCommandExecutesReadOnlyAction(t *testing.T) {
	ts, sink := newTestServer(t)

	resp, env := postCommand(t, ts, `{"text":"get logs for auth-service","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "s1", env.SessionID)
	assert.Equal(t, "done: get_logs", env.Output)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeExecuted, records[0].Outcome)
}

func TestCommandGeneratesSessionID(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := postCommand(t, ts, `{"text":"get logs for auth-service"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, env.SessionID)
}

func TestCommandDryRunFlag(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := postCommand(t, ts, `{"text":"get logs for auth-service","session_id":"s1","dry_run":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.True(t, env.DryRun)
	assert.Contains(t, env.Output, "kubectl get_logs")
}

func TestMutatingCommandReturnsPendingThenConfirms(t *testing.T) {
	ts, sink := newTestServer(t)

	resp, env := postCommand(t, ts, `{"text":"restart auth-service","session_id":"s1"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, env.PendingConfirmation)
	require.NotEmpty(t, env.ConfirmToken)

	confirmResp, err := http.Post(ts.URL+"/v1/confirm/"+env.ConfirmToken+"?session_id=s1", "application/json", nil)
	require.NoError(t, err)
	defer confirmResp.Body.Close()
	assert.Equal(t, http.StatusOK, confirmResp.StatusCode)

	var confirmed resultEnvelope
	require.NoError(t, json.NewDecoder(confirmResp.Body).Decode(&confirmed))
	assert.True(t, confirmed.Success)
	assert.Equal(t, "done: restart_service", confirmed.Output)

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, audit.OutcomePending, records[0].Outcome)
	assert.Equal(t, audit.OutcomeExecuted, records[1].Outcome)
}

func TestConfirmWrongSessionIsRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	_, env := postCommand(t, ts, `{"text":"restart auth-service","session_id":"s1"}`)
	require.NotEmpty(t, env.ConfirmToken)

	resp, err := http.Post(ts.URL+"/v1/confirm/"+env.ConfirmToken+"?session_id=other", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestCancelPendingConfirmation(t *testing.T) {
	ts, _ := newTestServer(t)

	_, env := postCommand(t, ts, `{"text":"restart auth-service","session_id":"s1"}`)
	require.NotEmpty(t, env.ConfirmToken)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/confirm/"+env.ConfirmToken+"?session_id=s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The token is one shot: a second cancel finds nothing.
	again, err := http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestUnknownIntentIsUnprocessable(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := postCommand(t, ts, `{"text":"make me a sandwich","session_id":"s1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, agent.ErrCodeUnknownIntent, env.ErrorCode)
}

func TestCommandRequestValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/command", "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing text", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/command", "application/json", bytes.NewBufferString(`{"session_id":"s1"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("confirm without session", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/confirm/some-token", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
