// internal/agent/resolver_test.go
package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opspilot/opspilot-cli/internal/nlp"
)

func newTestResolver(t *testing.T, drafts map[string]*nlp.Draft) *Resolver {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := NewRegistry(logger)
	plugin := &mockPlugin{
		name:     "troubleshooting",
		category: CategoryTroubleshooting,
		vocab:    testVocabulary(),
	}
	require.NoError(t, registry.Register(plugin))
	return NewResolver(&mockDrafter{drafts: drafts}, registry, 0.5, logger)
}

func emptySession() SessionContext {
	return SessionContext{ID: "s1", Entities: map[string]string{}, ExpiresAt: time.Now().Add(time.Minute)}
}

func TestResolveValidDraft(t *testing.T) {
	r := newTestResolver(t, map[string]*nlp.Draft{
		"Get Logs For AUTH": {
			Category:   "troubleshooting",
			Action:     "GET_LOGS",
			Parameters: map[string]string{"Service": "auth-service"},
			Confidence: 0.9,
		},
	})

	intent, err := r.Resolve(context.Background(), "Get Logs For AUTH", emptySession())
	require.NoError(t, err)
	// Action and parameter keys are normalized to lower case.
	assert.Equal(t, "get_logs", intent.Action)
	assert.Equal(t, CategoryTroubleshooting, intent.Category)
	assert.Equal(t, "auth-service", intent.Parameters["service"])
	assert.InDelta(t, 0.9, intent.Confidence, 1e-9)
}

func TestResolveRejectsLowConfidence(t *testing.T) {
	r := newTestResolver(t, map[string]*nlp.Draft{
		"maybe logs": {
			Action:     "get_logs",
			Parameters: map[string]string{"service": "auth-service"},
			Confidence: 0.3,
		},
	})

	_, err := r.Resolve(context.Background(), "maybe logs", emptySession())
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestResolveRejectsActionOutsideVocabulary(t *testing.T) {
	r := newTestResolver(t, map[string]*nlp.Draft{
		"rm -rf /": {
			Action:     "delete_everything",
			Confidence: 0.99,
		},
	})

	// A confident draft for an undeclared action must never dispatch.
	_, err := r.Resolve(context.Background(), "rm -rf /", emptySession())
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestResolveVocabularyCategoryWins(t *testing.T) {
	r := newTestResolver(t, map[string]*nlp.Draft{
		"restart auth-service": {
			Category:   "cicd",
			Action:     "restart_service",
			Parameters: map[string]string{"service": "auth-service"},
			Confidence: 0.8,
		},
	})

	intent, err := r.Resolve(context.Background(), "restart auth-service", emptySession())
	require.NoError(t, err)
	assert.Equal(t, CategoryTroubleshooting, intent.Category)
}

func TestResolvePlaceholderSubstitution(t *testing.T) {
	r := newTestResolver(t, map[string]*nlp.Draft{
		"restart it": {
			Action:     "restart_service",
			Parameters: map[string]string{"service": "it"},
			Confidence: 0.8,
		},
		"restart that service": {
			Action:     "restart_service",
			Parameters: map[string]string{"service": "that service"},
			Confidence: 0.8,
		},
	})

	session := emptySession()
	session.Entities["service"] = "auth-service"

	for _, text := range []string{"restart it", "restart that service"} {
		intent, err := r.Resolve(context.Background(), text, session)
		require.NoError(t, err, text)
		assert.Equal(t, "auth-service", intent.Parameters["service"], text)
	}
}

func TestResolvePlaceholderWithoutContext(t *testing.T) {
	r := newTestResolver(t, map[string]*nlp.Draft{
		"restart it": {
			Action:     "restart_service",
			Parameters: map[string]string{"service": "it"},
			Confidence: 0.8,
		},
	})

	_, err := r.Resolve(context.Background(), "restart it", emptySession())
	assert.ErrorIs(t, err, ErrMissingContext)
}

func TestResolveRequiredParamFallsBackToSession(t *testing.T) {
	r := newTestResolver(t, map[string]*nlp.Draft{
		"show me the logs": {
			Action:     "get_logs",
			Parameters: map[string]string{},
			Confidence: 0.8,
		},
	})

	session := emptySession()
	session.Entities["service"] = "auth-service"

	intent, err := r.Resolve(context.Background(), "show me the logs", session)
	require.NoError(t, err)
	assert.Equal(t, "auth-service", intent.Parameters["service"])

	_, err = r.Resolve(context.Background(), "show me the logs", emptySession())
	assert.ErrorIs(t, err, ErrMissingContext)
}

func TestIsPlaceholder(t *testing.T) {
	for _, v := range []string{"it", "That", "this one", "the same namespace", "LAST", "previous deployment"} {
		assert.True(t, isPlaceholder(v), v)
	}
	for _, v := range []string{"auth-service", "production", "lastpass", "itops", ""} {
		assert.False(t, isPlaceholder(v), v)
	}
}
