// internal/agent/registry_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestScoreIntent(t *testing.T) {
	vocab := []ActionSpec{
		{Action: "get_logs", Category: CategoryTroubleshooting},
		{Action: "restart_service", Category: CategoryTroubleshooting},
	}

	t.Run("action and category match", func(t *testing.T) {
		score := ScoreIntent(Intent{Action: "get_logs", Category: CategoryTroubleshooting}, CategoryTroubleshooting, vocab)
		assert.Equal(t, 15, score)
	})

	t.Run("action match with foreign category", func(t *testing.T) {
		score := ScoreIntent(Intent{Action: "get_logs", Category: CategoryCICD}, CategoryTroubleshooting, vocab)
		assert.Equal(t, 10, score)
	})

	t.Run("unknown action scores zero", func(t *testing.T) {
		score := ScoreIntent(Intent{Action: "launch_rocket", Category: CategoryTroubleshooting}, CategoryTroubleshooting, vocab)
		assert.Zero(t, score)
	})
}

func TestRegistryRejectsDuplicateActions(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	first := &mockPlugin{name: "first", category: CategoryTroubleshooting, vocab: []ActionSpec{
		{Action: "get_logs", Category: CategoryTroubleshooting},
	}}
	second := &mockPlugin{name: "second", category: CategoryCICD, vocab: []ActionSpec{
		{Action: "get_logs", Category: CategoryCICD},
	}}

	require.NoError(t, registry.Register(first))
	err := registry.Register(second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryActionsSorted(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))
	plugin := &mockPlugin{name: "p", category: CategoryTroubleshooting, vocab: []ActionSpec{
		{Action: "restart_service", Category: CategoryTroubleshooting},
		{Action: "get_logs", Category: CategoryTroubleshooting},
		{Action: "health_check", Category: CategoryTroubleshooting},
	}}
	require.NoError(t, registry.Register(plugin))

	assert.Equal(t, []string{"get_logs", "health_check", "restart_service"}, registry.Actions())
}

// fixedScorePlugin overrides Match with a constant claim.
type fixedScorePlugin struct {
	*mockPlugin
	score int
}

func (f *fixedScorePlugin) Match(Intent) int { return f.score }

func TestRegistryResolve(t *testing.T) {
	newPlugin := func(name string, category TaskCategory, actions ...string) *mockPlugin {
		vocab := make([]ActionSpec, 0, len(actions))
		for _, a := range actions {
			vocab = append(vocab, ActionSpec{Action: a, Category: category})
		}
		return &mockPlugin{name: name, category: category, vocab: vocab}
	}

	t.Run("dispatches to the unique best scorer", func(t *testing.T) {
		registry := NewRegistry(zaptest.NewLogger(t))
		tshoot := newPlugin("troubleshooting", CategoryTroubleshooting, "get_logs")
		cicd := newPlugin("cicd", CategoryCICD, "trigger_pipeline")
		require.NoError(t, registry.Register(tshoot))
		require.NoError(t, registry.Register(cicd))

		p, err := registry.Resolve(Intent{Action: "get_logs", Category: CategoryTroubleshooting})
		require.NoError(t, err)
		assert.Equal(t, "troubleshooting", p.Name())
	})

	t.Run("no candidate is an unknown intent", func(t *testing.T) {
		registry := NewRegistry(zaptest.NewLogger(t))
		require.NoError(t, registry.Register(newPlugin("troubleshooting", CategoryTroubleshooting, "get_logs")))

		_, err := registry.Resolve(Intent{Action: "launch_rocket"})
		assert.ErrorIs(t, err, ErrUnknownIntent)
	})

	t.Run("score tie is ambiguous", func(t *testing.T) {
		// Duplicate actions cannot register, so a tie only arises through
		// custom Match implementations that claim foreign intents.
		registry := NewRegistry(zaptest.NewLogger(t))
		a := &fixedScorePlugin{mockPlugin: newPlugin("a", CategoryTroubleshooting, "get_logs"), score: 10}
		b := &fixedScorePlugin{mockPlugin: newPlugin("b", CategoryCICD, "get_events"), score: 10}
		require.NoError(t, registry.Register(a))
		require.NoError(t, registry.Register(b))

		_, err := registry.Resolve(Intent{Action: "get_logs"})
		assert.ErrorIs(t, err, ErrAmbiguousMatch)
	})
}
