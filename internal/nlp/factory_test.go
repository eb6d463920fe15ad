// internal/nlp/factory_test.go
package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opspilot/opspilot-cli/internal/config"
)

func TestNewDrafterSelectsProvider(t *testing.T) {
	logger := zaptest.NewLogger(t)

	d, err := NewDrafter(config.LLMConfig{Provider: config.ProviderRules}, logger)
	require.NoError(t, err)
	assert.IsType(t, &RulesDrafter{}, d)

	d, err = NewDrafter(config.LLMConfig{Provider: config.ProviderGemini, APIKey: "k"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &GeminiDrafter{}, d)

	_, err = NewDrafter(config.LLMConfig{Provider: "oracle"}, logger)
	require.Error(t, err)
}
