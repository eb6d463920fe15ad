// internal/nlp/factory.go
package nlp

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/config"
)

// NewDrafter is a factory that creates a Drafter based on the configuration.
func NewDrafter(cfg config.LLMConfig, logger *zap.Logger) (Drafter, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiDrafter(cfg, logger)
	case config.ProviderRules:
		return NewRulesDrafter(logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported llm provider configured: %q. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderRules)
	}
}
