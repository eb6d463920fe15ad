package policy

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/opspilot/opspilot-cli/internal/config"
)

// Load builds the startup policy. When cfg.File is set the standalone policy
// file takes precedence over the inline config fields; a file that cannot be
// read or parsed is a fatal startup error.
func Load(cfg config.PolicyConfig) (*Policy, error) {
	if cfg.File == "" {
		return New(cfg)
	}
	fileCfg, err := loadFile(cfg.File)
	if err != nil {
		return nil, err
	}
	return New(*fileCfg)
}

// loadFile parses a standalone policy YAML into a PolicyConfig.
func loadFile(path string) (*config.PolicyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	var cfg config.PolicyConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFromViper is a convenience for tests and tooling that already hold a
// viper instance with a "policy" section.
func LoadFromViper(v *viper.Viper) (*Policy, error) {
	var cfg config.PolicyConfig
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling policy section: %w", err)
	}
	return Load(cfg)
}
