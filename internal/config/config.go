// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Policy   PolicyConfig   `mapstructure:"policy" yaml:"policy"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	State    StateConfig    `mapstructure:"state" yaml:"state"`
	Backends BackendsConfig `mapstructure:"backends" yaml:"backends"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	// MaxInFlight caps concurrently executing requests across all sessions.
	MaxInFlight int64 `mapstructure:"max_in_flight" yaml:"max_in_flight"`
	// PluginTimeout is the deadline applied to a single plugin invocation.
	PluginTimeout time.Duration `mapstructure:"plugin_timeout" yaml:"plugin_timeout"`
	// ConfirmTTL is how long a pending confirmation token stays redeemable.
	ConfirmTTL time.Duration `mapstructure:"confirm_ttl" yaml:"confirm_ttl"`
	// MaxRetries bounds automatic retries of idempotent read-only actions.
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	Actor          string        `mapstructure:"actor" yaml:"actor"`
}

// LLMProvider identifies the configured intent drafter backend.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderRules  LLMProvider = "rules"
)

// LLMConfig configures the natural-language collaborator used to draft intents.
type LLMConfig struct {
	Provider      LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model         string        `mapstructure:"model" yaml:"model"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MinConfidence float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// PolicyConfig is the on-disk form of the safety policy.
type PolicyConfig struct {
	RequireConfirmation  bool     `mapstructure:"require_confirmation" yaml:"require_confirmation"`
	DryRunDefault        bool     `mapstructure:"dry_run_default" yaml:"dry_run_default"`
	AllowedOperations    []string `mapstructure:"allowed_operations" yaml:"allowed_operations"`
	RestrictedOperations []string `mapstructure:"restricted_operations" yaml:"restricted_operations"`
	// File, when set, points at a standalone policy YAML that is watched for
	// hot reload. The inline fields above act as the initial value.
	File      string `mapstructure:"file" yaml:"file"`
	HotReload bool   `mapstructure:"hot_reload" yaml:"hot_reload"`
}

// AuditConfig selects and configures the audit sinks.
type AuditConfig struct {
	FilePath    string `mapstructure:"file_path" yaml:"file_path"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"-"`
}

// SessionConfig tunes the conversational context store.
type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	MaxSessions   int           `mapstructure:"max_sessions" yaml:"max_sessions"`
}

// StateConfig configures the persisted operational state file. RuntimePath
// holds the session and pending-confirmation snapshot that lets one-shot
// invocations confirm tokens issued by an earlier process; set it empty to
// keep that state in memory only.
type StateConfig struct {
	Path        string `mapstructure:"path" yaml:"path"`
	BackupDir   string `mapstructure:"backup_dir" yaml:"backup_dir"`
	KeepBackups int    `mapstructure:"keep_backups" yaml:"keep_backups"`
	RuntimePath string `mapstructure:"runtime_path" yaml:"runtime_path"`
}

// BackendConfig holds per-backend throttling settings shared by all plugins
// that call the same external API.
type BackendConfig struct {
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// BackendsConfig maps backend names (kubectl, cloud, cicd, ...) to throttles,
// plus a few backend-wide defaults.
type BackendsConfig struct {
	Kubernetes      KubernetesConfig         `mapstructure:"kubernetes" yaml:"kubernetes"`
	PrometheusURL   string                   `mapstructure:"prometheus_url" yaml:"prometheus_url"`
	AlertmanagerURL string                   `mapstructure:"alertmanager_url" yaml:"alertmanager_url"`
	Limits          map[string]BackendConfig `mapstructure:"limits" yaml:"limits"`
}

// KubernetesConfig carries the kubectl defaults used by the kubernetes plugin.
type KubernetesConfig struct {
	Context   string `mapstructure:"context" yaml:"context"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// ServerConfig configures the optional HTTP API.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "opspilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.max_in_flight", 16)
	v.SetDefault("engine.plugin_timeout", "30s")
	v.SetDefault("engine.confirm_ttl", "15m")
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.retry_base_delay", "250ms")
	v.SetDefault("engine.actor", "operator")

	// -- LLM --
	v.SetDefault("llm.provider", "rules")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "20s")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.min_confidence", 0.5)

	// -- Policy --
	v.SetDefault("policy.require_confirmation", true)
	v.SetDefault("policy.dry_run_default", true)
	v.SetDefault("policy.allowed_operations", []string{})
	v.SetDefault("policy.restricted_operations", []string{})
	v.SetDefault("policy.hot_reload", false)

	// -- Audit --
	v.SetDefault("audit.file_path", defaultPath("audit.jsonl"))

	// -- Session --
	v.SetDefault("session.ttl", "15m")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("session.max_sessions", 1024)

	// -- State --
	v.SetDefault("state.path", defaultPath("state.json"))
	v.SetDefault("state.backup_dir", defaultPath("state_backups"))
	v.SetDefault("state.keep_backups", 5)
	v.SetDefault("state.runtime_path", defaultPath("runtime.json"))

	// -- Backends --
	v.SetDefault("backends.kubernetes.context", "")
	v.SetDefault("backends.kubernetes.namespace", "default")
	v.SetDefault("backends.prometheus_url", "http://localhost:9090")
	v.SetDefault("backends.alertmanager_url", "http://localhost:9093")
	v.SetDefault("backends.limits.kubernetes.rate_limit", 5.0)
	v.SetDefault("backends.limits.kubernetes.burst", 5)
	v.SetDefault("backends.limits.cloud.rate_limit", 2.0)
	v.SetDefault("backends.limits.cloud.burst", 2)
	v.SetDefault("backends.limits.cicd.rate_limit", 2.0)
	v.SetDefault("backends.limits.cicd.burst", 2)
	v.SetDefault("backends.limits.monitoring.rate_limit", 5.0)
	v.SetDefault("backends.limits.monitoring.burst", 5)

	// -- Server --
	v.SetDefault("server.listen", "127.0.0.1:8642")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// defaultPath resolves a file name under ~/.opspilot, falling back to the
// working directory when the home directory cannot be determined.
func defaultPath(name string) string {
	home, err := homedir.Dir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".opspilot", name)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for secrets.
	v.BindEnv("llm.api_key", "OPSPILOT_LLM_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("audit.postgres_url", "OPSPILOT_AUDIT_POSTGRES_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// A configuration that fails validation is fatal at startup: the engine must
// not serve requests with undefined safety semantics.
func (c *Config) Validate() error {
	if c.Engine.MaxInFlight <= 0 {
		return fmt.Errorf("engine.max_in_flight must be a positive integer")
	}
	if c.Engine.PluginTimeout <= 0 {
		return fmt.Errorf("engine.plugin_timeout must be a positive duration")
	}
	if c.Engine.ConfirmTTL <= 0 {
		return fmt.Errorf("engine.confirm_ttl must be a positive duration")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be a positive duration")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.sweep_interval must be a positive duration")
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be a positive integer")
	}
	if c.LLM.MinConfidence < 0 || c.LLM.MinConfidence > 1 {
		return fmt.Errorf("llm.min_confidence must be between 0.0 and 1.0")
	}
	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.provider is %q but no API key is set (OPSPILOT_LLM_API_KEY)", ProviderGemini)
		}
	case ProviderRules:
	default:
		return fmt.Errorf("unknown llm.provider: %q (supported: %s, %s)", c.LLM.Provider, ProviderGemini, ProviderRules)
	}
	for _, op := range c.Policy.AllowedOperations {
		for _, restricted := range c.Policy.RestrictedOperations {
			if op == restricted {
				return fmt.Errorf("policy: operation %q is both allowed and restricted", op)
			}
		}
	}
	return nil
}
