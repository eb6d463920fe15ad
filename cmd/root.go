// -- cmd/root.go --
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/config"
	"github.com/opspilot/opspilot-cli/internal/observability"
)

var cfgFile string

// NewRootCommand builds a fresh root command tree. A new instance per
// execution keeps flag state from leaking between interactive invocations.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opspilot",
		Short: "OpsPilot is a policy-gated DevOps automation agent.",
		Long: `OpsPilot turns natural-language operator requests into audited,
policy-gated infrastructure operations. Mutating actions preview as dry
runs and require explicit confirmation before anything real happens.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any command, setting up config and logging.
			if err := initializeConfig(); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				// Initialize a fallback logger so the failure is still visible
				// in structured form.
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "opspilot",
				})
				return err
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting opspilot", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.opspilot/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newConfirmCommand())
	rootCmd.AddCommand(newSessionCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newStatusCommand())
	return rootCmd
}

// Execute runs the CLI once. The returned error has already been reported;
// an ExitError only carries the exit code and is not logged again.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeConfig reads in the config file and environment variables.
func initializeConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.opspilot")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("OPSPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.NewConfigFromViper(viper.GetViper())
}
