// -- cmd/run.go --
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/observability"
	"github.com/opspilot/opspilot-cli/internal/service"
)

// ExitError carries the process exit code contract out of a command:
// 0 success, 1 execution failure, 2 needs clarification or confirmation,
// 3 rejected by policy.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

func newRunCommand() *cobra.Command {
	var (
		sessionID string
		dryRun    bool
		execute   bool
	)

	runCmd := &cobra.Command{
		Use:   "run <request...>",
		Short: "Process one natural-language request",
		Long: `Run resolves a natural-language request into a concrete operation,
applies the safety policy, and either executes it, previews it as a dry
run, or asks for confirmation.`,
		Example: `  opspilot run show me the logs for auth-service
  opspilot run --dry-run restart auth-service
  opspilot run --session deploy-42 "scale payments to 5 replicas"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			components, err := service.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize agent: %w", err)
			}
			components.Start(cmd.Context())
			defer components.Shutdown()

			mode := agent.ModeNormal
			switch {
			case dryRun:
				mode = agent.ModeForceDryRun
			case execute:
				mode = agent.ModeExecute
			}
			res := components.Engine.Process(cmd.Context(), agent.ExecutionRequest{
				RawText:   strings.Join(args, " "),
				SessionID: sessionID,
				Mode:      mode,
			})

			fmt.Fprintln(cmd.OutOrStdout(), agent.Summarize(res))
			if code := agent.ExitCode(res); code != 0 {
				logger.Debug("Request finished with non-zero code",
					zap.Int("code", code), zap.String("error_code", string(res.ErrorCode)))
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&sessionID, "session", "s", "default", "session id for conversational context")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "always preview, never execute")
	runCmd.Flags().BoolVar(&execute, "execute", false, "run for real even when the policy defaults to dry run")
	runCmd.MarkFlagsMutuallyExclusive("dry-run", "execute")
	return runCmd
}
