// -- cmd/confirm.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/observability"
	"github.com/opspilot/opspilot-cli/internal/service"
)

func newConfirmCommand() *cobra.Command {
	var (
		sessionID string
		cancel    bool
	)

	confirmCmd := &cobra.Command{
		Use:   "confirm <token>",
		Short: "Confirm (or cancel) a pending operation",
		Long: `Confirm redeems a confirmation token handed out for a mutating
operation and executes the parked request for real. With --cancel the
pending operation is dropped instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			components, err := service.Build(cmd.Context(), cfg, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("initialize agent: %w", err)
			}
			components.Start(cmd.Context())
			defer components.Shutdown()

			token := args[0]
			if cancel {
				if !components.Engine.Cancel(cmd.Context(), token, sessionID) {
					fmt.Fprintln(cmd.OutOrStdout(), "no such pending confirmation")
					return &ExitError{Code: 2}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
				return nil
			}

			res := components.Engine.Process(cmd.Context(), agent.ExecutionRequest{
				SessionID:    sessionID,
				Mode:         agent.ModeConfirmed,
				ConfirmToken: token,
			})
			fmt.Fprintln(cmd.OutOrStdout(), agent.Summarize(res))
			if code := agent.ExitCode(res); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	confirmCmd.Flags().StringVarP(&sessionID, "session", "s", "default", "session id the token was issued for")
	confirmCmd.Flags().BoolVar(&cancel, "cancel", false, "drop the pending operation instead of running it")
	return confirmCmd
}
