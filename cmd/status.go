// -- cmd/status.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot-cli/internal/observability"
	"github.com/opspilot/opspilot-cli/internal/service"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show operational state and the active policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			components, err := service.Build(cmd.Context(), cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			st := components.State.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "environment:          %s\n", st.Environment)
			fmt.Fprintf(out, "successful commands:  %d\n", st.SuccessfulCommands)
			fmt.Fprintf(out, "failed commands:      %d\n", st.FailedCommands)
			fmt.Fprintf(out, "errors recorded:      %d\n", st.ErrorCount)
			if st.LastCommand != "" {
				fmt.Fprintf(out, "last command:         %s\n", st.LastCommand)
			}
			if st.LastError != "" {
				fmt.Fprintf(out, "last error:           %s\n", st.LastError)
			}

			pol := components.PolicyStore.Current()
			fmt.Fprintf(out, "require confirmation: %t\n", pol.RequireConfirmation)
			fmt.Fprintf(out, "dry-run default:      %t\n", pol.DryRunDefault)
			if ops := pol.AllowedOperations(); len(ops) > 0 {
				fmt.Fprintf(out, "allowed operations:   %v\n", ops)
			}
			if ops := pol.RestrictedOperations(); len(ops) > 0 {
				fmt.Fprintf(out, "restricted:           %v\n", ops)
			}
			fmt.Fprintf(out, "registered actions:   %v\n", components.Registry.Actions())
			return nil
		},
	}
}
