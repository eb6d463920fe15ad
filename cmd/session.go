// -- cmd/session.go --
package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot-cli/internal/observability"
	"github.com/opspilot/opspilot-cli/internal/service"
)

func newSessionCommand() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset conversational context",
	}

	var sessionID string

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the entities remembered for a session",
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

			snapshot := components.Sessions.Get(sessionID)
			if len(snapshot.Entities) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "session %q has no remembered context\n", sessionID)
				return nil
			}
			names := make([]string, 0, len(snapshot.Entities))
			for name := range snapshot.Entities {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", name, snapshot.Entities[name])
			}
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard a session's remembered context",
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

			components.Sessions.Reset(sessionID)
			fmt.Fprintf(cmd.OutOrStdout(), "session %q reset\n", sessionID)
			return nil
		},
	}

	sessionCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "default", "session id")
	sessionCmd.AddCommand(showCmd)
	sessionCmd.AddCommand(resetCmd)
	return sessionCmd
}
