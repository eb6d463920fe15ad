// -- cmd/serve.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot-cli/internal/observability"
	"github.com/opspilot/opspilot-cli/internal/server"
	"github.com/opspilot/opspilot-cli/internal/service"
)

func newServeCommand() *cobra.Command {
	var listen string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		Long: `Serve starts the HTTP API used by chat-ops integrations. One process
holds session context and pending confirmations, so a conversation can
span multiple requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			logger := observability.GetLogger()

			components, err := service.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize agent: %w", err)
			}
			components.Start(cmd.Context())
			defer components.Shutdown()

			srv := server.New(components.Engine, cfg.Server, logger)
			return srv.Run(cmd.Context())
		},
	}

	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides server.listen)")
	return serveCmd
}
