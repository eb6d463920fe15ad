// ./main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/opspilot/opspilot-cli/cmd"
	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/config"
	"github.com/opspilot/opspilot-cli/internal/observability"
	"github.com/opspilot/opspilot-cli/internal/service"
)

// osExit allows mocking os.Exit in tests.
var osExit = os.Exit

const banner = `
  ___  _ __  ___ _ __ (_) | ___ | |_
 / _ \| '_ \/ __| '_ \| | |/ _ \| __|
| (_) | |_) \__ \ |_) | | | (_) | |_
 \___/| .__/|___/ .__/|_|_|\___/ \__|
      |_|       |_|      %s

Type a request in plain language. "help" lists commands, "exit" quits.
Mutating operations preview first and ask for confirmation.

`

func main() {
	defer observability.Sync()

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With arguments, run as a plain CLI and exit.
	if len(os.Args) > 1 {
		if err := cmd.Execute(); err != nil {
			var exitErr *cmd.ExitError
			if errors.As(err, &exitErr) {
				osExit(exitErr.Code)
			}
			osExit(1)
		}
		return
	}

	// Without arguments, run the interactive shell: one process holds the
	// engine, so session context and confirmation tokens stay live across
	// prompts.
	if err := runShell(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}

func runShell(ctx context.Context) error {
	v := viper.GetViper()
	v.SetEnvPrefix("OPSPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	config.SetDefaults(v)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.opspilot")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	observability.InitializeLogger(cfg.Logger)
	logger := observability.GetLogger()

	components, err := service.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize agent: %w", err)
	}
	components.Start(ctx)
	defer components.Shutdown()

	fmt.Printf(banner, "[ opspilot v"+cmd.Version+" ]")

	const sessionID = "interactive"
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("opspilot > ")
		if !scanner.Scan() {
			break // EOF (Ctrl+D)
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "exit" || line == "quit":
			fmt.Println("Exiting opspilot.")
			return scanner.Err()
		case line == "help":
			printShellHelp(components)
			continue
		case line == "reset":
			components.Sessions.Reset(sessionID)
			fmt.Println("session context cleared")
			continue
		case strings.HasPrefix(line, "confirm "):
			token := strings.TrimSpace(strings.TrimPrefix(line, "confirm "))
			res := components.Engine.Process(ctx, agent.ExecutionRequest{
				SessionID:    sessionID,
				Mode:         agent.ModeConfirmed,
				ConfirmToken: token,
			})
			fmt.Println(agent.Summarize(res))
			continue
		case strings.HasPrefix(line, "execute "):
			res := components.Engine.Process(ctx, agent.ExecutionRequest{
				RawText:   strings.TrimSpace(strings.TrimPrefix(line, "execute ")),
				SessionID: sessionID,
				Mode:      agent.ModeExecute,
			})
			fmt.Println(agent.Summarize(res))
			if res.PendingConfirmation {
				fmt.Printf("(type: confirm %s   or: cancel %s)\n", res.ConfirmToken, res.ConfirmToken)
			}
			continue
		case strings.HasPrefix(line, "cancel "):
			token := strings.TrimSpace(strings.TrimPrefix(line, "cancel "))
			if components.Engine.Cancel(ctx, token, sessionID) {
				fmt.Println("cancelled")
			} else {
				fmt.Println("no such pending confirmation")
			}
			continue
		}

		res := components.Engine.Process(ctx, agent.ExecutionRequest{
			RawText:   line,
			SessionID: sessionID,
			Mode:      agent.ModeNormal,
		})
		fmt.Println(agent.Summarize(res))
		if res.PendingConfirmation {
			fmt.Printf("(type: confirm %s   or: cancel %s)\n", res.ConfirmToken, res.ConfirmToken)
		}
	}
	return scanner.Err()
}

func printShellHelp(components *service.Components) {
	fmt.Println("Commands:")
	fmt.Println("  <request>          process a natural-language request")
	fmt.Println("  execute <request>  run for real even when dry run is the default")
	fmt.Println("  confirm <token>    execute a pending operation")
	fmt.Println("  cancel <token>     drop a pending operation")
	fmt.Println("  reset              clear session context")
	fmt.Println("  exit               quit")
	fmt.Printf("Known actions: %s\n", strings.Join(components.Registry.Actions(), ", "))
}
