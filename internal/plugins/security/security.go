// internal/plugins/security/security.go

// Package security implements the read-only security and compliance plugin.
// Scans run through the usual external tools (trivy, nmap) via the shared
// runner, so they remain subject to the same throttling and timeouts as
// every other backend call.
package security

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/plugins/backend"
)

const backendName = "security"

type Plugin struct {
	runner backend.Runner
	logger *zap.Logger
}

func New(runner backend.Runner, logger *zap.Logger) *Plugin {
	return &Plugin{runner: runner, logger: logger.Named("plugin.security")}
}

func (p *Plugin) Name() string { return "security" }

func (p *Plugin) Category() agent.TaskCategory { return agent.CategorySecurityCompliance }

func (p *Plugin) Vocabulary() []agent.ActionSpec {
	return []agent.ActionSpec{
		{
			Action:         "security_scan",
			Category:       agent.CategorySecurityCompliance,
			Idempotent:     true,
			RequiredParams: []string{"target"},
			EntityParams:   []string{"target"},
			Permissions:    []string{"scan:run"},
		},
		{
			Action:         "check_ports",
			Category:       agent.CategorySecurityCompliance,
			Idempotent:     true,
			RequiredParams: []string{"host"},
			EntityParams:   []string{"host"},
			Permissions:    []string{"scan:run"},
		},
		{
			Action:         "check_vulnerabilities",
			Category:       agent.CategorySecurityCompliance,
			Idempotent:     true,
			RequiredParams: []string{"image"},
			EntityParams:   []string{"image"},
			Permissions:    []string{"scan:run"},
		},
	}
}

func (p *Plugin) Match(intent agent.Intent) int {
	return agent.ScoreIntent(intent, p.Category(), p.Vocabulary())
}

func (p *Plugin) RequiredPermissions() []string {
	return []string{"scan:run"}
}

func (p *Plugin) DryRun(_ context.Context, intent agent.Intent) (*agent.Preview, error) {
	argv, err := p.build(intent)
	if err != nil {
		return nil, err
	}
	return &agent.Preview{Summary: intent.Action, Command: backend.Render(argv)}, nil
}

func (p *Plugin) Execute(ctx context.Context, intent agent.Intent) (*agent.Outcome, error) {
	argv, err := p.build(intent)
	if err != nil {
		return nil, err
	}
	out, err := p.runner.Run(ctx, backendName, argv)
	if err != nil {
		return nil, err
	}
	return &agent.Outcome{Output: out, Command: backend.Render(argv)}, nil
}

func (p *Plugin) build(intent agent.Intent) ([]string, error) {
	switch intent.Action {
	case "security_scan":
		return []string{"trivy", "fs", "--severity", "HIGH,CRITICAL",
			intent.Param("target", "")}, nil
	case "check_ports":
		// Connect scan of well-known ports only; nothing intrusive.
		return []string{"nmap", "-sT", "--top-ports", intent.Param("top_ports", "100"),
			intent.Param("host", "")}, nil
	case "check_vulnerabilities":
		return []string{"trivy", "image", "--severity", "HIGH,CRITICAL",
			intent.Param("image", "")}, nil
	default:
		return nil, fmt.Errorf("security plugin cannot build %q", intent.Action)
	}
}
