// internal/plugins/cicd/cicd.go

// Package cicd implements the CI/CD plugin: pipeline triggers, rollbacks
// and status queries, expressed as gh and kubectl invocations.
package cicd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/plugins/backend"
)

const backendName = "cicd"

type Plugin struct {
	runner backend.Runner
	logger *zap.Logger
}

func New(runner backend.Runner, logger *zap.Logger) *Plugin {
	return &Plugin{runner: runner, logger: logger.Named("plugin.cicd")}
}

func (p *Plugin) Name() string { return "cicd" }

func (p *Plugin) Category() agent.TaskCategory { return agent.CategoryCICD }

func (p *Plugin) Vocabulary() []agent.ActionSpec {
	return []agent.ActionSpec{
		{
			Action:         "trigger_pipeline",
			Category:       agent.CategoryCICD,
			Mutating:       true,
			RequiredParams: []string{"pipeline"},
			EntityParams:   []string{"pipeline"},
			Permissions:    []string{"actions:write"},
		},
		{
			Action:         "rollback_deployment",
			Category:       agent.CategoryCICD,
			Mutating:       true,
			RequiredParams: []string{"service"},
			EntityParams:   []string{"service"},
			Permissions:    []string{"deployments:rollback"},
		},
		{
			Action:         "pipeline_status",
			Category:       agent.CategoryCICD,
			Idempotent:     true,
			RequiredParams: []string{"pipeline"},
			EntityParams:   []string{"pipeline"},
			Permissions:    []string{"actions:read"},
		},
	}
}

func (p *Plugin) Match(intent agent.Intent) int {
	return agent.ScoreIntent(intent, p.Category(), p.Vocabulary())
}

func (p *Plugin) RequiredPermissions() []string {
	return []string{"actions:read", "actions:write", "deployments:rollback"}
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
	case "trigger_pipeline":
		argv := []string{"gh", "workflow", "run", intent.Param("pipeline", "")}
		if ref := intent.Param("ref", ""); ref != "" {
			argv = append(argv, "--ref", ref)
		}
		return argv, nil
	case "rollback_deployment":
		// Rollback means undoing the last rollout of the deployed service.
		argv := []string{"kubectl", "rollout", "undo",
			"deployment/" + intent.Param("service", "")}
		if rev := intent.Param("revision", ""); rev != "" {
			argv = append(argv, "--to-revision", rev)
		}
		return argv, nil
	case "pipeline_status":
		return []string{"gh", "run", "list",
			"--workflow", intent.Param("pipeline", ""), "--limit", "5"}, nil
	default:
		return nil, fmt.Errorf("cicd plugin cannot build %q", intent.Action)
	}
}
