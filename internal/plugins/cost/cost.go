// internal/plugins/cost/cost.go

// Package cost implements the read-only cost and usage plugin over the aws
// Cost Explorer CLI.
package cost

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/plugins/backend"
)

const backendName = "aws"

type Plugin struct {
	runner backend.Runner
	logger *zap.Logger
	now    func() time.Time
}

func New(runner backend.Runner, logger *zap.Logger) *Plugin {
	return &Plugin{
		runner: runner,
		logger: logger.Named("plugin.cost"),
		now:    time.Now,
	}
}

func (p *Plugin) Name() string { return "cost" }

func (p *Plugin) Category() agent.TaskCategory { return agent.CategoryCostUsage }

func (p *Plugin) Vocabulary() []agent.ActionSpec {
	return []agent.ActionSpec{
		{
			Action:      "analyze_cost",
			Category:    agent.CategoryCostUsage,
			Idempotent:  true,
			Permissions: []string{"ce:GetCostAndUsage"},
		},
		{
			Action:      "usage_report",
			Category:    agent.CategoryCostUsage,
			Idempotent:  true,
			Permissions: []string{"ce:GetCostAndUsage"},
		},
	}
}

func (p *Plugin) Match(intent agent.Intent) int {
	return agent.ScoreIntent(intent, p.Category(), p.Vocabulary())
}

func (p *Plugin) RequiredPermissions() []string {
	return []string{"ce:GetCostAndUsage"}
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

// period returns the reporting window, defaulting to the last 30 days.
func (p *Plugin) period(intent agent.Intent) (string, string) {
	end := p.now().UTC()
	start := end.AddDate(0, 0, -30)
	return intent.Param("start", start.Format("2006-01-02")),
		intent.Param("end", end.Format("2006-01-02"))
}

func (p *Plugin) build(intent agent.Intent) ([]string, error) {
	start, end := p.period(intent)
	switch intent.Action {
	case "analyze_cost":
		return []string{
			"aws", "ce", "get-cost-and-usage",
			"--time-period", fmt.Sprintf("Start=%s,End=%s", start, end),
			"--granularity", "MONTHLY",
			"--metrics", "UnblendedCost",
			"--group-by", "Type=DIMENSION,Key=SERVICE",
		}, nil
	case "usage_report":
		return []string{
			"aws", "ce", "get-cost-and-usage",
			"--time-period", fmt.Sprintf("Start=%s,End=%s", start, end),
			"--granularity", "DAILY",
			"--metrics", "UsageQuantity",
		}, nil
	default:
		return nil, fmt.Errorf("cost plugin cannot build %q", intent.Action)
	}
}
