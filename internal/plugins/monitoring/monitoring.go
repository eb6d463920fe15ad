// internal/plugins/monitoring/monitoring.go

// Package monitoring implements the alerts-and-metrics plugin over the
// Prometheus tool suite (promtool, amtool).
package monitoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/plugins/backend"
)

const backendName = "monitoring"

type Plugin struct {
	runner        backend.Runner
	prometheusURL string
	alertmanager  string
	logger        *zap.Logger
}

func New(runner backend.Runner, prometheusURL, alertmanagerURL string, logger *zap.Logger) *Plugin {
	if prometheusURL == "" {
		prometheusURL = "http://localhost:9090"
	}
	if alertmanagerURL == "" {
		alertmanagerURL = "http://localhost:9093"
	}
	return &Plugin{
		runner:        runner,
		prometheusURL: prometheusURL,
		alertmanager:  alertmanagerURL,
		logger:        logger.Named("plugin.monitoring"),
	}
}

func (p *Plugin) Name() string { return "monitoring" }

func (p *Plugin) Category() agent.TaskCategory { return agent.CategoryMonitoringAlerts }

func (p *Plugin) Vocabulary() []agent.ActionSpec {
	return []agent.ActionSpec{
		{
			Action:      "check_alerts",
			Category:    agent.CategoryMonitoringAlerts,
			Idempotent:  true,
			Permissions: []string{"alerts:read"},
		},
		{
			Action:         "query_metric",
			Category:       agent.CategoryMonitoringAlerts,
			Idempotent:     true,
			RequiredParams: []string{"query"},
			EntityParams:   []string{"service"},
			Permissions:    []string{"metrics:read"},
		},
		{
			// Silencing changes alert routing, so it counts as mutating even
			// though no workload is touched.
			Action:         "silence_alert",
			Category:       agent.CategoryMonitoringAlerts,
			Mutating:       true,
			RequiredParams: []string{"alertname"},
			EntityParams:   []string{"alertname"},
			Permissions:    []string{"alerts:silence"},
		},
	}
}

func (p *Plugin) Match(intent agent.Intent) int {
	return agent.ScoreIntent(intent, p.Category(), p.Vocabulary())
}

func (p *Plugin) RequiredPermissions() []string {
	return []string{"alerts:read", "metrics:read", "alerts:silence"}
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
	case "check_alerts":
		return []string{"amtool", "alert", "query",
			"--alertmanager.url", p.alertmanager}, nil
	case "query_metric":
		query := intent.Param("query", "")
		if service := intent.Param("service", ""); service != "" && query == "up" {
			query = fmt.Sprintf(`up{job=%q}`, service)
		}
		return []string{"promtool", "query", "instant", p.prometheusURL, query}, nil
	case "silence_alert":
		argv := []string{"amtool", "silence", "add",
			"alertname=" + intent.Param("alertname", ""),
			"--alertmanager.url", p.alertmanager,
			"--duration", intent.Param("duration", "2h"),
			"--comment", intent.Param("comment", "silenced via opspilot")}
		return argv, nil
	default:
		return nil, fmt.Errorf("monitoring plugin cannot build %q", intent.Action)
	}
}
