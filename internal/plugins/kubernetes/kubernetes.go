// internal/plugins/kubernetes/kubernetes.go

// Package kubernetes implements the troubleshooting plugin. All operations
// are expressed as kubectl invocations run through the shared backend
// runner.
package kubernetes

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/config"
	"github.com/opspilot/opspilot-cli/internal/plugins/backend"
)

const backendName = "kubectl"

// Plugin serves the troubleshooting category: logs, restarts, health and
// workload inspection against a Kubernetes cluster.
type Plugin struct {
	runner backend.Runner
	cfg    config.KubernetesConfig
	logger *zap.Logger
}

func New(runner backend.Runner, cfg config.KubernetesConfig, logger *zap.Logger) *Plugin {
	return &Plugin{
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("plugin.kubernetes"),
	}
}

func (p *Plugin) Name() string { return "kubernetes" }

func (p *Plugin) Category() agent.TaskCategory { return agent.CategoryTroubleshooting }

func (p *Plugin) Vocabulary() []agent.ActionSpec {
	return []agent.ActionSpec{
		{
			Action:         "get_logs",
			Category:       agent.CategoryTroubleshooting,
			Idempotent:     true,
			RequiredParams: []string{"service"},
			EntityParams:   []string{"service", "namespace"},
			Permissions:    []string{"pods/log:get"},
		},
		{
			Action:         "restart_service",
			Category:       agent.CategoryTroubleshooting,
			Mutating:       true,
			RequiredParams: []string{"service"},
			EntityParams:   []string{"service", "namespace"},
			Permissions:    []string{"deployments:patch"},
		},
		{
			Action:         "health_check",
			Category:       agent.CategoryTroubleshooting,
			Idempotent:     true,
			RequiredParams: []string{"service"},
			EntityParams:   []string{"service", "namespace"},
			Permissions:    []string{"pods:list"},
		},
		{
			Action:       "get_pods",
			Category:     agent.CategoryTroubleshooting,
			Idempotent:   true,
			EntityParams: []string{"namespace"},
			Permissions:  []string{"pods:list"},
		},
		{
			Action:         "describe_pod",
			Category:       agent.CategoryTroubleshooting,
			Idempotent:     true,
			RequiredParams: []string{"pod"},
			EntityParams:   []string{"pod", "namespace"},
			Permissions:    []string{"pods:get"},
		},
		{
			Action:         "scale_deployment",
			Category:       agent.CategoryTroubleshooting,
			Mutating:       true,
			RequiredParams: []string{"deployment", "replicas"},
			EntityParams:   []string{"deployment", "namespace"},
			Permissions:    []string{"deployments/scale:update"},
		},
		{
			Action:         "create_namespace",
			Category:       agent.CategoryTroubleshooting,
			Mutating:       true,
			RequiredParams: []string{"namespace"},
			EntityParams:   []string{"namespace"},
			Permissions:    []string{"namespaces:create"},
		},
	}
}

func (p *Plugin) Match(intent agent.Intent) int {
	return agent.ScoreIntent(intent, p.Category(), p.Vocabulary())
}

func (p *Plugin) RequiredPermissions() []string {
	perms := make([]string, 0, 8)
	for _, spec := range p.Vocabulary() {
		perms = append(perms, spec.Permissions...)
	}
	return perms
}

func (p *Plugin) DryRun(_ context.Context, intent agent.Intent) (*agent.Preview, error) {
	argv, err := p.build(intent)
	if err != nil {
		return nil, err
	}
	return &agent.Preview{
		Summary: fmt.Sprintf("%s against the %q cluster context", intent.Action, p.contextName()),
		Command: backend.Render(argv),
	}, nil
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

func (p *Plugin) contextName() string {
	if p.cfg.Context != "" {
		return p.cfg.Context
	}
	return "current"
}

func (p *Plugin) namespace(intent agent.Intent) string {
	ns := intent.Param("namespace", p.cfg.Namespace)
	if ns == "" {
		ns = "default"
	}
	return ns
}

// build maps an intent onto a kubectl argv. The vocabulary guarantees the
// required parameters are present by the time an intent reaches us.
func (p *Plugin) build(intent agent.Intent) ([]string, error) {
	argv := []string{"kubectl"}
	if p.cfg.Context != "" {
		argv = append(argv, "--context", p.cfg.Context)
	}

	switch intent.Action {
	case "get_logs":
		tail := intent.Param("tail", "50")
		argv = append(argv, "logs", "-l", "app="+intent.Param("service", ""),
			"--tail", tail, "-n", p.namespace(intent))
	case "restart_service":
		argv = append(argv, "rollout", "restart",
			"deployment/"+intent.Param("service", ""), "-n", p.namespace(intent))
	case "health_check":
		argv = append(argv, "get", "pods", "-l", "app="+intent.Param("service", ""),
			"-n", p.namespace(intent))
	case "get_pods":
		argv = append(argv, "get", "pods", "-n", p.namespace(intent))
	case "describe_pod":
		argv = append(argv, "describe", "pod", intent.Param("pod", ""),
			"-n", p.namespace(intent))
	case "scale_deployment":
		replicas, err := strconv.Atoi(intent.Param("replicas", ""))
		if err != nil || replicas < 0 {
			return nil, fmt.Errorf("replicas must be a non-negative integer, got %q",
				intent.Param("replicas", ""))
		}
		argv = append(argv, "scale", "deployment", intent.Param("deployment", ""),
			"--replicas="+strconv.Itoa(replicas), "-n", p.namespace(intent))
	case "create_namespace":
		argv = append(argv, "create", "namespace", intent.Param("namespace", ""))
	default:
		return nil, fmt.Errorf("kubernetes plugin cannot build %q", intent.Action)
	}
	return argv, nil
}
