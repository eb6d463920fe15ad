// internal/plugins/cloud/cloud.go

// Package cloud implements the provisioning plugin over the aws CLI.
package cloud

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/plugins/backend"
)

const backendName = "aws"

// defaults mirrored from the stock provisioning profile.
const (
	defaultInstanceType = "t2.micro"
	defaultImageID      = "ami-0c02fb55956c7d316"
)

type Plugin struct {
	runner backend.Runner
	logger *zap.Logger
}

func New(runner backend.Runner, logger *zap.Logger) *Plugin {
	return &Plugin{runner: runner, logger: logger.Named("plugin.cloud")}
}

func (p *Plugin) Name() string { return "cloud" }

func (p *Plugin) Category() agent.TaskCategory { return agent.CategoryCloudProvisioning }

func (p *Plugin) Vocabulary() []agent.ActionSpec {
	return []agent.ActionSpec{
		{
			Action:       "create_instance",
			Category:     agent.CategoryCloudProvisioning,
			Mutating:     true,
			EntityParams: []string{"instance_type"},
			Permissions:  []string{"ec2:RunInstances"},
		},
		{
			Action:      "list_instances",
			Category:    agent.CategoryCloudProvisioning,
			Idempotent:  true,
			Permissions: []string{"ec2:DescribeInstances"},
		},
		{
			Action:         "terminate_instance",
			Category:       agent.CategoryCloudProvisioning,
			Mutating:       true,
			RequiredParams: []string{"instance_id"},
			EntityParams:   []string{"instance_id"},
			Permissions:    []string{"ec2:TerminateInstances"},
		},
	}
}

func (p *Plugin) Match(intent agent.Intent) int {
	return agent.ScoreIntent(intent, p.Category(), p.Vocabulary())
}

func (p *Plugin) RequiredPermissions() []string {
	return []string{"ec2:RunInstances", "ec2:DescribeInstances", "ec2:TerminateInstances"}
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
	case "create_instance":
		name := intent.Param("name", "opspilot-instance")
		return []string{
			"aws", "ec2", "run-instances",
			"--image-id", intent.Param("image_id", defaultImageID),
			"--instance-type", intent.Param("instance_type", defaultInstanceType),
			"--count", "1",
			"--tag-specifications",
			fmt.Sprintf("ResourceType=instance,Tags=[{Key=Name,Value=%s},{Key=CreatedBy,Value=opspilot}]", name),
		}, nil
	case "list_instances":
		return []string{
			"aws", "ec2", "describe-instances",
			"--query", "Reservations[].Instances[].{ID:InstanceId,Type:InstanceType,State:State.Name}",
			"--output", "table",
		}, nil
	case "terminate_instance":
		return []string{
			"aws", "ec2", "terminate-instances",
			"--instance-ids", intent.Param("instance_id", ""),
		}, nil
	default:
		return nil, fmt.Errorf("cloud plugin cannot build %q", intent.Action)
	}
}
