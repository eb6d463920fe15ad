package nlp

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// intentPattern binds a phrasing regex to the action it expresses. Named
// capture groups become draft parameters.
type intentPattern struct {
	re       *regexp.Regexp
	category string
	action   string
}

// matchConfidence is assigned to drafts produced by a pattern hit;
// fallbackConfidence to unrecognized input. The engine's threshold sits
// between the two, so unrecognized input never dispatches.
const (
	matchConfidence    = 0.8
	fallbackConfidence = 0.1
)

// RulesDrafter is the offline drafter: a fixed table of phrasing patterns
// covering the supported operations. It is the default when no LLM API key
// is configured, and the deterministic collaborator used in tests.
type RulesDrafter struct {
	logger   *zap.Logger
	patterns []intentPattern
}

// NewRulesDrafter builds the drafter with its built-in pattern table.
func NewRulesDrafter(logger *zap.Logger) *RulesDrafter {
	return &RulesDrafter{
		logger:   logger.Named("rules_drafter"),
		patterns: buildPatterns(),
	}
}

func buildPatterns() []intentPattern {
	mk := func(expr, category, action string) intentPattern {
		return intentPattern{re: regexp.MustCompile(expr), category: category, action: action}
	}
	return []intentPattern{
		// Troubleshooting.
		mk(`(?:show|get|fetch).*logs.*(?:from|for|of)\s+(?P<service>[\w-]+)`, "troubleshooting", "get_logs"),
		mk(`restart\s+(?P<service>[\w-]+)`, "troubleshooting", "restart_service"),
		mk(`health\s*check\s+(?P<service>[\w-]+)`, "troubleshooting", "health_check"),
		mk(`(?:get|list|show).*pods(?:.*in\s+(?P<namespace>[\w-]+))?`, "troubleshooting", "get_pods"),
		mk(`describe\s+pod\s+(?P<pod>[\w-]+)`, "troubleshooting", "describe_pod"),
		mk(`scale\s+(?:deployment\s+)?(?P<deployment>[\w-]+)\s+to\s+(?P<replicas>\d+)`, "troubleshooting", "scale_deployment"),
		mk(`create\s+namespace\s+(?P<namespace>[\w-]+)`, "troubleshooting", "create_namespace"),

		// CI/CD.
		mk(`trigger.*\b(?P<pipeline>[\w-]+)\s+pipeline`, "cicd", "trigger_pipeline"),
		mk(`rollback\s+(?P<service>[\w-]+)`, "cicd", "rollback_deployment"),
		mk(`(?:pipeline|deployment)\s+status.*?(?P<pipeline>[\w-]+)?$`, "cicd", "pipeline_status"),

		// Cloud provisioning.
		mk(`create.*(?:ec2|vm|instance)`, "cloud_provisioning", "create_instance"),
		mk(`(?:list|show).*instances`, "cloud_provisioning", "list_instances"),
		mk(`terminate.*instance\s+(?P<instance_id>[\w-]+)`, "cloud_provisioning", "terminate_instance"),

		// Cost analysis.
		mk(`(?:show|analyze).*cost.*(?:for|of)\s+(?P<service>[\w-]+)`, "cost_usage", "analyze_cost"),
		mk(`usage\s+report`, "cost_usage", "usage_report"),

		// Security.
		mk(`(?:run\s+)?security\s+scan(?:\s+(?:of|on)\s+(?P<target>\S+))?`, "security_compliance", "security_scan"),
		mk(`check\s+(?:open\s+)?ports(?:\s+on\s+(?P<host>[\w.-]+))?`, "security_compliance", "check_ports"),
		mk(`check\s+(?:cve|vulnerabilit\w+)(?:\s+(?:in|for)\s+(?P<image>\S+))?`, "security_compliance", "check_vulnerabilities"),

		// Monitoring.
		mk(`(?:check|show).*alerts`, "monitoring_alerts", "check_alerts"),
		mk(`query\s+metric\s+(?P<query>[\w:.{}="-]+)`, "monitoring_alerts", "query_metric"),
		mk(`silence\s+alert\s+(?P<alertname>[\w-]+)`, "monitoring_alerts", "silence_alert"),
	}
}

// Draft matches the input against the pattern table. Unrecognized input
// yields a low-confidence draft rather than an error, so the caller decides
// how to surface it.
func (d *RulesDrafter) Draft(_ context.Context, rawText string) (*Draft, error) {
	text := strings.ToLower(strings.TrimSpace(rawText))

	for _, p := range d.patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		params := make(map[string]string)
		for i, name := range p.re.SubexpNames() {
			if name != "" && i < len(m) && m[i] != "" {
				params[name] = m[i]
			}
		}
		// Pronoun references survive pattern matching as parameter values;
		// the resolver substitutes them from session context.
		return &Draft{
			Category:   p.category,
			Action:     p.action,
			Parameters: params,
			Confidence: matchConfidence,
		}, nil
	}

	d.logger.Debug("No pattern matched input", zap.String("text", text))
	return &Draft{
		Category:   "",
		Action:     "unknown",
		Parameters: map[string]string{},
		Confidence: fallbackConfidence,
	}, nil
}
