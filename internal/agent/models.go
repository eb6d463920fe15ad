// internal/agent/models.go
package agent

import (
	"time"
)

// TaskCategory groups related operator actions into the task domains the
// agent understands. Every plugin serves exactly one category.
type TaskCategory string

const (
	CategoryTroubleshooting    TaskCategory = "troubleshooting"
	CategoryCICD               TaskCategory = "cicd"
	CategoryCloudProvisioning  TaskCategory = "cloud_provisioning"
	CategoryCostUsage          TaskCategory = "cost_usage"
	CategorySecurityCompliance TaskCategory = "security_compliance"
	CategoryMonitoringAlerts   TaskCategory = "monitoring_alerts"
)

// Mode selects how an ExecutionRequest wants its action carried out.
type Mode string

const (
	// ModeNormal defers to policy: the dry-run default decides whether the
	// plugin's real execution path runs.
	ModeNormal Mode = "normal"
	// ModeForceDryRun always previews, regardless of policy.
	ModeForceDryRun Mode = "force_dry_run"
	// ModeExecute explicitly requests real execution, overriding the
	// dry-run default. The gate's confirmation rules still apply.
	ModeExecute Mode = "execute"
	// ModeConfirmed redeems a pending confirmation token and requests real
	// execution of the previously gated intent.
	ModeConfirmed Mode = "confirmed"
)

// Intent is the validated, structured interpretation of an operator request.
// It is immutable once the resolver returns it.
type Intent struct {
	Category   TaskCategory      `json:"category"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters"`
	RawText    string            `json:"raw_text"`
	Confidence float64           `json:"confidence"`
}

// Param returns a named parameter, or the fallback when absent.
func (i Intent) Param(name, fallback string) string {
	if v, ok := i.Parameters[name]; ok && v != "" {
		return v
	}
	return fallback
}

// ExecutionRequest is the unit of work submitted to the Execution Engine.
type ExecutionRequest struct {
	RawText      string `json:"raw_text"`
	SessionID    string `json:"session_id"`
	Mode         Mode   `json:"mode"`
	ConfirmToken string `json:"confirm_token,omitempty"`
}

// ExecutionResult is returned to the caller and mirrored into the audit log.
type ExecutionResult struct {
	Success             bool      `json:"success"`
	Output              string    `json:"output"`
	Error               string    `json:"error,omitempty"`
	ErrorCode           ErrorCode `json:"error_code,omitempty"`
	DryRun              bool      `json:"dry_run"`
	PendingConfirmation bool      `json:"pending_confirmation"`
	ConfirmToken        string    `json:"confirm_token,omitempty"`
}

// ActionSpec declares one action of a plugin's vocabulary: whether it mutates
// external state, which parameters it needs, and which of those parameters
// name conversational entities that can be recalled from session context.
type ActionSpec struct {
	Action   string
	Category TaskCategory
	// Mutating actions change external state and are subject to the
	// confirmation rules; non-mutating actions bypass them.
	Mutating bool
	// Idempotent marks read-only actions that may be retried automatically
	// on transient failure. Mutating actions are never retried.
	Idempotent     bool
	RequiredParams []string
	// EntityParams lists the parameter names whose values are remembered in
	// session context after a successful execution (e.g. "service",
	// "namespace") and may be recalled through reference placeholders.
	EntityParams []string
	Permissions  []string
}

// Preview is the side-effect-free output of a plugin dry run.
type Preview struct {
	Summary string `json:"summary"`
	// Command is the concrete backend invocation that Execute would run.
	Command string `json:"command,omitempty"`
}

// Outcome is the output of a real plugin execution.
type Outcome struct {
	Output   string            `json:"output"`
	Command  string            `json:"command,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Decision is the Safety Gate's verdict for one intent.
type Decision string

const (
	DecisionProceed             Decision = "proceed"
	DecisionRequireConfirmation Decision = "require_confirmation"
	DecisionReject              Decision = "reject"
)

// GateResult carries the decision, a human-readable reason, and the backend
// permissions the evaluated action requires.
type GateResult struct {
	Decision    Decision
	Reason      string
	Permissions []string
}

// State names a phase of the execution state machine. Transitions are logged
// so the audit trail can be correlated with engine behavior.
type State string

const (
	StateReceived             State = "RECEIVED"
	StateResolved             State = "RESOLVED"
	StateGated                State = "GATED"
	StateDryRunExecuted       State = "DRY_RUN_EXECUTED"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateRejected             State = "REJECTED"
	StateExecuted             State = "EXECUTED"
	StateLogged               State = "LOGGED"
)

// SessionContext is a point-in-time snapshot of one conversation's memory.
type SessionContext struct {
	ID        string            `json:"id"`
	Entities  map[string]string `json:"entities"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Entity returns the remembered value for an entity type, if any.
func (s SessionContext) Entity(entityType string) (string, bool) {
	v, ok := s.Entities[entityType]
	return v, ok
}
