// File: internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/opspilot/opspilot-cli/internal/audit"
	"github.com/opspilot/opspilot-cli/internal/nlp"
)

// Plugin is the capability contract every task-category implementation
// satisfies. Plugins are registered explicitly at startup; the registry owns
// them for the lifetime of the process.
type Plugin interface {
	// Name identifies the plugin in logs and errors.
	Name() string
	// Category is the task domain this plugin serves.
	Category() TaskCategory
	// Vocabulary declares every action the plugin can perform. The registry
	// aggregates these declarations into the dispatch vocabulary the
	// resolver validates drafts against.
	Vocabulary() []ActionSpec
	// Match scores the plugin's claim on an intent. Zero means no match; the
	// registry dispatches to the unique highest scorer.
	Match(intent Intent) int
	// RequiredPermissions lists the backend permissions the plugin needs.
	// The engine logs them with every gate decision; per-action permissions
	// travel on the ActionSpec and end up in the audit record.
	RequiredPermissions() []string
	// DryRun computes a preview of what Execute would do. It must be free of
	// side effects for any mutating action.
	DryRun(ctx context.Context, intent Intent) (*Preview, error)
	// Execute performs the action against the external backend.
	Execute(ctx context.Context, intent Intent) (*Outcome, error)
}

// Drafter is the external natural-language collaborator. Its output is an
// untrusted hint; the resolver validates it against the registry vocabulary
// before anything is dispatched.
type Drafter interface {
	Draft(ctx context.Context, rawText string) (*nlp.Draft, error)
}

// AuditSink records every processed command. The engine appends exactly one
// record per request; persistence and formatting are the sink's concern.
type AuditSink interface {
	Append(ctx context.Context, rec audit.Record) error
}

// StateRecorder receives execution metrics for the persisted operational
// state. It is optional; a nil recorder disables state tracking.
type StateRecorder interface {
	RecordCommand(action string, success bool, duration float64)
	RecordError(msg string)
}
