// Package audit provides the append-only record of every processed command.
// Records are never mutated or deleted by the engine; ordering is monotonic
// by append sequence within a sink.
package audit

import (
	"context"
	"time"
)

// Record captures one processed request's full decision trail.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	// Seq is the sink-assigned, monotonically increasing append sequence.
	Seq       uint64            `json:"seq"`
	SessionID string            `json:"session_id"`
	Actor     string            `json:"actor"`
	RawText   string            `json:"raw_text"`
	Category  string            `json:"category,omitempty"`
	Action    string            `json:"action,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	// Permissions are the backend permissions the resolved action demanded,
	// recorded alongside the gate verdict.
	Permissions []string `json:"permissions,omitempty"`
	// Decision is the gate verdict, or "error" when the request failed
	// before reaching the gate.
	Decision string `json:"decision"`
	// Outcome summarizes how the request ended: executed, dry_run,
	// pending_confirmation, rejected, or failed.
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	DryRun  bool   `json:"dry_run"`
}

// Outcome values recorded by the engine.
const (
	OutcomeExecuted  = "executed"
	OutcomeDryRun    = "dry_run"
	OutcomePending   = "pending_confirmation"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Sink is an append-only destination for audit records. Append assigns the
// record's sequence number; implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}
