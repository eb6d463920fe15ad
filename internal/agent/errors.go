// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
)

// ErrorCode is a string type used for structured error reporting in results
// and audit records. Using a custom type ensures only predefined constants
// appear where an ErrorCode is expected.
type ErrorCode string

const (
	ErrCodeUnknownIntent       ErrorCode = "UNKNOWN_INTENT"
	ErrCodeMissingContext      ErrorCode = "MISSING_CONTEXT"
	ErrCodeAmbiguousMatch      ErrorCode = "AMBIGUOUS_MATCH"
	ErrCodePolicyRejected      ErrorCode = "POLICY_REJECTED"
	ErrCodeSessionBusy         ErrorCode = "SESSION_BUSY"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
	ErrCodePluginExecution     ErrorCode = "PLUGIN_EXECUTION"
	ErrCodeConfirmationExpired ErrorCode = "CONFIRMATION_EXPIRED"
	ErrCodeInternal            ErrorCode = "INTERNAL"
)

// Sentinel errors for the engine's error taxonomy. Resolution-time and
// gate-time errors never reach a plugin; execution-time errors carry whatever
// partial output the plugin produced.
var (
	// ErrUnknownIntent: the draft's action does not match any registered
	// plugin's vocabulary, or confidence fell below the threshold.
	ErrUnknownIntent = errors.New("unknown intent: no registered action matches this request")
	// ErrMissingContext: a reference placeholder ("it", "that pod") could not
	// be resolved from session context.
	ErrMissingContext = errors.New("missing context: the request references an entity this session has not seen")
	// ErrAmbiguousMatch: two or more plugins tied for the highest match
	// score. Dispatch fails closed rather than picking one silently.
	ErrAmbiguousMatch = errors.New("ambiguous match: multiple plugins claim this intent")
	// ErrPolicyRejected: the action is on the restricted list. No override
	// exists.
	ErrPolicyRejected = errors.New("rejected by policy: this operation is restricted and cannot be overridden")
	// ErrSessionBusy: the session already has an in-flight request. The
	// engine queues rather than rejects, so the code is reserved for
	// frontends that cannot block on the session lock.
	ErrSessionBusy = errors.New("session busy: another request is in flight for this session")
	// ErrTimeout: the plugin invocation exceeded its deadline.
	ErrTimeout = errors.New("plugin invocation timed out")
	// ErrPluginExecution: the plugin's backend call failed.
	ErrPluginExecution = errors.New("plugin execution failed")
	// ErrConfirmationExpired: the confirmation token is unknown, already
	// redeemed, or past its window.
	ErrConfirmationExpired = errors.New("confirmation expired: submit the request again")
)

// CodeOf maps an error to its structured code. Unrecognized errors are
// reported as plugin execution failures since by the time they surface the
// resolution and gate phases have already passed.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownIntent):
		return ErrCodeUnknownIntent
	case errors.Is(err, ErrMissingContext):
		return ErrCodeMissingContext
	case errors.Is(err, ErrAmbiguousMatch):
		return ErrCodeAmbiguousMatch
	case errors.Is(err, ErrPolicyRejected):
		return ErrCodePolicyRejected
	case errors.Is(err, ErrSessionBusy):
		return ErrCodeSessionBusy
	case errors.Is(err, ErrTimeout):
		return ErrCodeTimeout
	case errors.Is(err, ErrConfirmationExpired):
		return ErrCodeConfirmationExpired
	case errors.Is(err, ErrPluginExecution):
		return ErrCodePluginExecution
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The request context was torn down before any plugin ran.
		return ErrCodeInternal
	default:
		return ErrCodePluginExecution
	}
}

// ExitCode maps a result to the process exit code contract:
// 0 success, 1 execution failure, 2 ambiguous or needs clarification,
// 3 rejected by policy.
func ExitCode(res *ExecutionResult) int {
	if res == nil {
		return 1
	}
	if res.PendingConfirmation {
		return 2
	}
	if res.Success {
		return 0
	}
	switch res.ErrorCode {
	case ErrCodeUnknownIntent, ErrCodeMissingContext, ErrCodeAmbiguousMatch:
		return 2
	case ErrCodePolicyRejected:
		return 3
	default:
		return 1
	}
}
