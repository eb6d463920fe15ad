// internal/agent/gate.go
package agent

import (
	"fmt"
	"strings"

	"github.com/opspilot/opspilot-cli/internal/policy"
)

// Gate applies the active policy to an intent before anything runs. The
// rules are evaluated in order and the first match wins:
//
//  1. restricted action          -> Reject
//  2. operator already confirmed -> Proceed
//  3. allow-listed, and policy does not force confirmation -> Proceed
//  4. mutating, and policy forces confirmation or the action is not
//     allow-listed -> RequireConfirmation
//  5. read-only -> Proceed
//
// Restriction is checked first so a restricted action can never be
// confirmed through.
type Gate struct {
	store *policy.Store
}

func NewGate(store *policy.Store) *Gate {
	return &Gate{store: store}
}

// Evaluate returns the gate's decision for the intent under the current
// policy snapshot. The action's required backend permissions ride along on
// every result so the decision trail records what the action was entitled
// to touch; for a mutating action they are named in the confirmation
// prompt's reason.
func (g *Gate) Evaluate(intent Intent, spec ActionSpec, mode Mode) GateResult {
	pol := g.store.Current()

	if pol.Restricted(spec.Action) {
		return GateResult{
			Decision:    DecisionReject,
			Reason:      fmt.Sprintf("action %q is restricted by policy", spec.Action),
			Permissions: spec.Permissions,
		}
	}
	if mode == ModeConfirmed {
		return GateResult{Decision: DecisionProceed, Reason: "operator confirmed", Permissions: spec.Permissions}
	}
	allowed := pol.Allowed(spec.Action)
	if allowed && !pol.RequireConfirmation {
		return GateResult{Decision: DecisionProceed, Reason: "allow-listed", Permissions: spec.Permissions}
	}
	if spec.Mutating && (pol.RequireConfirmation || !allowed) {
		reason := fmt.Sprintf("action %q changes infrastructure state and needs confirmation", spec.Action)
		if len(spec.Permissions) > 0 {
			reason = fmt.Sprintf("%s (requires %s)", reason, strings.Join(spec.Permissions, ", "))
		}
		return GateResult{
			Decision:    DecisionRequireConfirmation,
			Reason:      reason,
			Permissions: spec.Permissions,
		}
	}
	return GateResult{Decision: DecisionProceed, Reason: "read-only", Permissions: spec.Permissions}
}

// wantsRealExecution reports whether a proceed decision should actually run
// the action, as opposed to producing a preview. Forced dry run always
// previews; a confirmed request always runs; otherwise the policy's dry-run
// default decides.
func (g *Gate) wantsRealExecution(mode Mode) bool {
	switch mode {
	case ModeForceDryRun:
		return false
	case ModeConfirmed, ModeExecute:
		return true
	default:
		return !g.store.Current().DryRunDefault
	}
}
