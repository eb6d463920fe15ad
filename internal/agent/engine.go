// internal/agent/engine.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/opspilot/opspilot-cli/internal/audit"
	"github.com/opspilot/opspilot-cli/internal/config"
)

// Engine drives a request through the full pipeline: resolve, gate,
// dispatch, execute, remember, audit. Requests for the same session are
// serialized; requests for different sessions run in parallel up to the
// global in-flight cap.
type Engine struct {
	cfg      config.EngineConfig
	resolver *Resolver
	registry *Registry
	gate     *Gate
	sessions *SessionStore
	pending  *PendingStore
	sink     AuditSink
	state    StateRecorder
	inFlight *semaphore.Weighted
	logger   *zap.Logger
}

// NewEngine assembles the pipeline. The state recorder may be nil.
func NewEngine(
	cfg config.EngineConfig,
	resolver *Resolver,
	registry *Registry,
	gate *Gate,
	sessions *SessionStore,
	pending *PendingStore,
	sink AuditSink,
	state StateRecorder,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		registry: registry,
		gate:     gate,
		sessions: sessions,
		pending:  pending,
		sink:     sink,
		state:    state,
		inFlight: semaphore.NewWeighted(cfg.MaxInFlight),
		logger:   logger.Named("engine"),
	}
}

// SweepPending drops expired confirmation tokens. Expiry is also checked on
// redeem, so this only bounds memory growth.
func (e *Engine) SweepPending() int {
	return e.pending.Sweep()
}

// Cancel drops a pending confirmation without executing it and writes a
// cancelled audit record.
func (e *Engine) Cancel(ctx context.Context, token, sessionID string) bool {
	ok := e.pending.Cancel(token, sessionID)
	if ok {
		e.appendAudit(ctx, audit.Record{
			Timestamp: time.Now().UTC(),
			SessionID: sessionID,
			Actor:     e.cfg.Actor,
			Decision:  string(DecisionRequireConfirmation),
			Outcome:   audit.OutcomeCancelled,
		})
	}
	return ok
}

// Process runs one request to completion and returns its result. Every call
// appends exactly one audit record, whatever the outcome.
func (e *Engine) Process(ctx context.Context, req ExecutionRequest) *ExecutionResult {
	start := time.Now()
	log := e.logger.With(zap.String("session_id", req.SessionID))
	e.transition(log, StateReceived, "")

	// Per-session serialization: a second request for a busy session queues
	// here until the first finishes. The entry can be swept or evicted
	// between handing out its lock and us acquiring it, so confirm we still
	// hold the session's live lock and retry if it was replaced.
	var lock *sync.Mutex
	for {
		lock = e.sessions.execLock(req.SessionID)
		lock.Lock()
		if e.sessions.holdsExecLock(req.SessionID, lock) {
			break
		}
		lock.Unlock()
	}
	defer lock.Unlock()

	// The session lock has already serialized this session, so the only way
	// the acquire fails is the request context being torn down.
	if err := e.inFlight.Acquire(ctx, 1); err != nil {
		res := e.failure(fmt.Errorf("acquire execution slot: %w", err))
		e.finish(ctx, req, Intent{}, "error", audit.OutcomeFailed, res, start)
		return res
	}
	defer e.inFlight.Release(1)

	intent, err := e.resolveIntent(ctx, req)
	if err != nil {
		res := e.failure(err)
		e.finish(ctx, req, intent, "error", audit.OutcomeFailed, res, start)
		return res
	}
	e.transition(log, StateResolved, intent.Action)

	spec, ok := e.registry.ActionSpec(intent.Action)
	if !ok {
		res := e.failure(fmt.Errorf("%w: action %q vanished from registry", ErrUnknownIntent, intent.Action))
		e.finish(ctx, req, intent, "error", audit.OutcomeFailed, res, start)
		return res
	}

	plugin, err := e.registry.Resolve(intent)
	if err != nil {
		res := e.failure(err)
		e.finish(ctx, req, intent, "error", audit.OutcomeFailed, res, start)
		return res
	}

	gateRes := e.gate.Evaluate(intent, spec, req.Mode)
	e.transition(log, StateGated, intent.Action)
	log.Info("Gate decision",
		zap.String("action", intent.Action),
		zap.String("decision", string(gateRes.Decision)),
		zap.String("reason", gateRes.Reason),
		zap.Strings("action_permissions", gateRes.Permissions),
		zap.Strings("plugin_permissions", plugin.RequiredPermissions()))

	switch gateRes.Decision {
	case DecisionReject:
		e.transition(log, StateRejected, intent.Action)
		res := e.failure(fmt.Errorf("%w: %s", ErrPolicyRejected, gateRes.Reason))
		e.finish(ctx, req, intent, string(gateRes.Decision), audit.OutcomeRejected, res, start)
		return res

	case DecisionRequireConfirmation:
		return e.parkForConfirmation(ctx, req, plugin, intent, string(gateRes.Decision), log, start)

	default:
		return e.dispatch(ctx, req, plugin, intent, spec, string(gateRes.Decision), log, start)
	}
}

// resolveIntent obtains the intent either by redeeming a confirmation token
// or by resolving fresh operator text.
func (e *Engine) resolveIntent(ctx context.Context, req ExecutionRequest) (Intent, error) {
	if req.Mode == ModeConfirmed {
		return e.pending.Redeem(req.ConfirmToken, req.SessionID)
	}
	session := e.sessions.Get(req.SessionID)
	return e.resolver.Resolve(ctx, req.RawText, session)
}

// parkForConfirmation previews the action, parks the intent, and hands the
// operator a token.
func (e *Engine) parkForConfirmation(ctx context.Context, req ExecutionRequest, plugin Plugin, intent Intent, decision string, log *zap.Logger, start time.Time) *ExecutionResult {
	preview, err := e.preview(ctx, plugin, intent)
	if err != nil {
		res := e.failure(err)
		e.finish(ctx, req, intent, decision, audit.OutcomeFailed, res, start)
		return res
	}
	token := e.pending.Put(req.SessionID, intent)
	e.transition(log, StateAwaitingConfirmation, intent.Action)

	res := &ExecutionResult{
		Success:             false,
		Output:              preview,
		DryRun:              true,
		PendingConfirmation: true,
		ConfirmToken:        token,
	}
	e.finish(ctx, req, intent, decision, audit.OutcomePending, res, start)
	return res
}

// dispatch runs the intent through its plugin, either for real or as a
// preview, then updates session memory on success.
func (e *Engine) dispatch(ctx context.Context, req ExecutionRequest, plugin Plugin, intent Intent, spec ActionSpec, decision string, log *zap.Logger, start time.Time) *ExecutionResult {
	var (
		res     *ExecutionResult
		outcome string
	)
	if e.gate.wantsRealExecution(req.Mode) {
		output, err := e.execute(ctx, plugin, intent, spec)
		if err != nil {
			res = e.failure(err)
			outcome = audit.OutcomeFailed
		} else {
			e.transition(log, StateExecuted, intent.Action)
			res = &ExecutionResult{Success: true, Output: output}
			outcome = audit.OutcomeExecuted
		}
	} else {
		output, err := e.preview(ctx, plugin, intent)
		if err != nil {
			res = e.failure(err)
			outcome = audit.OutcomeFailed
		} else {
			e.transition(log, StateDryRunExecuted, intent.Action)
			res = &ExecutionResult{Success: true, Output: output, DryRun: true}
			outcome = audit.OutcomeDryRun
		}
	}

	if res.Success {
		for _, entity := range spec.EntityParams {
			e.sessions.Update(req.SessionID, entity, intent.Parameters[entity])
		}
		e.sessions.Touch(req.SessionID)
	}
	e.finish(ctx, req, intent, decision, outcome, res, start)
	return res
}

// execute invokes the plugin's real execution path under the configured
// timeout. Idempotent read-only actions are retried with exponential
// backoff; anything mutating runs exactly once.
func (e *Engine) execute(ctx context.Context, plugin Plugin, intent Intent, spec ActionSpec) (string, error) {
	run := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.PluginTimeout)
		defer cancel()
		outcome, err := plugin.Execute(callCtx, intent)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: %s exceeded %s", ErrTimeout, intent.Action, e.cfg.PluginTimeout)
			}
			return "", fmt.Errorf("%w: %v", ErrPluginExecution, err)
		}
		return outcome.Output, nil
	}

	if spec.Mutating || !spec.Idempotent || e.cfg.MaxRetries <= 0 {
		return run()
	}

	var output string
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBaseDelay
	b.MaxInterval = e.cfg.PluginTimeout
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.MaxRetries)), ctx)
	err := backoff.Retry(func() error {
		var runErr error
		output, runErr = run()
		if runErr == nil {
			return nil
		}
		// Phase errors are final; only backend failures are worth retrying.
		if errors.Is(runErr, ErrTimeout) || errors.Is(runErr, ErrPluginExecution) {
			return runErr
		}
		return backoff.Permanent(runErr)
	}, policy)
	return output, err
}

// preview invokes the plugin's dry-run path and renders the preview.
func (e *Engine) preview(ctx context.Context, plugin Plugin, intent Intent) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PluginTimeout)
	defer cancel()
	p, err := plugin.DryRun(callCtx, intent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPluginExecution, err)
	}
	if p.Command != "" {
		return fmt.Sprintf("[DRY RUN] Would execute: %s", p.Command), nil
	}
	return fmt.Sprintf("[DRY RUN] %s", p.Summary), nil
}

// failure builds an unsuccessful result from an error and records it against
// the operational state.
func (e *Engine) failure(err error) *ExecutionResult {
	if e.state != nil {
		e.state.RecordError(err.Error())
	}
	return &ExecutionResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: CodeOf(err),
	}
}

// finish writes the single audit record for this request and records
// execution metrics.
func (e *Engine) finish(ctx context.Context, req ExecutionRequest, intent Intent, decision, outcome string, res *ExecutionResult, start time.Time) {
	rec := audit.Record{
		Timestamp: time.Now().UTC(),
		SessionID: req.SessionID,
		Actor:     e.cfg.Actor,
		RawText:   req.RawText,
		Category:  string(intent.Category),
		Action:    intent.Action,
		Params:    intent.Parameters,
		Decision:  decision,
		Outcome:   outcome,
		Error:     res.Error,
		DryRun:    res.DryRun,
	}
	if spec, ok := e.registry.ActionSpec(intent.Action); ok {
		rec.Permissions = spec.Permissions
	}
	e.appendAudit(ctx, rec)
	e.transition(e.logger, StateLogged, intent.Action)

	if e.state != nil && intent.Action != "" && outcome != audit.OutcomePending {
		e.state.RecordCommand(intent.Action, res.Success, time.Since(start).Seconds())
	}
}

func (e *Engine) appendAudit(ctx context.Context, rec audit.Record) {
	// Auditing must not inherit a cancelled request context; the record is
	// written even when the request itself was torn down.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.sink.Append(auditCtx, rec); err != nil {
		e.logger.Error("Audit append failed",
			zap.String("session_id", rec.SessionID),
			zap.String("action", rec.Action),
			zap.Error(err))
	}
}

func (e *Engine) transition(log *zap.Logger, state State, action string) {
	fields := []zap.Field{zap.String("state", string(state))}
	if action != "" {
		fields = append(fields, zap.String("action", action))
	}
	log.Debug("State transition", fields...)
}

// Summarize renders a short human line for a result, used by the CLI and
// the interactive shell.
func Summarize(res *ExecutionResult) string {
	switch {
	case res == nil:
		return "no result"
	case res.PendingConfirmation:
		return fmt.Sprintf("%s\n\nConfirmation required. Run: confirm %s", res.Output, res.ConfirmToken)
	case res.Success:
		return strings.TrimRight(res.Output, "\n")
	default:
		return fmt.Sprintf("error [%s]: %s", res.ErrorCode, res.Error)
	}
}
