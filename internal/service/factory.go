// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/audit"
	"github.com/opspilot/opspilot-cli/internal/config"
	"github.com/opspilot/opspilot-cli/internal/nlp"
	"github.com/opspilot/opspilot-cli/internal/plugins/backend"
	"github.com/opspilot/opspilot-cli/internal/plugins/cicd"
	"github.com/opspilot/opspilot-cli/internal/plugins/cloud"
	"github.com/opspilot/opspilot-cli/internal/plugins/cost"
	"github.com/opspilot/opspilot-cli/internal/plugins/kubernetes"
	"github.com/opspilot/opspilot-cli/internal/plugins/monitoring"
	"github.com/opspilot/opspilot-cli/internal/plugins/security"
	"github.com/opspilot/opspilot-cli/internal/policy"
	"github.com/opspilot/opspilot-cli/internal/state"
)

// Build performs the full dependency injection for the agent: policy,
// drafter, plugins, audit sinks, state, sessions and finally the engine.
// On failure everything initialized so far is released.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{
		sweepInterval: cfg.Session.SweepInterval,
		logger:        logger.Named("service"),
	}

	var initErr error
	defer func() {
		if initErr != nil {
			c.Shutdown()
		}
	}()

	// 1. Policy store, plus the hot-reload watcher when a standalone policy
	// file is configured.
	pol, err := policy.Load(cfg.Policy)
	if err != nil {
		initErr = fmt.Errorf("load policy: %w", err)
		return nil, initErr
	}
	c.PolicyStore = policy.NewStore(pol)
	if cfg.Policy.File != "" && cfg.Policy.HotReload {
		watcher, err := policy.NewWatcher(cfg.Policy.File, c.PolicyStore, logger)
		if err != nil {
			initErr = fmt.Errorf("policy watcher: %w", err)
			return nil, initErr
		}
		c.policyWatcher = watcher
	}

	// 2. Audit sinks. The JSONL file sink is always on; Postgres joins in
	// when a connection string is configured.
	sinks := []audit.Sink{}
	fileSink, err := audit.NewFileSink(cfg.Audit.FilePath)
	if err != nil {
		initErr = fmt.Errorf("audit file sink: %w", err)
		return nil, initErr
	}
	sinks = append(sinks, fileSink)
	if cfg.Audit.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Audit.PostgresURL)
		if err != nil {
			initErr = fmt.Errorf("audit postgres pool: %w", err)
			return nil, initErr
		}
		c.dbPool = pool
		pgSink, err := audit.NewPostgresSink(ctx, pool, logger)
		if err != nil {
			initErr = fmt.Errorf("audit postgres sink: %w", err)
			return nil, initErr
		}
		sinks = append(sinks, pgSink)
	}
	c.AuditSink, err = audit.NewTeeSink(sinks...)
	if err != nil {
		initErr = err
		return nil, initErr
	}

	// 3. Operational state.
	c.State, err = state.NewManager(cfg.State, logger)
	if err != nil {
		initErr = fmt.Errorf("state manager: %w", err)
		return nil, initErr
	}

	// 4. Plugins behind the shared throttled runner.
	runner := backend.NewExecRunner(cfg.Backends, logger)
	c.Registry = agent.NewRegistry(logger)
	plugins := []agent.Plugin{
		kubernetes.New(runner, cfg.Backends.Kubernetes, logger),
		cicd.New(runner, logger),
		cloud.New(runner, logger),
		cost.New(runner, logger),
		security.New(runner, logger),
		monitoring.New(runner, cfg.Backends.PrometheusURL, cfg.Backends.AlertmanagerURL, logger),
	}
	for _, p := range plugins {
		if err := c.Registry.Register(p); err != nil {
			initErr = fmt.Errorf("register plugin %s: %w", p.Name(), err)
			return nil, initErr
		}
	}

	// 5. The drafter, resolver, sessions and engine.
	drafter, err := nlp.NewDrafter(cfg.LLM, logger)
	if err != nil {
		initErr = fmt.Errorf("drafter: %w", err)
		return nil, initErr
	}
	c.Sessions = agent.NewSessionStore(cfg.Session.TTL, cfg.Session.SweepInterval,
		cfg.Session.MaxSessions, logger)
	c.pending = agent.NewPendingStore(cfg.Engine.ConfirmTTL)
	resolver := agent.NewResolver(drafter, c.Registry, cfg.LLM.MinConfidence, logger)
	c.Engine = agent.NewEngine(cfg.Engine, resolver, c.Registry, agent.NewGate(c.PolicyStore),
		c.Sessions, c.pending, c.AuditSink, c.State, logger)

	// 6. Short-lived runtime memory carried across one-shot invocations, so
	// a confirmation token from a previous process can still be redeemed.
	c.runtimePath = cfg.State.RuntimePath
	c.loadRuntime()

	return c, nil
}
