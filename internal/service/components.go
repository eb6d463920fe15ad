// File: internal/service/components.go
package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/audit"
	"github.com/opspilot/opspilot-cli/internal/policy"
	"github.com/opspilot/opspilot-cli/internal/state"
)

// Components holds all initialized services the agent needs to run. It
// centralizes lifecycle management: background loops are started by Start
// and torn down by Shutdown in reverse dependency order.
type Components struct {
	Engine      *agent.Engine
	Registry    *agent.Registry
	Sessions    *agent.SessionStore
	PolicyStore *policy.Store
	State       *state.Manager
	AuditSink   audit.Sink

	policyWatcher *policy.Watcher
	dbPool        *pgxpool.Pool
	pending       *agent.PendingStore
	runtimePath   string
	sweepInterval time.Duration
	logger        *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches the background loops: session and pending-token sweeping
// and, when configured, policy hot reload.
func (c *Components) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Sessions.Run(ctx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Engine.SweepPending()
			case <-ctx.Done():
				return
			}
		}
	}()

	if c.policyWatcher != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.policyWatcher.Run(ctx)
		}()
	}
}

// Shutdown stops background loops, then releases external resources.
func (c *Components) Shutdown() {
	c.logger.Debug("Beginning components shutdown sequence.")

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.pending != nil {
		c.saveRuntime()
	}
	if c.AuditSink != nil {
		if err := c.AuditSink.Close(); err != nil {
			c.logger.Warn("Audit sink close failed", zap.Error(err))
		}
	}
	if c.dbPool != nil {
		c.dbPool.Close()
	}
	c.logger.Debug("Components shutdown complete.")
}
