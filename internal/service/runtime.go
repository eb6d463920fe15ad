// File: internal/service/runtime.go
package service

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runtimeSnapshot is the on-disk form of the engine's short-lived memory:
// session entities and parked confirmations. One-shot invocations load it on
// build and save it on shutdown, so a token printed by `run` can be redeemed
// by a later `confirm` process. Both stores drop expired entries on restore,
// so a stale file degrades to an empty one.
type runtimeSnapshot struct {
	Sessions []agent.SessionSnapshot `json:"sessions"`
	Pending  []agent.PendingSnapshot `json:"pending"`
}

// loadRuntime restores sessions and pending confirmations from the runtime
// snapshot file. A missing file is a normal first run.
func (c *Components) loadRuntime() {
	if c.runtimePath == "" {
		return
	}
	data, err := os.ReadFile(c.runtimePath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		c.logger.Warn("Read runtime snapshot failed", zap.Error(err))
		return
	}
	var snap runtimeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("Corrupt runtime snapshot, starting fresh",
			zap.String("path", c.runtimePath), zap.Error(err))
		return
	}
	c.Sessions.Restore(snap.Sessions)
	c.pending.Restore(snap.Pending)
	c.logger.Debug("Runtime snapshot restored",
		zap.Int("sessions", len(snap.Sessions)),
		zap.Int("pending", len(snap.Pending)))
}

// saveRuntime writes the current sessions and pending confirmations with a
// write-then-rename so a crash mid-save never truncates the previous file.
func (c *Components) saveRuntime() {
	if c.runtimePath == "" {
		return
	}
	snap := runtimeSnapshot{
		Sessions: c.Sessions.Export(),
		Pending:  c.pending.Export(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		c.logger.Error("Marshal runtime snapshot failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.runtimePath), 0o750); err != nil {
		c.logger.Error("Create runtime snapshot dir failed", zap.Error(err))
		return
	}
	tmp := c.runtimePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.logger.Error("Write runtime snapshot failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, c.runtimePath); err != nil {
		c.logger.Error("Rename runtime snapshot failed", zap.Error(err))
	}
}
