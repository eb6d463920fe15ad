// internal/state/manager_test.go
package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opspilot/opspilot-cli/internal/config"
)

func newManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := NewManager(config.StateConfig{
		Path:        filepath.Join(dir, "agent_state.json"),
		BackupDir:   filepath.Join(dir, "backups"),
		KeepBackups: 3,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestRecordCommandPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	m := newManager(t, dir)
	m.RecordCommand("get_logs", true, 0.4)
	m.RecordCommand("restart_service", false, 1.2)
	m.RecordError("backend unreachable")

	reloaded := newManager(t, dir)
	st := reloaded.Snapshot()
	assert.Equal(t, 1, st.SuccessfulCommands)
	assert.Equal(t, 1, st.FailedCommands)
	assert.Equal(t, "restart_service", st.LastCommand)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, "backend unreachable", st.LastError)
	assert.InDelta(t, 1.6, st.TotalExecutionTime, 0.001)
	require.Len(t, st.History, 2)
	assert.Equal(t, "get_logs", st.History[0].Command)
}

func TestBackupsArePruned(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)

	// Distinct timestamps so each save produces a distinct backup name.
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		i := i
		m.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		m.RecordCommand("health_check", true, 0.1)
	}

	backups, err := filepath.Glob(filepath.Join(dir, "backups", backupPrefix+"*.json"))
	require.NoError(t, err)
	assert.Len(t, backups, 3)
}

func TestLoadFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	m.RecordCommand("get_logs", true, 0.2)

	// Corrupt the main file; the newest backup still has the state.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent_state.json"), []byte("{broken"), 0o600))

	reloaded := newManager(t, dir)
	assert.Equal(t, 1, reloaded.Snapshot().SuccessfulCommands)
}

func TestFreshStateWhenNothingOnDisk(t *testing.T) {
	m := newManager(t, t.TempDir())
	st := m.Snapshot()
	assert.Equal(t, "development", st.Environment)
	assert.Zero(t, st.SuccessfulCommands)
	assert.False(t, st.SessionStart.IsZero())
}
