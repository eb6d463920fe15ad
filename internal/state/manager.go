// internal/state/manager.go

// Package state persists the agent's operational state between runs:
// command counters, error history, and the last command executed. The file
// is human-readable JSON with timestamped backups kept alongside it.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const backupPrefix = "state_backup_"

// AgentState is the on-disk operational state.
type AgentState struct {
	Environment        string         `json:"environment"`
	SessionStart       time.Time      `json:"session_start"`
	LastCommand        string         `json:"last_command,omitempty"`
	SuccessfulCommands int            `json:"successful_commands"`
	FailedCommands     int            `json:"failed_commands"`
	TotalExecutionTime float64        `json:"total_execution_time"`
	ErrorCount         int            `json:"error_count"`
	LastError          string         `json:"last_error,omitempty"`
	History            []HistoryEntry `json:"execution_history"`
}

// HistoryEntry is one recorded command execution.
type HistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Command       string    `json:"command"`
	Success       bool      `json:"success"`
	ExecutionTime float64   `json:"execution_time"`
}

// maxHistory bounds the persisted execution history.
const maxHistory = 200

// Manager owns the state file. All mutations save through it; reads return
// copies so callers never alias the protected state.
type Manager struct {
	mu        sync.Mutex
	state     AgentState
	path      string
	backupDir string
	keep      int
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager loads existing state from the file, falling back to the newest
// backup and then to a fresh state.
func NewManager(cfg config.StateConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		path:      cfg.Path,
		backupDir: cfg.BackupDir,
		keep:      cfg.KeepBackups,
		logger:    logger.Named("state"),
		now:       time.Now,
	}
	if m.keep <= 0 {
		m.keep = 5
	}
	if m.backupDir == "" {
		m.backupDir = filepath.Join(filepath.Dir(cfg.Path), "state_backups")
	}
	if err := os.MkdirAll(m.backupDir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	m.state = m.load()
	return m, nil
}

func (m *Manager) load() AgentState {
	if st, err := readState(m.path); err == nil {
		return st
	} else if !os.IsNotExist(err) {
		m.logger.Warn("State file unreadable, trying backups", zap.Error(err))
	}
	if latest := m.latestBackup(); latest != "" {
		if st, err := readState(latest); err == nil {
			m.logger.Info("Loaded state from backup", zap.String("backup", latest))
			return st
		}
	}
	return AgentState{
		Environment:  "development",
		SessionStart: m.now().UTC(),
	}
}

func readState(path string) (AgentState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentState{}, err
	}
	var st AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return AgentState{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return st, nil
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() AgentState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.History = append([]HistoryEntry(nil), m.state.History...)
	return st
}

// RecordCommand records one execution and persists the updated state.
func (m *Manager) RecordCommand(action string, success bool, duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastCommand = action
	m.state.TotalExecutionTime += duration
	if success {
		m.state.SuccessfulCommands++
	} else {
		m.state.FailedCommands++
	}
	m.state.History = append(m.state.History, HistoryEntry{
		Timestamp:     m.now().UTC(),
		Command:       action,
		Success:       success,
		ExecutionTime: duration,
	})
	if len(m.state.History) > maxHistory {
		m.state.History = m.state.History[len(m.state.History)-maxHistory:]
	}
	m.saveLocked()
}

// RecordError notes an error occurrence and persists.
func (m *Manager) RecordError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ErrorCount++
	m.state.LastError = msg
	m.saveLocked()
}

// saveLocked writes the state file atomically (write-then-rename), drops a
// timestamped backup, and prunes old backups. Callers must hold m.mu.
func (m *Manager) saveLocked() {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		m.logger.Error("Marshal state failed", zap.Error(err))
		return
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		m.logger.Error("Write state failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.logger.Error("Rename state failed", zap.Error(err))
		return
	}

	backup := filepath.Join(m.backupDir,
		fmt.Sprintf("%s%s.json", backupPrefix, m.now().Format("20060102_150405.000")))
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		m.logger.Warn("Write state backup failed", zap.Error(err))
	}
	m.pruneBackups()
}

func (m *Manager) backups() []string {
	matches, err := filepath.Glob(filepath.Join(m.backupDir, backupPrefix+"*.json"))
	if err != nil {
		return nil
	}
	// Backup names embed their timestamp, so lexical order is age order.
	sort.Strings(matches)
	return matches
}

func (m *Manager) latestBackup() string {
	backups := m.backups()
	if len(backups) == 0 {
		return ""
	}
	return backups[len(backups)-1]
}

func (m *Manager) pruneBackups() {
	backups := m.backups()
	if len(backups) <= m.keep {
		return
	}
	for _, old := range backups[:len(backups)-m.keep] {
		if err := os.Remove(old); err != nil {
			m.logger.Warn("Remove old backup failed", zap.String("backup", old), zap.Error(err))
		}
	}
}
