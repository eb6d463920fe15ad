package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts the pgxpool.Pool so the sink can be exercised against a
// mock in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const insertRecordSQL = `
INSERT INTO audit_records
    (seq, ts, session_id, actor, raw_text, category, action, params, permissions, decision, outcome, error, dry_run)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// PostgresSink persists audit records to an audit_records table. Records are
// inserted one per append; the table carries no update or delete paths.
type PostgresSink struct {
	pool DBPool
	log  *zap.Logger

	mu  sync.Mutex
	seq uint64
}

// NewPostgresSink creates the sink and verifies the connection.
func NewPostgresSink(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresSink, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	return &PostgresSink{
		pool: pool,
		log:  logger.Named("audit_postgres"),
	}, nil
}

// Append inserts one record.
func (s *PostgresSink) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	s.seq++
	rec.Seq = s.seq
	s.mu.Unlock()

	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("failed to encode audit params: %w", err)
	}
	perms, err := json.Marshal(rec.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode audit permissions: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertRecordSQL,
		rec.Seq, rec.Timestamp, rec.SessionID, rec.Actor, rec.RawText,
		rec.Category, rec.Action, params, perms, rec.Decision, rec.Outcome,
		rec.Error, rec.DryRun)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
