package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// HistoryRepo — локальное хранилище журналов запусков (CLI, разработка).
type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(dbPath string) (*HistoryRepo, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Один коннект: для :memory: каждый новый коннект видел бы пустую базу
	db.SetMaxOpenConns(1)

	r := &HistoryRepo{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *HistoryRepo) Close() error {
	return r.db.Close()
}

func (r *HistoryRepo) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS execution_logs (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		trace_id TEXT,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		steps TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_execution_logs_agent ON execution_logs(agent_id, started_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *HistoryRepo) WriteBatch(ctx context.Context, logs []*domain.ExecutionLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO execution_logs (id, agent_id, trace_id, status, started_at, finished_at, steps)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range logs {
		steps, err := json.Marshal(l.Steps)
		if err != nil {
			return fmt.Errorf("sqlite: marshal steps of run %s: %w", l.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			l.ID, l.AgentID, l.TraceID, string(l.Status),
			l.Timestamp.UnixMilli(), l.FinishedAt.UnixMilli(), string(steps),
		); err != nil {
			return fmt.Errorf("sqlite: insert run %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

func (r *HistoryRepo) ListRuns(ctx context.Context, agentID string, limit int) ([]*domain.ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, trace_id, status, started_at, finished_at, steps
		 FROM execution_logs WHERE agent_id = ?
		 ORDER BY started_at DESC, id LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*domain.ExecutionLog, 0)
	for rows.Next() {
		var (
			l                 domain.ExecutionLog
			traceID           sql.NullString
			started, finished int64
			steps             string
		)
		if err := rows.Scan(&l.ID, &l.AgentID, &traceID, &l.Status, &started, &finished, &steps); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(steps), &l.Steps); err != nil {
			return nil, fmt.Errorf("sqlite: decode steps of run %s: %w", l.ID, err)
		}
		l.TraceID = traceID.String
		l.Timestamp = time.UnixMilli(started)
		l.FinishedAt = time.UnixMilli(finished)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
