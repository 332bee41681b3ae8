package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// HistoryRepo хранит журналы запусков в execution_logs.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

func (r *HistoryRepo) WriteBatch(ctx context.Context, logs []*domain.ExecutionLog) error {
	if len(logs) == 0 {
		return nil
	}

	// Количество колонок в таблице execution_logs
	numFields := 7
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(logs)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, l := range logs {
		p := i * numFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7)

		steps, err := json.Marshal(l.Steps)
		if err != nil {
			return fmt.Errorf("postgres: encode steps of run %s: %w", l.ID, err)
		}
		vals = append(vals, l.ID, l.AgentID, l.TraceID, string(l.Status), steps, l.Timestamp, l.FinishedAt)
	}

	query := "INSERT INTO execution_logs (id, agent_id, trace_id, status, steps, started_at, finished_at) VALUES " +
		placeholders.String() + " ON CONFLICT (id) DO NOTHING"

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}

func (r *HistoryRepo) ListRuns(ctx context.Context, agentID string, limit int) ([]*domain.ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, COALESCE(trace_id, ''), status, steps, started_at, finished_at
		FROM execution_logs
		WHERE agent_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query runs: %w", err)
	}
	defer rows.Close()

	logs := make([]*domain.ExecutionLog, 0)
	for rows.Next() {
		var (
			l     domain.ExecutionLog
			steps []byte
		)
		if err := rows.Scan(&l.ID, &l.AgentID, &l.TraceID, &l.Status, &steps, &l.Timestamp, &l.FinishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &l.Steps); err != nil {
			return nil, fmt.Errorf("postgres: decode steps of run %s: %w", l.ID, err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
