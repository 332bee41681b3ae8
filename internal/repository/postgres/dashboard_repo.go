package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// RunStats собирает метрики запусков за окно. P95 считается в базе через PERCENTILE_CONT.
func (r *HistoryRepo) RunStats(ctx context.Context, window time.Duration) (*domain.RunStats, error) {
	s := &domain.RunStats{Window: window}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'aborted'),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (
				ORDER BY EXTRACT(EPOCH FROM (finished_at - started_at)) * 1000), 0)
		FROM execution_logs
		WHERE started_at > $1`, time.Now().Add(-window)).Scan(
		&s.Total,
		&s.Completed,
		&s.Aborted,
		&s.P95Latency,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: run stats: %w", err)
	}
	if m := window.Minutes(); m > 0 {
		s.PerMinute = float64(s.Total) / m
	}
	return s, nil
}
