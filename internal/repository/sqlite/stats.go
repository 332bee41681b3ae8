package sqlite

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// RunStats — те же метрики, что у postgres; в SQLite нет PERCENTILE_CONT, p95 считается здесь.
func (r *HistoryRepo) RunStats(ctx context.Context, window time.Duration) (*domain.RunStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, finished_at - started_at FROM execution_logs WHERE started_at > ?`,
		time.Now().Add(-window).UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s := &domain.RunStats{Window: window}
	durations := make([]float64, 0)
	for rows.Next() {
		var (
			status string
			ms     int64
		)
		if err := rows.Scan(&status, &ms); err != nil {
			return nil, err
		}
		s.Total++
		switch domain.RunStatus(status) {
		case domain.RunCompleted:
			s.Completed++
		case domain.RunAborted:
			s.Aborted++
		}
		durations = append(durations, float64(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(durations) > 0 {
		sort.Float64s(durations)
		// nearest-rank
		idx := int(math.Ceil(0.95*float64(len(durations)))) - 1
		s.P95Latency = durations[idx]
	}
	if m := window.Minutes(); m > 0 {
		s.PerMinute = float64(s.Total) / m
	}
	return s, nil
}
