package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// RecordRepo пишет результаты агентов в колонки целевых записей (назначения типа database).
type RecordRepo struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) *RecordRepo {
	return &RecordRepo{pool: pool}
}

// UpdateColumn обновляет одну колонку записи по id. Имена таблицы и колонки экранируются.
func (r *RecordRepo) UpdateColumn(ctx context.Context, table, column, recordID string, value any) error {
	if table == "" || column == "" {
		return fmt.Errorf("postgres: table and column are required")
	}
	if recordID == "" {
		return domain.ErrMissingRecordID
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`,
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{column}.Sanitize(),
	)
	ct, err := r.pool.Exec(ctx, query, domain.Stringify(value), recordID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update %s.%s: %w", table, column, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: record %s not found in %s", recordID, table)
	}
	return nil
}
