package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/trigger"
)

type AgentRepo struct {
	pool *pgxpool.Pool
}

// NewAgentRepo создает новый экземпляр репозитория
func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

const agentColumns = `id, name, pitch, modules, paused, dry_run, updated_at`

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var (
		a       domain.Agent
		modules []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Pitch, &modules, &a.Paused, &a.DryRun, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(modules, &a.Modules); err != nil {
		return nil, fmt.Errorf("postgres: decode modules of agent %s: %w", a.ID, err)
	}
	// Зеркала не читаются из БД: источник правды — модули
	a.SyncLegacyMirrors()
	return &a, nil
}

func (r *AgentRepo) Get(ctx context.Context, id string) (*domain.Agent, error) {
	a, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
		}
		return nil, err
	}
	return a, nil
}

func (r *AgentRepo) List(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query agents: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	agents := make([]*domain.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// Save валидирует агента, пересобирает legacy-зеркала и делает upsert.
func (r *AgentRepo) Save(ctx context.Context, a *domain.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.SyncLegacyMirrors()

	modules, err := json.Marshal(a.Modules)
	if err != nil {
		return fmt.Errorf("postgres: encode modules: %w", err)
	}
	triggerCfg, err := sanitizedTrigger(a.TriggerConfig)
	if err != nil {
		return err
	}
	routerCfg, err := routerJSON(a.RouterConfig)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO agents (id, name, pitch, model, prompt, modules, trigger_config, router_config, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			pitch = EXCLUDED.pitch,
			model = EXCLUDED.model,
			prompt = EXCLUDED.prompt,
			modules = EXCLUDED.modules,
			trigger_config = EXCLUDED.trigger_config,
			router_config = EXCLUDED.router_config,
			updated_at = NOW()
		RETURNING updated_at`

	err = r.pool.QueryRow(ctx, query,
		a.ID, a.Name, a.Pitch, a.Model, a.Prompt, modules, triggerCfg, routerCfg,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to save agent: %w", err)
	}
	return nil
}

// SetPaused ставит/снимает паузу агента
func (r *AgentRepo) SetPaused(ctx context.Context, id string, paused bool) error {
	return r.setFlag(ctx, "paused", id, paused)
}

// SetDryRun включает/выключает режим dry-run
func (r *AgentRepo) SetDryRun(ctx context.Context, id string, enabled bool) error {
	return r.setFlag(ctx, "dry_run", id, enabled)
}

func (r *AgentRepo) setFlag(ctx context.Context, column, id string, value bool) error {
	query := fmt.Sprintf(`UPDATE agents SET %s = $1, updated_at = NOW() WHERE id = $2`, pgx.Identifier{column}.Sanitize())
	ct, err := r.pool.Exec(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update %s: %w", column, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	return nil
}

// FlaggedIDs отдаёт id агентов с включённым флагом; используется для прогрева кэша флагов.
func (r *AgentRepo) FlaggedIDs(ctx context.Context, column string) ([]string, error) {
	switch column {
	case "paused", "dry_run":
	default:
		return nil, fmt.Errorf("postgres: unknown flag column %q", column)
	}
	query := fmt.Sprintf(`SELECT id FROM agents WHERE %s = TRUE`, pgx.Identifier{column}.Sanitize())
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Ping проверяет доступность базы при старте
func (r *AgentRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func sanitizedTrigger(cfg *domain.TriggerConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	clean, err := trigger.SanitizeRaw(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(clean)
}

func routerJSON(cfg *domain.RouterConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
