package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// AgentRepo — хранилище агентов в памяти для локальных запусков CLI и тестов.
type AgentRepo struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
}

func NewAgentRepo() *AgentRepo {
	return &AgentRepo{agents: make(map[string]*domain.Agent)}
}

func (r *AgentRepo) Get(_ context.Context, id string) (*domain.Agent, error) {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	return clone(a)
}

func (r *AgentRepo) List(_ context.Context) ([]*domain.Agent, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*domain.Agent, 0, len(ids))
	for _, id := range ids {
		a, err := r.Get(context.Background(), id)
		if err != nil {
			continue // удалён между чтениями
		}
		out = append(out, a)
	}
	return out, nil
}

// Save работает как upsert: валидация, пересборка зеркал, копия в карту.
func (r *AgentRepo) Save(_ context.Context, a *domain.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.SyncLegacyMirrors()
	a.UpdatedAt = time.Now().UTC()

	stored, err := clone(a)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if prev, ok := r.agents[a.ID]; ok {
		stored.Paused, stored.DryRun = prev.Paused, prev.DryRun
		a.Paused, a.DryRun = prev.Paused, prev.DryRun
	}
	r.agents[a.ID] = stored
	r.mu.Unlock()
	return nil
}

func (r *AgentRepo) SetPaused(_ context.Context, id string, paused bool) error {
	return r.update(id, func(a *domain.Agent) { a.Paused = paused })
}

func (r *AgentRepo) SetDryRun(_ context.Context, id string, enabled bool) error {
	return r.update(id, func(a *domain.Agent) { a.DryRun = enabled })
}

// FlaggedIDs — тот же контракт, что у postgres.AgentRepo.
func (r *AgentRepo) FlaggedIDs(_ context.Context, column string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0)
	for id, a := range r.agents {
		switch column {
		case "paused":
			if a.Paused {
				out = append(out, id)
			}
		case "dry_run":
			if a.DryRun {
				out = append(out, id)
			}
		default:
			return nil, fmt.Errorf("memory: unknown flag column %q", column)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *AgentRepo) update(id string, fn func(a *domain.Agent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	fn(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(a *domain.Agent) (*domain.Agent, error) {
	c := *a
	modules, err := domain.CloneModules(a.Modules)
	if err != nil {
		return nil, err
	}
	c.Modules = modules
	c.SyncLegacyMirrors()
	return &c, nil
}
