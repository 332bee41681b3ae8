package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/module"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/pipeline"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/trigger"
)

// AgentRepository описывает требования к хранилищу агентов
type AgentRepository interface {
	Get(ctx context.Context, id string) (*domain.Agent, error)
	List(ctx context.Context) ([]*domain.Agent, error)
	Save(ctx context.Context, a *domain.Agent) error
	SetPaused(ctx context.Context, id string, paused bool) error
	SetDryRun(ctx context.Context, id string, enabled bool) error
}

// RunReader отдаёт историю запусков.
type RunReader interface {
	ListRuns(ctx context.Context, agentID string, limit int) ([]*domain.ExecutionLog, error)
}

// RunStatsReader агрегирует историю запусков за окно.
type RunStatsReader interface {
	RunStats(ctx context.Context, window time.Duration) (*domain.RunStats, error)
}

// FlagBroadcaster — runtime-флаг, разосланный всем инстансам (control.FlagManager).
type FlagBroadcaster interface {
	Set(ctx context.Context, agentID string, on bool) error
}

// Runner — часть pipeline.Runner, нужная консоли.
type Runner interface {
	Run(ctx context.Context, agent *domain.Agent, req pipeline.RunRequest) (*domain.ExecutionLog, error)
	HandleEvent(ctx context.Context, event domain.TriggerEvent) ([]*domain.ExecutionLog, error)
}

type Deps struct {
	Repo     AgentRepository
	Runs     RunReader
	Stats    RunStatsReader
	Runner   Runner
	Registry *module.Registry
	Paused   FlagBroadcaster
	DryRun   FlagBroadcaster
	Logger   *zap.Logger
}

type AgentService struct {
	repo     AgentRepository
	runs     RunReader
	stats    RunStatsReader
	runner   Runner
	registry *module.Registry
	paused   FlagBroadcaster
	dryRun   FlagBroadcaster
	logger   *zap.Logger
}

func NewAgentService(d Deps) *AgentService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := d.Registry
	if reg == nil {
		reg = module.Default()
	}
	return &AgentService{
		repo:     d.Repo,
		runs:     d.Runs,
		stats:    d.Stats,
		runner:   d.Runner,
		registry: reg,
		paused:   d.Paused,
		dryRun:   d.DryRun,
		logger:   logger.Named("agent-service"),
	}
}

// ListAgents возвращает список всех агентов; пустой список — [], а не null.
func (s *AgentService) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	agents, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}
	if agents == nil {
		return []*domain.Agent{}, nil
	}
	return agents, nil
}

func (s *AgentService) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	return s.repo.Get(ctx, id)
}

// SaveAgent проверяет инвариант агента и конфиги модулей, затем сохраняет.
// Непройденные проверки модулей не блокируют сохранение и возвращаются как замечания.
func (s *AgentService) SaveAgent(ctx context.Context, a *domain.Agent) ([]module.Issue, error) {
	for _, m := range a.Modules {
		if cfg, ok := m.Config.(*domain.TriggerConfig); ok {
			trigger.Normalize(cfg)
		}
	}
	issues, err := s.registry.Check(a)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, a); err != nil {
		s.logger.Error("failed to save agent", zap.String("agent_id", a.ID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("agent saved",
		zap.String("agent_id", a.ID),
		zap.Int("modules", len(a.Modules)),
		zap.Int("issues", len(issues)))
	return issues, nil
}

// editModules применяет чистые правки к цепочке агента и сохраняет результат.
func (s *AgentService) editModules(ctx context.Context, agentID string, updates ...module.Update) (*domain.Agent, error) {
	a, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	modules, err := module.Apply(a.Modules, updates...)
	if err != nil {
		return nil, err
	}
	a.Modules = modules
	if _, err := s.SaveAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AgentService) AddModule(ctx context.Context, agentID string, t domain.ModuleType) (*domain.Agent, error) {
	return s.editModules(ctx, agentID, module.AddModule(s.registry, t))
}

func (s *AgentService) RemoveModule(ctx context.Context, agentID, moduleID string) (*domain.Agent, error) {
	return s.editModules(ctx, agentID, module.RemoveModule(moduleID))
}

func (s *AgentService) MoveModule(ctx context.Context, agentID, moduleID string, position int) (*domain.Agent, error) {
	return s.editModules(ctx, agentID, module.MoveModule(moduleID, position))
}

// UpdateModuleConfig декодирует конфиг по типу модуля. Конфиг триггера очищается от legacy-полей.
func (s *AgentService) UpdateModuleConfig(ctx context.Context, agentID, moduleID string, raw json.RawMessage) (*domain.Agent, error) {
	a, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	var target *domain.AgentModule
	for i := range a.Modules {
		if a.Modules[i].ID == moduleID {
			target = &a.Modules[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, moduleID)
	}

	var cfg domain.ModuleConfig
	if target.Type == domain.ModuleTrigger {
		cfg, err = trigger.SanitizeRaw(raw)
	} else {
		cfg, err = domain.DecodeModuleConfig(target.Type, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAgent, err)
	}

	modules, err := module.Apply(a.Modules, module.UpdateConfig(moduleID, cfg))
	if err != nil {
		return nil, err
	}
	a.Modules = modules
	if _, err := s.SaveAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Inputs — входы, доступные модулю на позиции index упорядоченной цепочки.
func (s *AgentService) Inputs(ctx context.Context, agentID string, index int) ([]domain.InputElement, error) {
	a, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	modules := domain.OrderedModules(a.Modules)
	if index < 0 || index > len(modules) {
		return nil, fmt.Errorf("%w: module index %d out of range", domain.ErrInvalidAgent, index)
	}
	return module.AvailableInputs(s.registry, modules, index), nil
}

// RunAgent — ручной запуск; с событием триггер всё равно обходится.
func (s *AgentService) RunAgent(ctx context.Context, agentID string, inputs map[string]any, event *domain.TriggerEvent) (*domain.ExecutionLog, error) {
	a, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, a, pipeline.RunRequest{
		Event:  event,
		Inputs: inputs,
		Manual: true,
	})
}

func (s *AgentService) ListRuns(ctx context.Context, agentID string, limit int) ([]*domain.ExecutionLog, error) {
	if s.runs == nil {
		return []*domain.ExecutionLog{}, nil
	}
	logs, err := s.runs.ListRuns(ctx, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: could not fetch runs: %w", err)
	}
	if logs == nil {
		return []*domain.ExecutionLog{}, nil
	}
	return logs, nil
}

// HandleEvent раздаёт событие всем агентам.
func (s *AgentService) HandleEvent(ctx context.Context, event domain.TriggerEvent) ([]*domain.ExecutionLog, error) {
	logs, err := s.runner.HandleEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		return []*domain.ExecutionLog{}, nil
	}
	return logs, nil
}

func (s *AgentService) PauseAgent(ctx context.Context, id string) error {
	return s.updateFlag(ctx, id, true, s.repo.SetPaused, s.paused, "pause")
}

func (s *AgentService) ResumeAgent(ctx context.Context, id string) error {
	return s.updateFlag(ctx, id, false, s.repo.SetPaused, s.paused, "resume")
}

func (s *AgentService) SetDryRun(ctx context.Context, id string, enabled bool) error {
	return s.updateFlag(ctx, id, enabled, s.repo.SetDryRun, s.dryRun, "dry-run")
}

// updateFlag — унифицированный механизм переключения флага.
// Обновляет БД и транслирует сигнал остальным инстансам.
func (s *AgentService) updateFlag(
	ctx context.Context,
	agentID string,
	on bool,
	persist func(ctx context.Context, id string, on bool) error,
	flags FlagBroadcaster,
	actionName string,
) error {
	if err := persist(ctx, agentID, on); err != nil {
		s.logger.Error("failed to update agent flag in DB",
			zap.String("agent_id", agentID),
			zap.String("action", actionName),
			zap.Error(err))
		return fmt.Errorf("%s: %w", actionName, err)
	}

	if flags == nil {
		return nil
	}
	// БД уже обновлена; остальные инстансы догонят при переподключении
	if err := flags.Set(ctx, agentID, on); err != nil {
		s.logger.Warn("runtime signal delivery failed",
			zap.String("action", actionName),
			zap.Error(err))
		return nil
	}
	s.logger.Info("agent flag updated",
		zap.String("agent_id", agentID),
		zap.String("action", actionName),
		zap.Bool("enabled", on))
	return nil
}

// Dashboard собирает сводку: состояние агентов и запуски за последний час.
func (s *AgentService) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	agents, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}
	d := &domain.Dashboard{Runs: domain.RunStats{Window: time.Hour}}
	d.Agents.Total = len(agents)
	for _, a := range agents {
		if a.Paused {
			d.Agents.Paused++
		}
		if a.DryRun {
			d.Agents.DryRun++
		}
	}

	if s.stats == nil {
		return d, nil
	}
	// здесь можно добавить кэширование в Redis на минуту, агрегаты тяжёлые
	runs, err := s.stats.RunStats(ctx, time.Hour)
	if err != nil {
		s.logger.Error("failed to aggregate runs", zap.Error(err))
		return nil, err
	}
	d.Runs = *runs
	return d, nil
}
