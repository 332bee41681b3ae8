package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/dispatch"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/extractor"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/llm"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/module"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/notify"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/prompt"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/router"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/trigger"
)

// AgentStore — источник конфигураций агентов.
type AgentStore interface {
	Get(ctx context.Context, id string) (*domain.Agent, error)
	List(ctx context.Context) ([]*domain.Agent, error)
}

// HistorySink принимает запечатанные журналы запусков.
type HistorySink interface {
	Record(log *domain.ExecutionLog)
}

// FlagSet — быстрый in-memory флаг агента (пауза, dry-run).
type FlagSet interface {
	Has(agentID string) bool
}

type RunRequest struct {
	Event  *domain.TriggerEvent
	Inputs map[string]any
	// Manual запускает агента в обход триггера.
	Manual bool
	// Chain — агенты выше по цепочке вызова (для вложенных запусков).
	Chain          []string
	SourceRecordID string
}

type Deps struct {
	Registry    *module.Registry
	Model       llm.Provider
	Dispatcher  *dispatch.Dispatcher
	Notifier    *notify.Notifier
	Agents      AgentStore
	History     HistorySink
	Paused      FlagSet
	DryRun      FlagSet
	Metrics     *Metrics
	Logger      *zap.Logger
	Concurrency int
}

type Runner struct {
	registry    *module.Registry
	trigger     *trigger.Evaluator
	model       llm.Provider
	dispatcher  *dispatch.Dispatcher
	notifier    *notify.Notifier
	agents      AgentStore
	history     HistorySink
	paused      FlagSet
	dryRun      FlagSet
	metrics     *Metrics
	logger      *zap.Logger
	concurrency int
}

func NewRunner(d Deps) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		registry:    d.Registry,
		trigger:     trigger.NewEvaluator(logger),
		model:       d.Model,
		dispatcher:  d.Dispatcher,
		notifier:    d.Notifier,
		agents:      d.Agents,
		history:     d.History,
		paused:      d.Paused,
		dryRun:      d.DryRun,
		metrics:     d.Metrics,
		logger:      logger.Named("runner"),
		concurrency: d.Concurrency,
	}
	if r.registry == nil {
		r.registry = module.Default()
	}
	if r.dispatcher == nil {
		r.dispatcher = dispatch.New(nil, nil, nil, logger)
	}
	if r.notifier == nil {
		r.notifier = notify.NewNotifier(logger)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	if r.concurrency <= 0 {
		r.concurrency = 4
	}
	r.dispatcher.SetAgentInvoker(r)
	return r
}

func (r *Runner) Registry() *module.Registry { return r.registry }

// runState — изменяемое состояние одного запуска, живёт только внутри Run.
type runState struct {
	agent     *domain.Agent
	modules   []domain.AgentModule
	bound     *domain.Bindings
	rc        dispatch.RunContext
	event     *domain.TriggerEvent
	manual    bool
	prompt    string
	hasPrompt bool
	latest    any
	decision  *router.Decision
	logger    *zap.Logger
}

// Run исполняет агента одним проходом. Ошибка возвращается только если запуск отклонён
// до старта (невалидный агент); сбои шагов попадают в журнал.
func (r *Runner) Run(ctx context.Context, agent *domain.Agent, req RunRequest) (*domain.ExecutionLog, error) {
	if agent == nil {
		return nil, fmt.Errorf("%w: agent is nil", domain.ErrInvalidAgent)
	}
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	modules, err := domain.CloneModules(agent.Modules)
	if err != nil {
		return nil, fmt.Errorf("snapshot modules: %w", err)
	}
	modules = domain.OrderedModules(modules)

	execLog := domain.NewExecutionLog(uuid.New().String(), agent.ID)
	execLog.TraceID = TraceID(ctx)

	st := &runState{
		agent:   agent,
		modules: modules,
		bound:   domain.BindingsFromMap(staticInputs(req)),
		event:   req.Event,
		manual:  req.Manual,
		logger: r.logger.With(
			zap.String("agent_id", agent.ID),
			zap.String("run_id", execLog.ID),
			zap.String("trace_id", execLog.TraceID)),
	}
	st.rc = dispatch.RunContext{Chain: req.Chain}.Descend(agent.ID)
	st.rc.RunID = execLog.ID
	st.rc.SourceRecordID = sourceRecordID(req)
	st.rc.DryRun = agent.DryRun || has(r.dryRun, agent.ID)

	if !req.Manual && !r.shouldRun(modules, req, st.bound) {
		execLog.Seal(domain.RunNotTriggered)
		r.metrics.RunsTotal.WithLabelValues(agent.ID, string(domain.RunNotTriggered)).Inc()
		st.logger.Debug("trigger rejected event")
		return execLog, nil
	}

	aborted := false
	for i, m := range modules {
		if aborted {
			execLog.Append(skippedStep(r.registry, m))
			continue
		}
		step, fatal := r.execute(ctx, st, i)
		execLog.Append(step)
		if fatal {
			aborted = true
			st.logger.Warn("run aborted", zap.String("module_id", m.ID), zap.String("error", step.Error))
		}
	}

	status := domain.RunCompleted
	if aborted {
		status = domain.RunAborted
	}
	execLog.Seal(status)
	r.metrics.RunsTotal.WithLabelValues(agent.ID, string(status)).Inc()
	st.logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("steps", len(execLog.Steps)),
		zap.Int("failed", len(execLog.Failed())),
		zap.Bool("dry_run", st.rc.DryRun))

	if r.history != nil {
		r.history.Record(execLog)
	}
	return execLog, nil
}

// destinationSet: без модуля router — все назначения; с router — только его решение.
// Если решения нет (шаг router упал или стоит после назначений), не выбирается ничего.
func (st *runState) destinationSet(dests []domain.DestinationElement) router.Decision {
	if st.decision != nil {
		return *st.decision
	}
	if _, ok := domain.FindModule(st.modules, domain.ModuleRouter); ok {
		st.logger.Warn("router produced no decision, nothing is dispatched")
		return router.Decision{DestinationIDs: []string{}}
	}
	return router.Route(nil, dests, nil)
}

func (r *Runner) shouldRun(modules []domain.AgentModule, req RunRequest, bound *domain.Bindings) bool {
	if req.Event == nil {
		return false
	}
	m, ok := domain.FindModule(modules, domain.ModuleTrigger)
	if !ok {
		return false
	}
	cfg, _ := m.Config.(*domain.TriggerConfig)
	return r.trigger.ShouldRun(cfg, *req.Event, bound)
}

func (r *Runner) execute(ctx context.Context, st *runState, index int) (domain.ModuleStepLog, bool) {
	m := st.modules[index]
	step := domain.ModuleStepLog{
		ModuleID: m.ID,
		Type:     m.Type,
		Name:     label(r.registry, m.Type),
		Input:    st.bound.Select(module.AvailableInputs(r.registry, st.modules, index)),
	}
	if raw, err := json.Marshal(m.Config); err == nil {
		step.Config = raw
	}

	start := time.Now()
	var (
		outputs map[string]any
		result  any
		err     error
	)
	if verr := r.registry.Preflight(m); verr != nil {
		err = domain.ConfigError(m.Type, verr)
	} else {
		outputs, result, err = r.runModule(ctx, st, m)
	}
	step.DurationMs = time.Since(start).Milliseconds()

	// Объявленные выходы связываются, даже если шаг частично неуспешен
	for _, el := range r.registry.Outputs(m) {
		if v, ok := outputs[el.ID]; ok {
			st.bound.Bind(el, v)
		}
	}

	step.Output = result
	if err != nil {
		step.Status = domain.StepError
		step.Error = err.Error()
	} else {
		step.Status = domain.StepSuccess
	}
	r.metrics.StepDuration.WithLabelValues(string(m.Type), string(step.Status)).Observe(time.Since(start).Seconds())

	return step, domain.RunFatal(err)
}

func (r *Runner) runModule(ctx context.Context, st *runState, m domain.AgentModule) (map[string]any, any, error) {
	switch cfg := m.Config.(type) {
	case *domain.TriggerConfig:
		out := map[string]any{"fired": true, "manual": st.manual}
		if st.event != nil {
			out["event_type"] = st.event.Type
			out["source_entity"] = st.event.SourceEntity
		}
		return map[string]any{module.TriggerOutputID(m.ID): out}, out, nil

	case *domain.PromptConfig:
		text := prompt.Assemble(cfg.Content, st.bound)
		if strings.TrimSpace(text) == "" {
			return nil, nil, domain.ConfigError(m.Type, errors.New("prompt assembled to empty text"))
		}
		st.prompt, st.hasPrompt = text, true
		return map[string]any{module.PromptOutputID(m.ID): text}, text, nil

	case *domain.ModelConfig:
		if cfg.Model == "" {
			return nil, nil, domain.ConfigError(m.Type, llm.ErrNoModel)
		}
		if !st.hasPrompt {
			return nil, nil, domain.ConfigError(m.Type, errors.New("no prompt precedes the model"))
		}
		if r.model == nil {
			return nil, nil, domain.ConfigError(m.Type, errors.New("model provider is not configured"))
		}
		resp, err := r.model.Invoke(ctx, llm.Request{Model: cfg.Model, Prompt: st.prompt, Input: st.bound.Snapshot()})
		if err != nil {
			return nil, nil, domain.UpstreamError(m.Type, err)
		}
		st.latest = resp.Output
		return map[string]any{module.ModelOutputID(m.ID): resp.Output}, resp, nil

	case *domain.ExtractorConfig:
		src := st.latest
		if cfg.SourceInputID != "" {
			v, ok := st.bound.Lookup(cfg.SourceInputID, cfg.SourceInputID)
			if !ok {
				return nil, nil, domain.ConfigError(m.Type, fmt.Errorf("%w: %s", domain.ErrSourceInputNotFound, cfg.SourceInputID))
			}
			src = v
		}
		res, err := extractor.Extract(cfg.Variables, domain.Stringify(src))
		if err != nil {
			return nil, nil, domain.UpstreamError(m.Type, err)
		}
		outputs := make(map[string]any, len(res.Values)+1)
		for name, v := range res.Values {
			outputs[module.JSONVariableID(name)] = v
		}
		outputs[module.JSONFullOutputID(m.ID)] = res.Doc
		if len(res.Missing) > 0 {
			st.logger.Debug("json paths not found", zap.Strings("variables", res.Missing))
		}
		return outputs, map[string]any{"values": res.Values, "missing": res.Missing}, nil

	case *domain.RouterConfig:
		var dests []domain.DestinationElement
		if dm, ok := domain.FindModule(st.modules, domain.ModuleDestinations); ok {
			if dc, ok := dm.Config.(*domain.DestinationsConfig); ok {
				dests = dc.Destinations
			}
		}
		dec := router.Route(cfg, dests, st.bound)
		st.decision = &dec
		for _, w := range dec.Warnings {
			st.logger.Warn("router warning", zap.String("module_id", m.ID), zap.String("warning", w))
		}
		return map[string]any{module.RouteOutputID(m.ID): dec.DestinationIDs}, dec, nil

	case *domain.DestinationsConfig:
		dec := st.destinationSet(cfg.Destinations)
		st.rc.LatestOutput = st.latest
		results := r.dispatcher.Dispatch(ctx, router.Select(cfg.Destinations, dec), st.bound, st.rc)

		outputs := make(map[string]any, len(results)+1)
		var errs error
		failed := 0
		for _, res := range results {
			outputs[module.DestinationOutputID(m.ID, res.DestinationID)] = string(res.Status)
			r.metrics.DispatchTotal.WithLabelValues(string(res.TargetType), string(res.Status)).Inc()
			if res.Status == domain.StepError {
				failed++
				errs = multierr.Append(errs, fmt.Errorf("%s: %s", res.DestinationID, res.Error))
			}
		}
		outputs[module.DispatchOutputID(m.ID)] = results
		if failed > 0 {
			return outputs, results, domain.DeliveryError(m.Type,
				fmt.Errorf("%d of %d destinations failed: %w", failed, len(results), errs))
		}
		return outputs, results, nil

	case *domain.ChannelsConfig:
		text := st.latest
		if cfg.MessageInputID != "" {
			v, ok := st.bound.Lookup(cfg.MessageInputID, cfg.MessageInputID)
			if !ok {
				return nil, nil, domain.ConfigError(m.Type, fmt.Errorf("%w: %s", domain.ErrSourceInputNotFound, cfg.MessageInputID))
			}
			text = v
		}
		msg := notify.Message{
			AgentID:   st.agent.ID,
			AgentName: st.agent.Name,
			RunID:     st.rc.RunID,
			Text:      domain.Stringify(text),
		}
		results := r.notifier.Notify(ctx, cfg.Channels, msg)
		var errs error
		failed := 0
		for _, res := range results {
			r.metrics.NotifyTotal.WithLabelValues(string(res.Type), string(res.Status)).Inc()
			if res.Status == domain.StepError {
				failed++
				errs = multierr.Append(errs, fmt.Errorf("%s: %s", res.ChannelID, res.Error))
			}
		}
		outputs := map[string]any{module.ChannelsOutputID(m.ID): results}
		if failed > 0 {
			return outputs, results, domain.DeliveryError(m.Type,
				fmt.Errorf("%d of %d channels failed: %w", failed, len(results), errs))
		}
		return outputs, results, nil

	default:
		return nil, nil, domain.ConfigError(m.Type, fmt.Errorf("%w: %q", domain.ErrUnknownModuleType, m.Type))
	}
}

// InvokeAgent запускает агента-назначение. Повторный вход в агента из той же цепочки запрещён.
func (r *Runner) InvokeAgent(ctx context.Context, agentID string, payload map[string]any, rc dispatch.RunContext) error {
	if rc.Visited(agentID) {
		return fmt.Errorf("%w: %s", domain.ErrCircularDependency, agentID)
	}
	if r.agents == nil {
		return errors.New("agent store is not configured")
	}
	agent, err := r.agents.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.Paused || has(r.paused, agent.ID) {
		return fmt.Errorf("agent %s is paused", agentID)
	}

	execLog, err := r.Run(ctx, agent, RunRequest{
		Inputs:         payload,
		Manual:         true,
		Chain:          rc.Chain,
		SourceRecordID: rc.SourceRecordID,
	})
	if err != nil {
		return err
	}
	if execLog.Status == domain.RunAborted {
		return fmt.Errorf("agent %s run %s aborted", agentID, execLog.ID)
	}
	return nil
}

// HandleEvent раздаёт событие всем активным агентам параллельно.
// Возвращает журналы запусков, которые триггер пропустил.
func (r *Runner) HandleEvent(ctx context.Context, event domain.TriggerEvent) ([]*domain.ExecutionLog, error) {
	if r.agents == nil {
		return nil, errors.New("agent store is not configured")
	}
	agents, err := r.agents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	var (
		mu   sync.Mutex
		logs []*domain.ExecutionLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, a := range agents {
		if a.Paused || has(r.paused, a.ID) {
			continue
		}
		g.Go(func() error {
			execLog, err := r.Run(gctx, a, RunRequest{Event: &event})
			if err != nil {
				r.logger.Warn("agent refused to run", zap.String("agent_id", a.ID), zap.Error(err))
				return nil
			}
			if execLog.Status == domain.RunNotTriggered {
				return nil
			}
			mu.Lock()
			logs = append(logs, execLog)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].AgentID < logs[j].AgentID })
	return logs, nil
}

func staticInputs(req RunRequest) map[string]any {
	values := make(map[string]any)
	if req.Event != nil {
		for k, v := range req.Event.Payload {
			values[k] = v
		}
		values["event_type"] = req.Event.Type
		values["source_type"] = req.Event.SourceEntity.Type
		values["source_id"] = req.Event.SourceEntity.ID
	}
	for k, v := range req.Inputs {
		values[k] = v
	}
	return values
}

func sourceRecordID(req RunRequest) string {
	if req.SourceRecordID != "" {
		return req.SourceRecordID
	}
	if req.Event != nil {
		return req.Event.SourceEntity.ID
	}
	return ""
}

func skippedStep(reg *module.Registry, m domain.AgentModule) domain.ModuleStepLog {
	return domain.ModuleStepLog{
		ModuleID: m.ID,
		Type:     m.Type,
		Name:     label(reg, m.Type),
		Status:   domain.StepSkipped,
	}
}

func label(reg *module.Registry, t domain.ModuleType) string {
	if d, ok := reg.Get(t); ok {
		return d.Label
	}
	return string(t)
}

func has(flags FlagSet, agentID string) bool {
	return flags != nil && flags.Has(agentID)
}
