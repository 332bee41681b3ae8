package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// RecordWriter записывает значение в колонку целевой записи.
type RecordWriter interface {
	UpdateColumn(ctx context.Context, table, column, recordID string, value any) error
}

// EventPublisher доставляет события UI-компонентам.
type EventPublisher interface {
	Publish(ctx context.Context, ev UIEvent) error
}

// AgentInvoker запускает другого агента как назначение.
type AgentInvoker interface {
	InvokeAgent(ctx context.Context, agentID string, payload map[string]any, rc RunContext) error
}

type UIEvent struct {
	ComponentName string    `json:"component_name"`
	EventType     string    `json:"event_type"`
	AgentID       string    `json:"agent_id"`
	RunID         string    `json:"run_id"`
	DestinationID string    `json:"destination_id"`
	RecordID      string    `json:"record_id,omitempty"`
	Payload       any       `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`
}

// RunContext — контекст запуска, передаваемый по цепочке агентов.
type RunContext struct {
	AgentID        string
	RunID          string
	SourceRecordID string
	// Chain — id агентов, уже участвующих в текущей цепочке вызовов.
	Chain  []string
	DryRun bool
	// LatestOutput — последний выход модели, отправляется когда у назначения нет sourceInputId.
	LatestOutput any
}

func (rc RunContext) Visited(agentID string) bool {
	for _, id := range rc.Chain {
		if id == agentID {
			return true
		}
	}
	return false
}

// Descend возвращает контекст для вложенного агента, цепочка копируется.
func (rc RunContext) Descend(agentID string) RunContext {
	chain := make([]string, len(rc.Chain), len(rc.Chain)+1)
	copy(chain, rc.Chain)
	return RunContext{
		AgentID:        agentID,
		SourceRecordID: rc.SourceRecordID,
		Chain:          append(chain, agentID),
	}
}

type Result struct {
	DestinationID string            `json:"destination_id"`
	TargetType    domain.TargetType `json:"target_type"`
	Status        domain.StepStatus `json:"status"`
	Detail        string            `json:"detail,omitempty"`
	Error         string            `json:"error,omitempty"`
}

type Dispatcher struct {
	records RecordWriter
	events  EventPublisher
	agents  AgentInvoker
	logger  *zap.Logger
}

// New собирает диспетчер. Любой коллаборатор может быть nil, тогда назначения этого типа падают с ошибкой.
func New(records RecordWriter, events EventPublisher, agents AgentInvoker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		records: records,
		events:  events,
		agents:  agents,
		logger:  logger.Named("dispatch"),
	}
}

// SetAgentInvoker подключает исполнителя агентов после создания (раннер зависит от диспетчера).
func (d *Dispatcher) SetAgentInvoker(a AgentInvoker) { d.agents = a }

// Dispatch отправляет данные в каждое назначение независимо, ошибка одного не прерывает остальные.
func (d *Dispatcher) Dispatch(ctx context.Context, selected []domain.DestinationElement, bound *domain.Bindings, rc RunContext) []Result {
	if bound == nil {
		bound = domain.NewBindings()
	}
	results := make([]Result, 0, len(selected))
	seen := make(map[string]bool, len(selected))
	for _, dest := range selected {
		res := Result{DestinationID: dest.ID, TargetType: dest.TargetType}
		var (
			detail string
			err    error
		)
		if seen[dest.ID] {
			err = fmt.Errorf("%w: duplicate destination id %q", domain.ErrInvalidDestination, dest.ID)
		} else {
			seen[dest.ID] = true
			detail, err = d.send(ctx, dest, bound, rc)
		}
		if err != nil {
			res.Status = domain.StepError
			res.Error = err.Error()
			d.logger.Warn("destination failed",
				zap.String("agent_id", rc.AgentID),
				zap.String("destination_id", dest.ID),
				zap.String("target", string(dest.TargetType)),
				zap.Error(err))
		} else {
			res.Status = domain.StepSuccess
			res.Detail = detail
		}
		results = append(results, res)
	}
	return results
}

// checkDestination — проверка одного назначения; неполное назначение падает само, не трогая соседей.
func checkDestination(dest domain.DestinationElement) error {
	if dest.ID == "" {
		return fmt.Errorf("%w: destination without id", domain.ErrInvalidDestination)
	}
	switch dest.TargetType {
	case domain.TargetDatabase:
		if dest.TargetTable == "" || dest.TargetColumn == "" {
			return fmt.Errorf("%w: table and column are required", domain.ErrInvalidDestination)
		}
	case domain.TargetUIComponent:
		if dest.ComponentName == "" {
			return fmt.Errorf("%w: component name is required", domain.ErrInvalidDestination)
		}
	case domain.TargetAgent:
		if dest.TargetAgentID == "" {
			return fmt.Errorf("%w: target agent is required", domain.ErrInvalidDestination)
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedTarget, dest.TargetType)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, dest domain.DestinationElement, bound *domain.Bindings, rc RunContext) (string, error) {
	if err := checkDestination(dest); err != nil {
		return "", err
	}
	value, err := payloadFor(dest, bound, rc)
	if err != nil {
		return "", err
	}

	switch dest.TargetType {
	case domain.TargetDatabase:
		recordID := dest.TargetRecordID
		if recordID == "" {
			recordID = rc.SourceRecordID
		}
		if recordID == "" {
			return "", domain.ErrMissingRecordID
		}
		if rc.DryRun {
			return fmt.Sprintf("simulated update %s.%s[%s]", dest.TargetTable, dest.TargetColumn, recordID), nil
		}
		if d.records == nil {
			return "", fmt.Errorf("%w: no record store configured", domain.ErrUnsupportedTarget)
		}
		if err := d.records.UpdateColumn(ctx, dest.TargetTable, dest.TargetColumn, recordID, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("updated %s.%s[%s]", dest.TargetTable, dest.TargetColumn, recordID), nil

	case domain.TargetUIComponent:
		if d.events == nil {
			return "", fmt.Errorf("%w: no event publisher configured", domain.ErrUnsupportedTarget)
		}
		ev := UIEvent{
			ComponentName: dest.ComponentName,
			EventType:     dest.EventType,
			AgentID:       rc.AgentID,
			RunID:         rc.RunID,
			DestinationID: dest.ID,
			RecordID:      rc.SourceRecordID,
			Payload:       value,
			Timestamp:     time.Now(),
		}
		if err := d.events.Publish(ctx, ev); err != nil {
			return "", err
		}
		return "published to " + dest.ComponentName, nil

	case domain.TargetAgent:
		if rc.Visited(dest.TargetAgentID) {
			return "", fmt.Errorf("%w: %s", domain.ErrCircularDependency, dest.TargetAgentID)
		}
		if rc.DryRun {
			return "simulated invoke of agent " + dest.TargetAgentID, nil
		}
		if d.agents == nil {
			return "", fmt.Errorf("%w: no agent invoker configured", domain.ErrUnsupportedTarget)
		}
		payload := map[string]any{
			"value":           value,
			"source_agent_id": rc.AgentID,
			"source_run_id":   rc.RunID,
		}
		if err := d.agents.InvokeAgent(ctx, dest.TargetAgentID, payload, rc); err != nil {
			return "", err
		}
		return "invoked agent " + dest.TargetAgentID, nil

	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedTarget, dest.TargetType)
	}
}

func payloadFor(dest domain.DestinationElement, bound *domain.Bindings, rc RunContext) (any, error) {
	if dest.SourceInputID == "" {
		return rc.LatestOutput, nil
	}
	v, ok := bound.Lookup(dest.SourceInputID, dest.SourceInputID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceInputNotFound, dest.SourceInputID)
	}
	return v, nil
}
