package trigger

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/condition"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Evaluator решает, стартует ли запуск агента для события-источника.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger.Named("trigger")}
}

// ShouldRun: выключенный триггер не запускает никогда; any_match — хотя бы одно условие,
// all_match — все. Без условий включённый триггер срабатывает на любое событие.
func (e *Evaluator) ShouldRun(cfg *domain.TriggerConfig, event domain.TriggerEvent, bound *domain.Bindings) bool {
	if cfg == nil || !cfg.Enabled {
		return false
	}
	if len(cfg.InputTriggers) == 0 {
		return true
	}
	all := cfg.Strategy == domain.TriggerAllMatch
	for _, c := range cfg.InputTriggers {
		ok := e.matches(c, event, bound)
		if ok && !all {
			return true
		}
		if !ok && all {
			return false
		}
	}
	return all
}

func (e *Evaluator) matches(c domain.TriggerCondition, event domain.TriggerEvent, bound *domain.Bindings) bool {
	if c.EventType != "" && !strings.EqualFold(c.EventType, event.Type) {
		return false
	}
	if c.SourceType != "" && !strings.EqualFold(c.SourceType, event.SourceEntity.Type) {
		return false
	}
	if c.Field == "" {
		return true
	}

	val, present := condition.Lookup(toAny(event.Payload), c.Field)
	if !present && bound != nil {
		// Поле может прийти из связанных входов, а не из payload
		val, present = bound.Lookup(c.Field, c.Field)
	}
	ok, err := condition.Compare(val, present, c.Operator, c.Value)
	if err != nil {
		e.logger.Warn("trigger condition failed to evaluate",
			zap.String("condition_id", c.ID),
			zap.String("field", c.Field),
			zap.Error(err))
		return false
	}
	return ok
}

func toAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// SanitizeRaw чистит сохранённый конфиг триггера от legacy-поля rules и прочих неизвестных полей.
func SanitizeRaw(raw json.RawMessage) (*domain.TriggerConfig, error) {
	cfg := &domain.TriggerConfig{Strategy: domain.TriggerAnyMatch}
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("trigger config: %w", err)
	}
	delete(generic, "rules")
	clean, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(clean, cfg); err != nil {
		return nil, fmt.Errorf("trigger config: %w", err)
	}
	Normalize(cfg)
	return cfg, nil
}

// Normalize подставляет стратегию по умолчанию и гарантирует непустой список условий.
func Normalize(cfg *domain.TriggerConfig) {
	if cfg.Strategy != domain.TriggerAllMatch {
		cfg.Strategy = domain.TriggerAnyMatch
	}
	if cfg.InputTriggers == nil {
		cfg.InputTriggers = []domain.TriggerCondition{}
	}
}
