package domain

import (
	"encoding/json"
	"fmt"
)

// ModuleType — тег варианта модуля в цепочке агента.
type ModuleType string

const (
	ModuleTrigger       ModuleType = "trigger"
	ModulePrompt        ModuleType = "prompt"
	ModuleModel         ModuleType = "model"
	ModuleJSONExtractor ModuleType = "json_extractor"
	ModuleRouter        ModuleType = "router"
	ModuleDestinations  ModuleType = "destinations"
	ModuleChannels      ModuleType = "channels"
)

// AllModuleTypes перечисляет типы в каноническом порядке цепочки.
var AllModuleTypes = []ModuleType{
	ModuleTrigger,
	ModulePrompt,
	ModuleModel,
	ModuleJSONExtractor,
	ModuleRouter,
	ModuleDestinations,
	ModuleChannels,
}

// ModuleConfig — закрытое множество конфигураций, по одной структуре на тип.
type ModuleConfig interface {
	ModuleType() ModuleType
}

// AgentModule — один шаг пайплайна агента.
type AgentModule struct {
	ID     string       `json:"id"`
	Type   ModuleType   `json:"type"`
	Order  int          `json:"order"`
	Config ModuleConfig `json:"config"`
}

type rawModule struct {
	ID     string          `json:"id"`
	Type   ModuleType      `json:"type"`
	Order  int             `json:"order"`
	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON выбирает вариант конфигурации по полю type.
func (m *AgentModule) UnmarshalJSON(data []byte) error {
	var raw rawModule
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := DecodeModuleConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("module %s: %w", raw.ID, err)
	}
	m.ID = raw.ID
	m.Type = raw.Type
	m.Order = raw.Order
	m.Config = cfg
	return nil
}

// DecodeModuleConfig декодирует конфиг конкретного типа. Пустой raw даёт нулевой конфиг.
func DecodeModuleConfig(t ModuleType, raw json.RawMessage) (ModuleConfig, error) {
	var cfg ModuleConfig
	switch t {
	case ModuleTrigger:
		cfg = &TriggerConfig{}
	case ModulePrompt:
		cfg = &PromptConfig{}
	case ModuleModel:
		cfg = &ModelConfig{}
	case ModuleJSONExtractor:
		cfg = &ExtractorConfig{}
	case ModuleRouter:
		cfg = &RouterConfig{}
	case ModuleDestinations:
		cfg = &DestinationsConfig{}
	case ModuleChannels:
		cfg = &ChannelsConfig{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModuleType, t)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	return cfg, nil
}

// CloneModules делает глубокую копию списка через JSON, чтобы запуск не видел правок редактора.
func CloneModules(modules []AgentModule) ([]AgentModule, error) {
	data, err := json.Marshal(modules)
	if err != nil {
		return nil, err
	}
	var out []AgentModule
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Варианты конфигураций ---

type TriggerStrategy string

const (
	TriggerAnyMatch TriggerStrategy = "any_match"
	TriggerAllMatch TriggerStrategy = "all_match"
)

type TriggerConfig struct {
	Enabled       bool               `json:"enabled"`
	InputTriggers []TriggerCondition `json:"inputTriggers"`
	Strategy      TriggerStrategy    `json:"strategy"`
}

func (*TriggerConfig) ModuleType() ModuleType { return ModuleTrigger }

// TriggerCondition сопоставляется с событием-источником.
type TriggerCondition struct {
	ID         string `json:"id"`
	EventType  string `json:"eventType,omitempty"`  // task_created, task_updated ...
	SourceType string `json:"sourceType,omitempty"` // task, board ...
	Field      string `json:"field,omitempty"`      // путь в payload события
	Operator   string `json:"operator,omitempty"`
	Value      string `json:"value,omitempty"`
}

type PromptConfig struct {
	Content string `json:"content"` // HTML шаблон с плейсхолдерами
}

func (*PromptConfig) ModuleType() ModuleType { return ModulePrompt }

type ModelConfig struct {
	Model string `json:"model"`
}

func (*ModelConfig) ModuleType() ModuleType { return ModuleModel }

type ExtractorVariable struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type ExtractorConfig struct {
	SourceInputID string              `json:"sourceInputId,omitempty"`
	Variables     []ExtractorVariable `json:"variables"`
}

func (*ExtractorConfig) ModuleType() ModuleType { return ModuleJSONExtractor }

type RouterStrategy string

const (
	RouteAllDestinations RouterStrategy = "all_destinations"
	RouteRuleBased       RouterStrategy = "rule_based"
)

type RouterConfig struct {
	Strategy RouterStrategy `json:"strategy"`
	Rules    []RouterRule   `json:"rules"`
}

func (*RouterConfig) ModuleType() ModuleType { return ModuleRouter }

type DestinationsConfig struct {
	Destinations []DestinationElement `json:"destinations"`
}

func (*DestinationsConfig) ModuleType() ModuleType { return ModuleDestinations }

type ChannelsConfig struct {
	Channels       []ChannelConfig `json:"channels"`
	MessageInputID string          `json:"messageInputId,omitempty"`
}

func (*ChannelsConfig) ModuleType() ModuleType { return ModuleChannels }
