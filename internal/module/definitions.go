package module

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/condition"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

var errConfigType = errors.New("unexpected config type")

func builtinDefinitions() []Definition {
	return []Definition{
		triggerDefinition(),
		promptDefinition(),
		modelDefinition(),
		extractorDefinition(),
		routerDefinition(),
		destinationsDefinition(),
		channelsDefinition(),
	}
}

func triggerDefinition() Definition {
	return Definition{
		Type:  domain.ModuleTrigger,
		Label: "Trigger",
		Color: "amber",
		Icon:  "zap",
		DefaultConfig: func() domain.ModuleConfig {
			return &domain.TriggerConfig{
				Enabled:       false,
				InputTriggers: []domain.TriggerCondition{},
				Strategy:      domain.TriggerAnyMatch,
			}
		},
		DynamicOutputs: func(c domain.ModuleConfig, id string) []domain.InputElement {
			cfg, ok := c.(*domain.TriggerConfig)
			if !ok || !cfg.Enabled {
				return nil
			}
			return []domain.InputElement{element(TriggerOutputID(id), "Trigger fired")}
		},
		Validate: func(c domain.ModuleConfig) error {
			cfg, ok := c.(*domain.TriggerConfig)
			if !ok {
				return errConfigType
			}
			switch cfg.Strategy {
			case "", domain.TriggerAnyMatch, domain.TriggerAllMatch:
			default:
				return fmt.Errorf("unknown trigger strategy %q", cfg.Strategy)
			}
			return uniqueIDs("trigger condition", len(cfg.InputTriggers), func(i int) string { return cfg.InputTriggers[i].ID })
		},
	}
}

func promptDefinition() Definition {
	return Definition{
		Type:  domain.ModulePrompt,
		Label: "Prompt",
		Color: "blue",
		Icon:  "message-square",
		DefaultConfig: func() domain.ModuleConfig {
			return &domain.PromptConfig{Content: ""}
		},
		DynamicOutputs: func(c domain.ModuleConfig, id string) []domain.InputElement {
			cfg, ok := c.(*domain.PromptConfig)
			if !ok || strings.TrimSpace(cfg.Content) == "" {
				return nil
			}
			return []domain.InputElement{element(PromptOutputID(id), "Assembled prompt")}
		},
		Validate: func(c domain.ModuleConfig) error {
			cfg, ok := c.(*domain.PromptConfig)
			if !ok {
				return errConfigType
			}
			if strings.TrimSpace(cfg.Content) == "" {
				return errors.New("prompt content is empty")
			}
			return nil
		},
	}
}

func modelDefinition() Definition {
	return Definition{
		Type:  domain.ModuleModel,
		Label: "Model",
		Color: "violet",
		Icon:  "cpu",
		DefaultConfig: func() domain.ModuleConfig {
			return &domain.ModelConfig{}
		},
		DynamicOutputs: func(c domain.ModuleConfig, id string) []domain.InputElement {
			cfg, ok := c.(*domain.ModelConfig)
			if !ok || cfg.Model == "" {
				return nil
			}
			return []domain.InputElement{element(ModelOutputID(id), "Model response ("+cfg.Model+")")}
		},
		Validate: func(c domain.ModuleConfig) error {
			cfg, ok := c.(*domain.ModelConfig)
			if !ok {
				return errConfigType
			}
			if cfg.Model == "" {
				return errors.New("model is not selected")
			}
			return nil
		},
	}
}

func extractorDefinition() Definition {
	return Definition{
		Type:  domain.ModuleJSONExtractor,
		Label: "JSON Extractor",
		Color: "emerald",
		Icon:  "braces",
		DefaultConfig: func() domain.ModuleConfig {
			return &domain.ExtractorConfig{Variables: []domain.ExtractorVariable{}}
		},
		DynamicOutputs: func(c domain.ModuleConfig, id string) []domain.InputElement {
			cfg, ok := c.(*domain.ExtractorConfig)
			if !ok {
				return nil
			}
			out := make([]domain.InputElement, 0, len(cfg.Variables)+1)
			for _, v := range cfg.Variables {
				if v.Name == "" {
					continue
				}
				out = append(out, element(JSONVariableID(v.Name), "JSON: "+v.Name))
			}
			return append(out, element(JSONFullOutputID(id), "Full JSON"))
		},
		Validate: func(c domain.ModuleConfig) error {
			cfg, ok := c.(*domain.ExtractorConfig)
			if !ok {
				return errConfigType
			}
			seen := make(map[string]struct{}, len(cfg.Variables))
			for _, v := range cfg.Variables {
				if v.Name == "" {
					return errors.New("extractor variable without name")
				}
				if _, dup := seen[v.Name]; dup {
					return fmt.Errorf("duplicate extractor variable %q", v.Name)
				}
				seen[v.Name] = struct{}{}
			}
			return nil
		},
	}
}

func routerDefinition() Definition {
	return Definition{
		Type:  domain.ModuleRouter,
		Label: "Router",
		Color: "orange",
		Icon:  "git-branch",

		PerElement: true,

		DefaultConfig: func() domain.ModuleConfig {
			return &domain.RouterConfig{Strategy: domain.RouteAllDestinations, Rules: []domain.RouterRule{}}
		},
		DynamicOutputs: func(c domain.ModuleConfig, id string) []domain.InputElement {
			if _, ok := c.(*domain.RouterConfig); !ok {
				return nil
			}
			return []domain.InputElement{element(RouteOutputID(id), "Routing decision")}
		},
		Validate: func(c domain.ModuleConfig) error {
			cfg, ok := c.(*domain.RouterConfig)
			if !ok {
				return errConfigType
			}
			switch cfg.Strategy {
			case "", domain.RouteAllDestinations, domain.RouteRuleBased, "rule-based":
			default:
				return fmt.Errorf("unknown router strategy %q", cfg.Strategy)
			}
			for _, rule := range cfg.Rules {
				if rule.DestinationID == "" {
					return fmt.Errorf("rule %s has no destination", rule.ID)
				}
				if strings.TrimSpace(rule.ConditionLogic) == "" {
					continue
				}
				if _, err := condition.ParseLogic(rule.ConditionLogic); err != nil {
					return fmt.Errorf("rule %s: %w", rule.ID, err)
				}
			}
			return uniqueIDs("router rule", len(cfg.Rules), func(i int) string { return cfg.Rules[i].ID })
		},
	}
}

func destinationsDefinition() Definition {
	return Definition{
		Type:  domain.ModuleDestinations,
		Label: "Destinations",
		Color: "teal",
		Icon:  "send",

		PerElement: true,

		DefaultConfig: func() domain.ModuleConfig {
			return &domain.DestinationsConfig{Destinations: []domain.DestinationElement{}}
		},
		DynamicOutputs: func(c domain.ModuleConfig, id string) []domain.InputElement {
			cfg, ok := c.(*domain.DestinationsConfig)
			if !ok {
				return nil
			}
			out := make([]domain.InputElement, 0, len(cfg.Destinations)+1)
			for _, d := range cfg.Destinations {
				label := d.Label
				if label == "" {
					label = string(d.TargetType)
				}
				out = append(out, element(DestinationOutputID(id, d.ID), "Destination: "+label))
			}
			return append(out, element(DispatchOutputID(id), "Dispatch result"))
		},
		Validate: func(c domain.ModuleConfig) error {
			cfg, ok := c.(*domain.DestinationsConfig)
			if !ok {
				return errConfigType
			}
			for _, d := range cfg.Destinations {
				switch d.TargetType {
				case domain.TargetDatabase:
					if d.TargetTable == "" || d.TargetColumn == "" {
						return fmt.Errorf("destination %s: table and column are required", d.ID)
					}
				case domain.TargetUIComponent:
					if d.ComponentName == "" {
						return fmt.Errorf("destination %s: component name is required", d.ID)
					}
				case domain.TargetAgent:
					if d.TargetAgentID == "" {
						return fmt.Errorf("destination %s: target agent is required", d.ID)
					}
				default:
					return fmt.Errorf("destination %s: %w %q", d.ID, domain.ErrUnsupportedTarget, d.TargetType)
				}
			}
			return uniqueIDs("destination", len(cfg.Destinations), func(i int) string { return cfg.Destinations[i].ID })
		},
	}
}

func channelsDefinition() Definition {
	return Definition{
		Type:  domain.ModuleChannels,
		Label: "Channels",
		Color: "pink",
		Icon:  "bell",

		PerElement: true,

		DefaultConfig: func() domain.ModuleConfig {
			return &domain.ChannelsConfig{Channels: []domain.ChannelConfig{}}
		},
		DynamicOutputs: func(c domain.ModuleConfig, id string) []domain.InputElement {
			if _, ok := c.(*domain.ChannelsConfig); !ok {
				return nil
			}
			return []domain.InputElement{element(ChannelsOutputID(id), "Channel dispatch result")}
		},
		Validate: func(c domain.ModuleConfig) error {
			cfg, ok := c.(*domain.ChannelsConfig)
			if !ok {
				return errConfigType
			}
			for _, ch := range cfg.Channels {
				switch ch.Type {
				case domain.ChannelTelegram, domain.ChannelWebhook:
					if ch.Target == "" {
						return fmt.Errorf("channel %s: target is required", ch.ID)
					}
				case domain.ChannelLog:
				default:
					return fmt.Errorf("channel %s: %w %q", ch.ID, domain.ErrUnsupportedChannel, ch.Type)
				}
			}
			return uniqueIDs("channel", len(cfg.Channels), func(i int) string { return cfg.Channels[i].ID })
		},
	}
}

func uniqueIDs(what string, n int, id func(i int) string) error {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return fmt.Errorf("%s without id", what)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("duplicate %s id %q", what, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}
