package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Agent — персистентная автоматизация, заданная упорядоченной цепочкой модулей.
// Поля Model, Prompt, TriggerConfig, RouterConfig — legacy-зеркала, источник правды только Modules.
type Agent struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Pitch   string        `json:"pitch"`
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Modules []AgentModule `json:"modules"`

	TriggerConfig *TriggerConfig `json:"trigger_config,omitempty"`
	RouterConfig  *RouterConfig  `json:"router_config,omitempty"`

	// Состояние в Control Plane
	Paused bool `json:"paused"`
	DryRun bool `json:"dry_run"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate проверяет инвариант: ровно один prompt-модуль с непустым содержимым.
func (a *Agent) Validate() error {
	var prompts []*PromptConfig
	seen := make(map[string]struct{}, len(a.Modules))
	for _, m := range a.Modules {
		if m.ID == "" {
			return fmt.Errorf("%w: module without id", ErrInvalidAgent)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate module id %s", ErrInvalidAgent, m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.Config == nil || m.Config.ModuleType() != m.Type {
			return fmt.Errorf("%w: module %s has no %s config", ErrInvalidAgent, m.ID, m.Type)
		}
		if p, ok := m.Config.(*PromptConfig); ok {
			prompts = append(prompts, p)
		}
	}
	switch {
	case len(prompts) == 0:
		return fmt.Errorf("%w: prompt module is required", ErrInvalidAgent)
	case len(prompts) > 1:
		return fmt.Errorf("%w: exactly one prompt module allowed, got %d", ErrInvalidAgent, len(prompts))
	case strings.TrimSpace(prompts[0].Content) == "":
		return fmt.Errorf("%w: prompt content is empty", ErrInvalidAgent)
	}
	return nil
}

// SyncLegacyMirrors пересобирает legacy-поля из списка модулей.
func (a *Agent) SyncLegacyMirrors() {
	a.Model, a.Prompt = "", ""
	a.TriggerConfig, a.RouterConfig = nil, nil
	for _, m := range a.Modules {
		switch cfg := m.Config.(type) {
		case *PromptConfig:
			if a.Prompt == "" {
				a.Prompt = cfg.Content
			}
		case *ModelConfig:
			if a.Model == "" {
				a.Model = cfg.Model
			}
		case *TriggerConfig:
			if a.TriggerConfig == nil {
				c := *cfg
				a.TriggerConfig = &c
			}
		case *RouterConfig:
			if a.RouterConfig == nil {
				c := *cfg
				a.RouterConfig = &c
			}
		}
	}
}

// OrderedModules возвращает копию, стабильно отсортированную по Order (ничьи — по позиции в списке).
func OrderedModules(modules []AgentModule) []AgentModule {
	out := make([]AgentModule, len(modules))
	copy(out, modules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// FindModule возвращает первый модуль заданного типа.
func FindModule(modules []AgentModule, t ModuleType) (AgentModule, bool) {
	for _, m := range modules {
		if m.Type == t {
			return m, true
		}
	}
	return AgentModule{}, false
}
