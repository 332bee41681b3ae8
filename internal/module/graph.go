package module

import (
	"strings"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/prompt"
)

// ResolveInputsFor возвращает выходы всех модулей с индексом < uptoIndex в порядке модулей.
// Дубликаты id не схлопываются: потребитель берёт последний.
func ResolveInputsFor(reg *Registry, modules []domain.AgentModule, uptoIndex int) []domain.InputElement {
	if uptoIndex > len(modules) {
		uptoIndex = len(modules)
	}
	out := make([]domain.InputElement, 0)
	for i := 0; i < uptoIndex; i++ {
		out = append(out, reg.Outputs(modules[i])...)
	}
	return out
}

// StaticInputs — плейсхолдеры промпта, которые не ссылаются на выходы модулей.
func StaticInputs(modules []domain.AgentModule) []domain.InputElement {
	out := make([]domain.InputElement, 0)
	for _, m := range modules {
		cfg, ok := m.Config.(*domain.PromptConfig)
		if !ok {
			continue
		}
		for _, el := range prompt.Placeholders(cfg.Content) {
			if isDynamicRef(el.ID) {
				continue
			}
			out = append(out, el)
		}
	}
	return out
}

// AvailableInputs — полный набор входов для модуля на позиции index упорядоченного списка.
func AvailableInputs(reg *Registry, modules []domain.AgentModule, index int) []domain.InputElement {
	return append(StaticInputs(modules), ResolveInputsFor(reg, modules, index)...)
}

func isDynamicRef(id string) bool {
	return strings.HasPrefix(id, "module_") || strings.HasPrefix(id, "json_")
}
