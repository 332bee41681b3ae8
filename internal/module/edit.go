package module

import (
	"fmt"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Update — чистое преобразование списка модулей. Входной список не меняется.
type Update func(modules []domain.AgentModule) ([]domain.AgentModule, error)

// Apply применяет правки по очереди и возвращает новый список.
func Apply(modules []domain.AgentModule, updates ...Update) ([]domain.AgentModule, error) {
	cur, err := domain.CloneModules(modules)
	if err != nil {
		return nil, err
	}
	for _, u := range updates {
		if cur, err = u(cur); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// AddModule вставляет модуль с конфигом по умолчанию после последнего по порядку.
func AddModule(reg *Registry, t domain.ModuleType) Update {
	return func(modules []domain.AgentModule) ([]domain.AgentModule, error) {
		next := 0
		for _, m := range modules {
			if m.Order >= next {
				next = m.Order + 1
			}
		}
		m, err := reg.NewModule(t, next)
		if err != nil {
			return nil, err
		}
		return append(modules, m), nil
	}
}

func RemoveModule(id string) Update {
	return func(modules []domain.AgentModule) ([]domain.AgentModule, error) {
		i := indexOf(modules, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, id)
		}
		out := make([]domain.AgentModule, 0, len(modules)-1)
		out = append(out, modules[:i]...)
		return append(out, modules[i+1:]...), nil
	}
}

// UpdateConfig заменяет конфиг модуля; тип конфига должен совпадать с типом модуля.
func UpdateConfig(id string, cfg domain.ModuleConfig) Update {
	return func(modules []domain.AgentModule) ([]domain.AgentModule, error) {
		i := indexOf(modules, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, id)
		}
		if cfg == nil || cfg.ModuleType() != modules[i].Type {
			return nil, fmt.Errorf("%w: config does not match module type %s", domain.ErrInvalidAgent, modules[i].Type)
		}
		out := make([]domain.AgentModule, len(modules))
		copy(out, modules)
		out[i].Config = cfg
		return out, nil
	}
}

// MoveModule ставит модуль на позицию position упорядоченной цепочки и перенумеровывает order.
func MoveModule(id string, position int) Update {
	return func(modules []domain.AgentModule) ([]domain.AgentModule, error) {
		ordered := domain.OrderedModules(modules)
		i := indexOf(ordered, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, id)
		}
		if position < 0 {
			position = 0
		}
		if position >= len(ordered) {
			position = len(ordered) - 1
		}
		m := ordered[i]
		rest := append(append([]domain.AgentModule{}, ordered[:i]...), ordered[i+1:]...)
		out := make([]domain.AgentModule, 0, len(ordered))
		out = append(out, rest[:position]...)
		out = append(out, m)
		out = append(out, rest[position:]...)
		for k := range out {
			out[k].Order = k
		}
		return out, nil
	}
}

func indexOf(modules []domain.AgentModule, id string) int {
	for i, m := range modules {
		if m.ID == id {
			return i
		}
	}
	return -1
}
