package module

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Definition — описание типа модуля: схема по умолчанию, выходы и валидация.
// DynamicOutputs и Validate — чистые функции, вызываются без исполнения модуля.
type Definition struct {
	Type  domain.ModuleType
	Label string
	Color string
	Icon  string

	DefaultConfig  func() domain.ModuleConfig
	DynamicOutputs func(cfg domain.ModuleConfig, moduleID string) []domain.InputElement
	Validate       func(cfg domain.ModuleConfig) error

	// PerElement: Validate проверяет отдельные элементы (правила, назначения, каналы).
	// Такие проблемы показываются при сохранении, а при запуске становятся ошибкой
	// только своего элемента, не всего шага.
	PerElement bool
}

// Registry — каталог типов модулей. Каждый тип регистрируется ровно один раз.
type Registry struct {
	mu   sync.RWMutex
	defs map[domain.ModuleType]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[domain.ModuleType]Definition)}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default возвращает реестр со всеми встроенными типами.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		for _, d := range builtinDefinitions() {
			r.MustRegister(d)
		}
		defaultReg = r
	})
	return defaultReg
}

// Register добавляет тип. Повторная регистрация — ошибка.
func (r *Registry) Register(d Definition) error {
	if d.Type == "" || d.DefaultConfig == nil || d.DynamicOutputs == nil || d.Validate == nil {
		return fmt.Errorf("module definition %q is incomplete", d.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[d.Type]; exists {
		return fmt.Errorf("module type %q already registered", d.Type)
	}
	r.defs[d.Type] = d
	return nil
}

func (r *Registry) MustRegister(d Definition) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(t domain.ModuleType) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[t]
	return d, ok
}

// Types перечисляет зарегистрированные типы в каноническом порядке цепочки.
func (r *Registry) Types() []domain.ModuleType {
	out := make([]domain.ModuleType, 0, len(domain.AllModuleTypes))
	for _, t := range domain.AllModuleTypes {
		if _, ok := r.Get(t); ok {
			out = append(out, t)
		}
	}
	return out
}

// NewModule создаёт модуль с конфигом по умолчанию.
func (r *Registry) NewModule(t domain.ModuleType, order int) (domain.AgentModule, error) {
	d, ok := r.Get(t)
	if !ok {
		return domain.AgentModule{}, fmt.Errorf("%w: %q", domain.ErrUnknownModuleType, t)
	}
	return domain.AgentModule{
		ID:     uuid.New().String(),
		Type:   t,
		Order:  order,
		Config: d.DefaultConfig(),
	}, nil
}

// Outputs — динамические выходы модуля. Незарегистрированный тип выходов не даёт.
func (r *Registry) Outputs(m domain.AgentModule) []domain.InputElement {
	d, ok := r.Get(m.Type)
	if !ok || m.Config == nil {
		return nil
	}
	return d.DynamicOutputs(m.Config, m.ID)
}

// Validate проверяет конфиг модуля через определение его типа.
func (r *Registry) Validate(m domain.AgentModule) error {
	d, ok := r.Get(m.Type)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownModuleType, m.Type)
	}
	if m.Config == nil || m.Config.ModuleType() != m.Type {
		return fmt.Errorf("module %s: config does not match type %s", m.ID, m.Type)
	}
	return d.Validate(m.Config)
}

// Preflight — проверка перед исполнением шага. Для PerElement-типов проверяется
// только соответствие конфига типу модуля.
func (r *Registry) Preflight(m domain.AgentModule) error {
	d, ok := r.Get(m.Type)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownModuleType, m.Type)
	}
	if m.Config == nil || m.Config.ModuleType() != m.Type {
		return fmt.Errorf("module %s: config does not match type %s", m.ID, m.Type)
	}
	if d.PerElement {
		return nil
	}
	return d.Validate(m.Config)
}

// Issue — непройденная проверка конфигурации модуля.
type Issue struct {
	ModuleID string            `json:"module_id"`
	Type     domain.ModuleType `json:"type"`
	Message  string            `json:"message"`
}

// Check валидирует все модули агента; блокирующим является только инвариант агента.
func (r *Registry) Check(a *domain.Agent) ([]Issue, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	issues := make([]Issue, 0)
	for _, m := range a.Modules {
		if err := r.Validate(m); err != nil {
			issues = append(issues, Issue{ModuleID: m.ID, Type: m.Type, Message: err.Error()})
		}
	}
	return issues, nil
}
