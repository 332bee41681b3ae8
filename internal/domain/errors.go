package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAgent        = errors.New("invalid agent")
	ErrAgentNotFound       = errors.New("agent not found")
	ErrModuleNotFound      = errors.New("module not found")
	ErrUnknownModuleType   = errors.New("unknown module type")
	ErrCircularDependency  = errors.New("circular dependency detected")
	ErrMissingRecordID     = errors.New("target record id is missing")
	ErrUnknownDestination  = errors.New("destination not found")
	ErrUnsupportedTarget   = errors.New("unsupported destination target")
	ErrInvalidDestination  = errors.New("invalid destination")
	ErrInvalidChannel      = errors.New("invalid channel")
	ErrUnsupportedChannel  = errors.New("unsupported channel type")
	ErrSourceInputNotFound = errors.New("source input not resolved")
)

// FailureKind классифицирует отказ шага, решение о фатальности принимает Runner.
type FailureKind string

const (
	// KindConfig — модуль настроен так, что исполниться не может.
	KindConfig FailureKind = "config"
	// KindUpstream — отказ внешнего вызова (модель, разбор её ответа).
	KindUpstream FailureKind = "upstream"
	// KindDelivery — не доставлена часть назначений или каналов; соседние элементы доставлены.
	KindDelivery FailureKind = "delivery"
)

// StepFailure — типизированный отказ шага пайплайна.
type StepFailure struct {
	Kind   FailureKind
	Module ModuleType
	Err    error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Module, e.Kind, e.Err)
}

func (e *StepFailure) Unwrap() error { return e.Err }

func ConfigError(t ModuleType, err error) error {
	return &StepFailure{Kind: KindConfig, Module: t, Err: err}
}

func UpstreamError(t ModuleType, err error) error {
	return &StepFailure{Kind: KindUpstream, Module: t, Err: err}
}

func DeliveryError(t ModuleType, err error) error {
	return &StepFailure{Kind: KindDelivery, Module: t, Err: err}
}

// RunFatal: запуск прерывают только config/upstream отказы prompt и model.
// Остальные отказы остаются в журнале шага.
func RunFatal(err error) bool {
	var f *StepFailure
	if !errors.As(err, &f) {
		return false
	}
	if f.Kind == KindDelivery {
		return false
	}
	return f.Module == ModulePrompt || f.Module == ModuleModel
}
