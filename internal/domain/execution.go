package domain

import (
	"encoding/json"
	"time"
)

type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepSkipped StepStatus = "skipped"
)

type RunStatus string

const (
	RunCompleted    RunStatus = "completed"
	RunAborted      RunStatus = "aborted"
	RunNotTriggered RunStatus = "not_triggered"
)

// ModuleStepLog — запись об одном шаге пайплайна.
type ModuleStepLog struct {
	ModuleID   string          `json:"module_id"`
	Type       ModuleType      `json:"type"`
	Name       string          `json:"name"`
	Status     StepStatus      `json:"status"`
	Input      any             `json:"input,omitempty"`
	Output     any             `json:"output,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// ExecutionLog — append-only журнал одного запуска.
type ExecutionLog struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agent_id"`
	TraceID    string          `json:"trace_id,omitempty"`
	Status     RunStatus       `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	FinishedAt time.Time       `json:"finished_at"`
	Steps      []ModuleStepLog `json:"steps"`

	sealed bool
}

func NewExecutionLog(id, agentID string) *ExecutionLog {
	return &ExecutionLog{
		ID:        id,
		AgentID:   agentID,
		Timestamp: time.Now(),
		Steps:     make([]ModuleStepLog, 0),
	}
}

// Append добавляет шаг. После Seal вызов игнорируется.
func (l *ExecutionLog) Append(step ModuleStepLog) {
	if l.sealed {
		return
	}
	l.Steps = append(l.Steps, step)
}

// Seal фиксирует итоговый статус, журнал больше не меняется.
func (l *ExecutionLog) Seal(status RunStatus) {
	if l.sealed {
		return
	}
	l.Status = status
	l.FinishedAt = time.Now()
	l.sealed = true
}

func (l *ExecutionLog) Sealed() bool { return l.sealed }

// Failed возвращает шаги со статусом error.
func (l *ExecutionLog) Failed() []ModuleStepLog {
	var out []ModuleStepLog
	for _, s := range l.Steps {
		if s.Status == StepError {
			out = append(out, s)
		}
	}
	return out
}
