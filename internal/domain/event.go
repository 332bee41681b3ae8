package domain

// SourceEntity — сущность, породившая событие (обычно задача на доске).
type SourceEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// TriggerEvent — непрозрачное событие-источник для триггера.
type TriggerEvent struct {
	Type         string         `json:"type"`
	SourceEntity SourceEntity   `json:"sourceEntity"`
	Payload      map[string]any `json:"payload"`
}
