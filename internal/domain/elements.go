package domain

// InputElement — именованное значение, доступное для шаблонов и выбора в модулях.
type InputElement struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "text", "json_<name>", "module_<id>_<kind>" ...
	Label   string `json:"label"`
	Content string `json:"content,omitempty"`
}

type TargetType string

const (
	TargetDatabase    TargetType = "database"
	TargetUIComponent TargetType = "ui_component"
	TargetAgent       TargetType = "agent"
)

// DestinationElement — место, куда пайплайн может отправить данные.
type DestinationElement struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	TargetType    TargetType `json:"targetType"`
	Label         string     `json:"label"`
	ComponentName string     `json:"componentName,omitempty"`
	EventType     string     `json:"eventType,omitempty"`
	TargetTable   string     `json:"targetTable,omitempty"`
	TargetColumn  string     `json:"targetColumn,omitempty"`
	Order         int        `json:"order"`

	SourceInputID  string `json:"sourceInputId,omitempty"`  // какой вход отправлять
	TargetRecordID string `json:"targetRecordId,omitempty"` // фиксированная запись вместо записи-источника
	TargetAgentID  string `json:"targetAgentId,omitempty"`
}

// Condition ссылается на вход и сравнение с ним.
type Condition struct {
	ID        string `json:"id"`
	InputID   string `json:"inputId"`
	InputType string `json:"inputType,omitempty"`
	Operator  string `json:"operator"`
	Value     string `json:"value,omitempty"`
}

type RouterRule struct {
	ID             string      `json:"id"`
	DestinationID  string      `json:"destinationId"`
	Conditions     []Condition `json:"conditions"`
	ConditionLogic string      `json:"conditionLogic,omitempty"` // "1 AND (2 OR NOT 3)"
}

type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWebhook  ChannelType = "webhook"
	ChannelLog      ChannelType = "log"
)

// ChannelConfig — внешний транспорт уведомлений.
type ChannelConfig struct {
	ID      string      `json:"id"`
	Type    ChannelType `json:"type"`
	Label   string      `json:"label,omitempty"`
	Target  string      `json:"target"` // chat id, URL ...
	Enabled bool        `json:"enabled"`
}
