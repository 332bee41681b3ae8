package module

import "github.com/xela07ax/spaceai-agent-pipeline/internal/domain"

// Единственное место, где строятся строковые id динамических выходов.

const (
	kindTrigger  = "trigger"
	kindPrompt   = "prompt"
	kindOutput   = "output"
	kindJSON     = "json"
	kindRoute    = "route"
	kindDispatch = "dispatch"
	kindChannels = "channels"
)

func moduleOutputID(moduleID, kind string) string {
	return "module_" + moduleID + "_" + kind
}

func TriggerOutputID(moduleID string) string  { return moduleOutputID(moduleID, kindTrigger) }
func PromptOutputID(moduleID string) string   { return moduleOutputID(moduleID, kindPrompt) }
func ModelOutputID(moduleID string) string    { return moduleOutputID(moduleID, kindOutput) }
func JSONFullOutputID(moduleID string) string { return moduleOutputID(moduleID, kindJSON) }
func RouteOutputID(moduleID string) string    { return moduleOutputID(moduleID, kindRoute) }
func DispatchOutputID(moduleID string) string { return moduleOutputID(moduleID, kindDispatch) }
func ChannelsOutputID(moduleID string) string { return moduleOutputID(moduleID, kindChannels) }

// JSONVariableID — выход переменной экстрактора. Одинаковые имена из разных модулей затеняют друг друга.
func JSONVariableID(name string) string { return "json_" + name }

func DestinationOutputID(moduleID, destinationID string) string {
	return moduleOutputID(moduleID, "dest_"+destinationID)
}

func element(id, label string) domain.InputElement {
	return domain.InputElement{ID: id, Type: id, Label: label}
}
