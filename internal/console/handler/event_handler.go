package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/service"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

type EventHandler struct {
	service *service.AgentService
}

func NewEventHandler(s *service.AgentService) *EventHandler {
	return &EventHandler{service: s}
}

type eventResponse struct {
	Runs []*domain.ExecutionLog `json:"runs"`
}

// Ingest принимает событие задачи и запускает подходящих агентов.
// POST /v1/events
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var ev domain.TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if ev.Type == "" {
		badRequest(w, "event type is required")
		return
	}
	logs, err := h.service.HandleEvent(r.Context(), ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, eventResponse{Runs: logs})
}

// Dashboard — сводка по агентам и запускам
// GET /v1/dashboard
func (h *EventHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
