package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/service"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/module"
)

type AgentHandler struct {
	service *service.AgentService
	logger  *zap.Logger
}

func NewAgentHandler(s *service.AgentService, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{service: s, logger: logger.Named("agent-handler")}
}

// List возвращает всех агентов
// GET /v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// GET /v1/agents/{id}
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.service.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type saveResponse struct {
	Agent  *domain.Agent  `json:"agent"`
	Issues []module.Issue `json:"issues"`
}

// Put создаёт или целиком заменяет агента. id берётся из пути.
// PUT /v1/agents/{id}
func (h *AgentHandler) Put(w http.ResponseWriter, r *http.Request) {
	var a domain.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	a.ID = chi.URLParam(r, "id")

	issues, err := h.service.SaveAgent(r.Context(), &a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Agent: &a, Issues: issues})
}

type addModuleRequest struct {
	Type domain.ModuleType `json:"type"`
}

// POST /v1/agents/{id}/modules
func (h *AgentHandler) AddModule(w http.ResponseWriter, r *http.Request) {
	var req addModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		badRequest(w, "module type is required")
		return
	}
	agent, err := h.service.AddModule(r.Context(), chi.URLParam(r, "id"), req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// PatchModule заменяет конфиг модуля, тело — сам конфиг.
// PATCH /v1/agents/{id}/modules/{moduleID}
func (h *AgentHandler) PatchModule(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	agent, err := h.service.UpdateModuleConfig(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "moduleID"), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// DELETE /v1/agents/{id}/modules/{moduleID}
func (h *AgentHandler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	agent, err := h.service.RemoveModule(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type moveModuleRequest struct {
	Position int `json:"position"`
}

// POST /v1/agents/{id}/modules/{moduleID}/move
func (h *AgentHandler) MoveModule(w http.ResponseWriter, r *http.Request) {
	var req moveModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	agent, err := h.service.MoveModule(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "moduleID"), req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// Inputs — граф входов для модуля на позиции index
// GET /v1/agents/{id}/modules/{index}/inputs
func (h *AgentHandler) Inputs(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, "module index must be a number")
		return
	}
	inputs, err := h.service.Inputs(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inputs)
}

type runRequest struct {
	Inputs map[string]any       `json:"inputs"`
	Event  *domain.TriggerEvent `json:"event,omitempty"`
}

// Run — ручной запуск агента. Тело необязательно.
// POST /v1/agents/{id}/run
func (h *AgentHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}
	execLog, err := h.service.RunAgent(r.Context(), chi.URLParam(r, "id"), req.Inputs, req.Event)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execLog)
}

// GET /v1/agents/{id}/runs?limit=N
func (h *AgentHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative number")
			return
		}
		limit = n
	}
	logs, err := h.service.ListRuns(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// POST /v1/agents/{id}/pause
func (h *AgentHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, func(id string) error { return h.service.PauseAgent(r.Context(), id) })
}

// POST /v1/agents/{id}/resume
func (h *AgentHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, func(id string) error { return h.service.ResumeAgent(r.Context(), id) })
}

type dryRunRequest struct {
	Enabled bool `json:"enabled"`
}

// POST /v1/agents/{id}/dry-run {"enabled": true}
func (h *AgentHandler) SetDryRun(w http.ResponseWriter, r *http.Request) {
	var req dryRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	h.flag(w, r, func(id string) error { return h.service.SetDryRun(r.Context(), id, req.Enabled) })
}

func (h *AgentHandler) flag(w http.ResponseWriter, r *http.Request, apply func(id string) error) {
	agentID := chi.URLParam(r, "id")
	if agentID == "" {
		badRequest(w, "agent id is required")
		return
	}
	// Ждём и БД, и сигнал, чтобы ответ отражал реальное состояние
	if err := apply(agentID); err != nil {
		h.logger.Warn("flag update failed", zap.String("agent_id", agentID), zap.Error(err))
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
