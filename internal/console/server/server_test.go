package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/handler"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/service"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/control"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/llm"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/module"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/pipeline"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/repository/memory"
)

type memRuns struct {
	mu   sync.Mutex
	logs []*domain.ExecutionLog
}

func (m *memRuns) Record(l *domain.ExecutionLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
}

func (m *memRuns) ListRuns(_ context.Context, agentID string, _ int) ([]*domain.ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ExecutionLog
	for _, l := range m.logs {
		if l.AgentID == agentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memRuns) RunStats(_ context.Context, window time.Duration) (*domain.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.RunStats{Window: window}
	for _, l := range m.logs {
		s.Total++
		if l.Status == domain.RunCompleted {
			s.Completed++
		}
	}
	return s, nil
}

type fixture struct {
	srv    *ConsoleServer
	paused *control.FlagManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewAgentRepo()
	runs := &memRuns{}
	reg := prometheus.NewRegistry()
	paused := control.NewPausedFlags(nil, repo, nil)
	dryRun := control.NewDryRunFlags(nil, repo, nil)

	runner := pipeline.NewRunner(pipeline.Deps{
		Model: llm.ProviderFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
			return &llm.Response{Output: req.Prompt}, nil
		}),
		Agents:  repo,
		History: runs,
		Paused:  paused,
		DryRun:  dryRun,
		Metrics: pipeline.NewMetrics(reg),
	})
	svc := service.NewAgentService(service.Deps{
		Repo:     repo,
		Runs:     runs,
		Stats:    runs,
		Runner:   runner,
		Registry: runner.Registry(),
		Paused:   paused,
		DryRun:   dryRun,
	})
	srv := NewConsoleServer(nil, nil, reg, handler.NewAgentHandler(svc, nil), handler.NewEventHandler(svc))
	return &fixture{srv: srv, paused: paused}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

var triageAgent = map[string]any{
	"name": "Triage",
	"modules": []map[string]any{
		{"id": "trg", "type": "trigger", "order": 0, "config": map[string]any{
			"enabled":       true,
			"strategy":      "any_match",
			"inputTriggers": []map[string]any{{"id": "c1", "eventType": "task_created"}},
		}},
		{"id": "prm", "type": "prompt", "order": 1, "config": map[string]any{
			"content": "<p>Summarize {{title}}</p>",
		}},
	},
}

func TestAgentLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/v1/agents/a1", triageAgent)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Agent](t, rec), 1)

	// модель добавляется с пустым конфигом, затем выбирается
	rec = f.do(t, http.MethodPost, "/v1/agents/a1/modules", map[string]string{"type": "model"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	agent := decode[domain.Agent](t, rec)
	require.Len(t, agent.Modules, 3)
	modelID := agent.Modules[2].ID

	rec = f.do(t, http.MethodPatch, "/v1/agents/a1/modules/"+modelID, map[string]string{"model": "gpt-4o-mini"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "gpt-4o-mini", decode[domain.Agent](t, rec).Model)

	rec = f.do(t, http.MethodGet, "/v1/agents/a1/modules/2/inputs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ids := make([]string, 0)
	for _, in := range decode[[]domain.InputElement](t, rec) {
		ids = append(ids, in.ID)
	}
	assert.Contains(t, ids, "title")
	assert.Contains(t, ids, module.TriggerOutputID("trg"))
	assert.Contains(t, ids, module.PromptOutputID("prm"))

	rec = f.do(t, http.MethodPost, "/v1/agents/a1/run", map[string]any{"inputs": map[string]any{"title": "Login broken"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[domain.ExecutionLog](t, rec)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = f.do(t, http.MethodGet, "/v1/agents/a1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.ExecutionLog](t, rec), 1)
}

func TestEventsRespectPause(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/v1/agents/a1", triageAgent).Code)

	event := map[string]any{
		"type":         "task_created",
		"sourceEntity": map[string]string{"type": "task", "id": "T-1"},
		"payload":      map[string]any{"title": "Crash on start"},
	}

	rec := f.do(t, http.MethodPost, "/v1/agents/a1/pause", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.paused.Has("a1"))

	rec = f.do(t, http.MethodPost, "/v1/events", event)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, decode[map[string][]domain.ExecutionLog](t, rec)["runs"])

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/v1/agents/a1/resume", nil).Code)
	assert.False(t, f.paused.Has("a1"))

	rec = f.do(t, http.MethodPost, "/v1/events", event)
	require.Equal(t, http.StatusAccepted, rec.Code)
	runs := decode[map[string][]domain.ExecutionLog](t, rec)["runs"]
	require.Len(t, runs, 1)
	assert.Equal(t, "a1", runs[0].AgentID)

	// событие другого типа триггер не пропускает
	event["type"] = "task_deleted"
	rec = f.do(t, http.MethodPost, "/v1/events", event)
	assert.Empty(t, decode[map[string][]domain.ExecutionLog](t, rec)["runs"])
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/agents/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/v1/agents/missing/pause", nil).Code)

	noPrompt := map[string]any{"name": "x", "modules": []any{}}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/v1/agents/x", noPrompt).Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/v1/agents/a1", triageAgent).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/v1/agents/a1/modules", map[string]string{"type": "teleport"}).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(t, http.MethodDelete, "/v1/agents/a1/modules/nope", nil).Code)
	// удаление единственного промпта нарушает инвариант агента
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodDelete, "/v1/agents/a1/modules/prm", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/agents/a1/modules/x/inputs", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/events", map[string]any{}).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/v1/agents/a1", triageAgent).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/v1/agents/a2", triageAgent).Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/v1/agents/a2/dry-run", map[string]bool{"enabled": true}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/agents/a1/run", nil).Code)

	rec := f.do(t, http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[domain.Dashboard](t, rec)
	assert.Equal(t, 2, d.Agents.Total)
	assert.Equal(t, 1, d.Agents.DryRun)
	assert.EqualValues(t, 1, d.Runs.Total)
	assert.EqualValues(t, 1, d.Runs.Completed)
}
