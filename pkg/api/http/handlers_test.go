package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/orchestrator"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
	"github.com/ansor-ai/ansor/internal/orchestration/registry"
	"github.com/ansor-ai/ansor/internal/orchestration/runner"
	"github.com/ansor-ai/ansor/internal/orchestration/workers"
	eventsmemory "github.com/ansor-ai/ansor/pkg/adapters/events/memory"
	storagememory "github.com/ansor-ai/ansor/pkg/adapters/storage/memory"
)

type noopMetrics struct{}

func (noopMetrics) RecordPlanBuilt(routeType string, nodeCount int) {}

func (noopMetrics) RecordRunCompleted(status string, d time.Duration) {}

func (noopMetrics) RecordNodeExecuted(role, status string, latencyMS float64) {}

func (noopMetrics) SetActiveRuns(count int) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()

	reg := registry.New()
	reg.Register(workers.NewResearcher())
	reg.Register(workers.NewSynthesizer(nil, logger))
	reg.Register(workers.NewAggregator())
	reg.Register(workers.NewToolExecutor())
	reg.Register(workers.NewVerifier())

	store := storagememory.NewInMemoryRunStore()
	engine := orchestrator.NewEngine(orchestrator.Config{
		Planner:  planner.New(),
		Runner:   runner.New(registry.NewRouter(reg), logger),
		Registry: reg,
		Store:    store,
		Bus:      eventsmemory.NewInMemoryEventBus(),
		Metrics:  noopMetrics{},
		Logger:   logger,
	})
	health := orchestrator.NewHealthMonitor(engine, time.Minute, logger)

	return NewServer(&Config{
		Port:   0,
		Engine: engine,
		Health: health,
		Store:  store,
		Logger: logger,
	})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status orchestrator.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, 5, status.Workers)
}

func TestHandleAnswer(t *testing.T) {
	s := newTestServer(t)

	body, err := json.Marshal(AnswerRequest{
		Query:     "how does the scheduler order work",
		SessionID: "s1",
		TurnID:    "t1",
		SelectedContext: []contracts.ContextSnippet{
			{TurnID: "turn_1", Summary: "the scheduler batches nodes by dependency depth and runs each batch concurrently", Score: 0.9},
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "t1", resp.TurnID)
	assert.NotEmpty(t, resp.TraceID)
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Result.Answer)

	// The run is retrievable afterwards.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/runs", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "\"total\":1")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/runs/t1", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// And deletable.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s1", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/runs/t1", nil)
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAnswerRejectsMissingQuery(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answers", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

func TestHandleListWorkers(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workers", nil)
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "researcher-worker")
	assert.Contains(t, w.Body.String(), "grounding.verify")
}
