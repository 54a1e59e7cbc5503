package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
	"github.com/ansor-ai/ansor/internal/orchestration/registry"
	"github.com/ansor-ai/ansor/internal/orchestration/runner"
	"github.com/ansor-ai/ansor/pkg/ports"
)

// EventTopic is the bus topic lifecycle events are forwarded to.
const EventTopic = "answer.events"

// DefaultEventBuffer is the runner event channel capacity. The runner drops
// events once the buffer is full rather than blocking execution.
const DefaultEventBuffer = 256

// Engine coordinates one answer turn end to end.
type Engine struct {
	planner   *planner.Planner
	runner    *runner.Runner
	registry  *registry.Registry
	store     ports.RunStore
	bus       ports.EventBus
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	eventBuffer int

	mu     sync.Mutex
	active int
}

// Config holds the engine's injected dependencies.
type Config struct {
	Planner  *planner.Planner
	Runner   *runner.Runner
	Registry *registry.Registry
	Store    ports.RunStore
	Bus      ports.EventBus
	Metrics  ports.MetricsCollector
	Logger   *zap.Logger
	// EventBuffer overrides DefaultEventBuffer when positive.
	EventBuffer int
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Engine{
		planner:     cfg.Planner,
		runner:      cfg.Runner,
		registry:    cfg.Registry,
		store:       cfg.Store,
		bus:         cfg.Bus,
		metrics:     cfg.Metrics,
		validator:   NewValidator(),
		logger:      cfg.Logger,
		eventBuffer: buffer,
	}
}

// Registry exposes the worker registry for diagnostics.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// ActiveRuns reports how many Answer calls are in flight.
func (e *Engine) ActiveRuns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Answer builds a plan for the request, executes it and returns the
// execution result. Structural failures (cyclic plan, unresolvable worker)
// propagate as errors; every other failure degrades into a partial result.
func (e *Engine) Answer(
	ctx context.Context,
	req *contracts.PlanRequest,
	selectedContext []contracts.ContextSnippet,
) (*contracts.ExecutionResult, error) {
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	start := time.Now()
	e.trackRun(1)
	defer e.trackRun(-1)

	plan := e.planner.BuildPlan(req)
	if err := e.validator.Validate(plan); err != nil {
		e.logger.Error("plan validation failed",
			zap.String("trace_id", req.TraceID),
			zap.String("plan_id", plan.PlanID),
			zap.Error(err))
		return nil, fmt.Errorf("plan validation failed: %w", err)
	}
	routeType, _ := plan.Metadata["route_type"].(string)
	e.metrics.RecordPlanBuilt(routeType, len(plan.Nodes))

	events := make(chan contracts.Event, e.eventBuffer)
	var forward sync.WaitGroup
	forward.Add(1)
	go func() {
		defer forward.Done()
		e.forwardEvents(req.TraceID, events)
	}()

	result, err := e.runner.RunPlan(ctx, req, plan, selectedContext, events)
	close(events)
	forward.Wait()

	if err != nil {
		e.metrics.RecordRunCompleted("error", time.Since(start))
		return nil, err
	}

	for _, record := range result.NodeRuns {
		e.metrics.RecordNodeExecuted(string(record.Role), string(record.Status), record.LatencyMS)
	}
	e.metrics.RecordRunCompleted(runStatus(result), time.Since(start))

	if e.store != nil {
		run := &ports.TurnRun{
			SessionID: req.SessionID,
			TurnID:    req.TurnID,
			TraceID:   req.TraceID,
			Query:     req.Query,
			Plan:      plan,
			Result:    result,
			CreatedAt: time.Now(),
		}
		// Persistence is best effort; the answer is returned either way.
		if err := e.store.SaveRun(ctx, run); err != nil {
			e.logger.Warn("failed to persist turn run",
				zap.String("trace_id", req.TraceID),
				zap.String("session_id", req.SessionID),
				zap.Error(err))
		}
	}
	return result, nil
}

// forwardEvents republishes runner events on the event bus until the
// channel closes.
func (e *Engine) forwardEvents(traceID string, events <-chan contracts.Event) {
	for event := range events {
		if e.bus == nil {
			continue
		}
		busEvent := ports.Event{
			ID:        uuid.NewString(),
			Type:      event.Type,
			TraceID:   traceID,
			Timestamp: time.Now(),
			Data:      eventData(event),
		}
		if err := e.bus.Publish(context.Background(), EventTopic, busEvent); err != nil {
			e.logger.Warn("failed to publish lifecycle event",
				zap.String("trace_id", traceID),
				zap.String("event_type", event.Type),
				zap.Error(err))
		}
	}
}

func (e *Engine) trackRun(delta int) {
	e.mu.Lock()
	e.active += delta
	active := e.active
	e.mu.Unlock()
	e.metrics.SetActiveRuns(active)
}

func runStatus(result *contracts.ExecutionResult) string {
	for _, record := range result.NodeRuns {
		if !record.Success {
			return "partial"
		}
	}
	return "completed"
}

func eventData(event contracts.Event) map[string]any {
	data := map[string]any{
		"progress": event.Progress,
	}
	if event.NodeID != "" {
		data["node_id"] = event.NodeID
	}
	if event.Worker != "" {
		data["worker"] = event.Worker
	}
	if event.Role != "" {
		data["role"] = string(event.Role)
	}
	if event.Capability != "" {
		data["capability"] = event.Capability
	}
	if event.Type == contracts.EventWorkerCompleted || event.Type == contracts.EventWorkerFailed {
		data["success"] = event.Success
	}
	if event.Error != "" {
		data["error"] = event.Error
	}
	if event.IdentityPrompt != "" {
		data["identity_prompt"] = event.IdentityPrompt
	}
	if event.TaskPrompt != "" {
		data["task_prompt"] = event.TaskPrompt
	}
	if event.ArtifactPreview != "" {
		data["artifact_preview"] = event.ArtifactPreview
	}
	if event.Total > 0 {
		data["completed"] = event.Completed
		data["total"] = event.Total
	}
	return data
}
