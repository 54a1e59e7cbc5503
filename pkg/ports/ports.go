// Package ports defines the interfaces between the orchestration core and
// its infrastructure adapters: event delivery, run persistence, metrics and
// the optional completion client.
package ports

import (
	"context"
	"time"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

// Event is the envelope published on the event bus.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TraceID   string         `json:"trace_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventHandler processes one delivered event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus publishes and subscribes lifecycle events by topic. Delivery is
// best effort; handlers must tolerate redelivery and loss.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// TurnRun is the persisted record of one answered turn: the plan that was
// built and the execution result it produced.
type TurnRun struct {
	SessionID string                     `json:"session_id"`
	TurnID    string                     `json:"turn_id"`
	TraceID   string                     `json:"trace_id"`
	Query     string                     `json:"query"`
	Plan      *contracts.PlanGraph       `json:"plan"`
	Result    *contracts.ExecutionResult `json:"result"`
	CreatedAt time.Time                  `json:"created_at"`
}

// RunStore persists turn runs per session. The orchestration core never
// reads it back; it exists for callers and diagnostics.
type RunStore interface {
	SaveRun(ctx context.Context, run *TurnRun) error
	GetRun(ctx context.Context, sessionID, turnID string) (*TurnRun, error)
	ListRuns(ctx context.Context, sessionID string) ([]*TurnRun, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordPlanBuilt(routeType string, nodeCount int)
	RecordRunCompleted(status string, duration time.Duration)
	RecordNodeExecuted(role, status string, latencyMS float64)
	SetActiveRuns(count int)
}

// CompletionClient is the optional LLM port used by the synthesizer.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
