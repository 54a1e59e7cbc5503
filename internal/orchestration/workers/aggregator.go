package workers

import (
	"context"
	"strings"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
)

// Aggregator concatenates dependency texts into one block and merges every
// dependency citation list. It always succeeds.
type Aggregator struct{}

// NewAggregator creates an aggregator worker.
func NewAggregator() *Aggregator { return &Aggregator{} }

func (a *Aggregator) Name() string           { return "aggregate-worker" }
func (a *Aggregator) Role() contracts.Role   { return contracts.RoleAggregator }
func (a *Aggregator) Capabilities() []string { return []string{"aggregate.merge"} }
func (a *Aggregator) IdentityPrompt() string {
	return planner.IdentityPromptFor(contracts.RoleAggregator)
}

func (a *Aggregator) Run(ctx context.Context, task *contracts.WorkerTask, rc *contracts.RunContext) (*contracts.WorkerResult, error) {
	var pieces []string
	var merged []contracts.Citation

	for _, depID := range orderedDepIDs(task) {
		depOutput := task.Dependencies[depID]
		if depOutput == nil {
			continue
		}
		if text := contracts.OutputText(depOutput); text != "" {
			pieces = append(pieces, text)
		}
		merged = append(merged, contracts.OutputCitations(depOutput)...)
	}

	summary := strings.TrimSpace(strings.Join(pieces, "\n"))
	if summary == "" {
		summary = "no content available to aggregate"
	}
	return &contracts.WorkerResult{
		Success: true,
		Output: map[string]any{
			contracts.KeySummary:   summary,
			contracts.KeyCitations: merged,
		},
		Citations:   merged,
		Recoverable: true,
		Progress:    100,
	}, nil
}
