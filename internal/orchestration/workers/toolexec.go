package workers

import (
	"context"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
)

// ToolExecutor is a placeholder adapter for external tool integrations. It
// echoes the requested tool name and payload, performs no external effect
// and always succeeds.
type ToolExecutor struct{}

// NewToolExecutor creates a tool-executor worker.
func NewToolExecutor() *ToolExecutor { return &ToolExecutor{} }

func (t *ToolExecutor) Name() string         { return "tool-executor-worker" }
func (t *ToolExecutor) Role() contracts.Role { return contracts.RoleToolExecutor }
func (t *ToolExecutor) Capabilities() []string {
	return []string{"tool.execute", "tool.read", "tool.fetch"}
}
func (t *ToolExecutor) IdentityPrompt() string {
	return planner.IdentityPromptFor(contracts.RoleToolExecutor)
}

func (t *ToolExecutor) Run(ctx context.Context, task *contracts.WorkerTask, rc *contracts.RunContext) (*contracts.WorkerResult, error) {
	toolName := "tool.default"
	if name, ok := task.Payload["tool"].(string); ok && name != "" {
		toolName = name
	} else if tools, ok := task.Payload["tools"].([]string); ok && len(tools) > 0 {
		toolName = tools[0]
	}
	return &contracts.WorkerResult{
		Success: true,
		Output: map[string]any{
			"tool":    toolName,
			"note":    "tool adapter placeholder: no external side effect executed",
			"payload": task.Payload,
		},
		Recoverable: true,
		Progress:    100,
	}, nil
}
