package orchestrator

import (
	"fmt"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

// Validator checks plan graph structure before execution. Dangling
// depends_on references are deliberately not an error here: the runner
// treats them as permanently missing dependencies and skips the node.
type Validator struct{}

// NewValidator creates a plan validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a plan graph.
func (v *Validator) Validate(plan *contracts.PlanGraph) error {
	if plan == nil {
		return fmt.Errorf("plan is nil")
	}
	if plan.PlanID == "" {
		return fmt.Errorf("plan ID is required")
	}
	if len(plan.Nodes) == 0 {
		return fmt.Errorf("plan must have at least one node")
	}

	nodeIDs := make(map[string]bool, len(plan.Nodes))
	for _, node := range plan.Nodes {
		if err := v.validateNode(node); err != nil {
			return fmt.Errorf("invalid node %s: %w", node.NodeID, err)
		}
		if nodeIDs[node.NodeID] {
			return fmt.Errorf("duplicate node ID: %s", node.NodeID)
		}
		nodeIDs[node.NodeID] = true
	}
	return nil
}

// validateNode validates a single node.
func (v *Validator) validateNode(node contracts.PlanNode) error {
	if node.NodeID == "" {
		return fmt.Errorf("node ID is required")
	}
	if node.Capability == "" {
		return fmt.Errorf("capability is required")
	}
	switch node.Role {
	case contracts.RoleToolExecutor, contracts.RoleResearcher, contracts.RoleSynthesizer,
		contracts.RoleVerifier, contracts.RoleAggregator:
	default:
		return fmt.Errorf("unknown role: %s", node.Role)
	}
	if node.Budget.TimeoutMS <= 0 {
		return fmt.Errorf("budget timeout must be positive")
	}
	if node.Budget.MaxContextChars < 0 {
		return fmt.Errorf("budget max context chars must not be negative")
	}
	if node.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if node.Retry.BackoffMS < 0 {
		return fmt.Errorf("retry backoff must not be negative")
	}
	return nil
}
