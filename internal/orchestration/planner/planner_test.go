package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

func nodeByID(t *testing.T, plan *contracts.PlanGraph, id string) contracts.PlanNode {
	t.Helper()
	for _, node := range plan.Nodes {
		if node.NodeID == id {
			return node
		}
	}
	t.Fatalf("node %s not in plan", id)
	return contracts.PlanNode{}
}

func TestBuildPlanDefaultChain(t *testing.T) {
	p := New()
	plan := p.BuildPlan(&contracts.PlanRequest{Query: "what is the scheduler doing"})

	require.Len(t, plan.Nodes, 3)
	assert.NotEmpty(t, plan.PlanID)

	research := nodeByID(t, plan, "sp_research")
	assert.Equal(t, contracts.RoleResearcher, research.Role)
	assert.Equal(t, "context.retrieve", research.Capability)
	assert.Empty(t, research.DependsOn)
	assert.Equal(t, 2, research.Retry.MaxAttempts)

	response := nodeByID(t, plan, "sp_response")
	assert.Equal(t, contracts.RoleSynthesizer, response.Role)
	assert.Equal(t, "response.compose", response.Capability)
	assert.Equal(t, []string{"sp_research"}, response.DependsOn)
	assert.Equal(t, 1, response.Retry.MaxAttempts)

	verify := nodeByID(t, plan, "sp_verify")
	assert.Equal(t, contracts.RoleVerifier, verify.Role)
	assert.Equal(t, "grounding.verify", verify.Capability)
	assert.Equal(t, []string{"sp_response"}, verify.DependsOn)
}

func TestBuildPlanTimeouts(t *testing.T) {
	p := New()

	// Default total of 8000ms halves into the per-node budget; verification
	// is tighter.
	plan := p.BuildPlan(&contracts.PlanRequest{Query: "q"})
	assert.Equal(t, 4000, nodeByID(t, plan, "sp_research").Budget.TimeoutMS)
	assert.Equal(t, 2000, nodeByID(t, plan, "sp_verify").Budget.TimeoutMS)

	// Small totals clamp up to the floor.
	plan = p.BuildPlan(&contracts.PlanRequest{
		Query:   "q",
		Options: map[string]any{"timeout_ms": 1000},
	})
	assert.Equal(t, 800, nodeByID(t, plan, "sp_research").Budget.TimeoutMS)
	assert.Equal(t, 800, nodeByID(t, plan, "sp_verify").Budget.TimeoutMS)

	// Large totals clamp down to the ceiling.
	plan = p.BuildPlan(&contracts.PlanRequest{
		Query:   "q",
		Options: map[string]any{"timeout_ms": 60000},
	})
	assert.Equal(t, 5000, nodeByID(t, plan, "sp_research").Budget.TimeoutMS)
	assert.Equal(t, 2000, nodeByID(t, plan, "sp_verify").Budget.TimeoutMS)
}

func TestBuildPlanSubProblems(t *testing.T) {
	p := New()
	req := &contracts.PlanRequest{
		Query: "compare the two components",
		Stage2Result: map[string]any{
			"sub_problems": []any{
				map[string]any{
					"sub_problem_id":   "sp_1",
					"agent_capability": "context.retrieve",
					"question":         "component one",
				},
				map[string]any{
					"sub_problem_id":   "sp_2",
					"agent_capability": "tool.fetch",
					"question":         "component two",
					"tools":            []any{"docs.search"},
				},
			},
		},
	}
	plan := p.BuildPlan(req)

	// Two independent terminals funnel through one aggregator before the
	// verifier.
	require.Len(t, plan.Nodes, 4)
	aggregate := nodeByID(t, plan, "sp_aggregate")
	assert.Equal(t, contracts.RoleAggregator, aggregate.Role)
	assert.ElementsMatch(t, []string{"sp_1", "sp_2"}, aggregate.DependsOn)

	verify := nodeByID(t, plan, "sp_verify")
	assert.Equal(t, []string{"sp_aggregate"}, verify.DependsOn)

	assert.Equal(t, contracts.RoleResearcher, nodeByID(t, plan, "sp_1").Role)
	sp2 := nodeByID(t, plan, "sp_2")
	assert.Equal(t, contracts.RoleToolExecutor, sp2.Role)
	assert.Equal(t, []string{"docs.search"}, sp2.Tools)
	assert.Equal(t, 2, sp2.Retry.MaxAttempts)
}

func TestBuildPlanTerminalFiltering(t *testing.T) {
	p := New()
	req := &contracts.PlanRequest{
		Query: "chained question",
		Stage2Result: map[string]any{
			"sub_problems": []any{
				map[string]any{
					"sub_problem_id":   "sp_a",
					"agent_capability": "context.retrieve",
				},
				map[string]any{
					"sub_problem_id":   "sp_b",
					"agent_capability": "response.compose",
					"depends_on":       []any{"sp_a"},
				},
			},
		},
	}
	plan := p.BuildPlan(req)

	// sp_a feeds sp_b, so only sp_b is terminal: no aggregator appears and
	// the verifier hangs off sp_b directly.
	require.Len(t, plan.Nodes, 3)
	assert.Equal(t, []string{"sp_b"}, nodeByID(t, plan, "sp_verify").DependsOn)
}

func TestResolveRouteType(t *testing.T) {
	assert.Equal(t, RouteFastPath, resolveRouteType(map[string]any{"coarse_intent": "CHAT"}, nil))
	assert.Equal(t, RouteMultiHop, resolveRouteType(map[string]any{"coarse_intent": "MULTI_PART"}, nil))
	assert.Equal(t, RouteGrounded, resolveRouteType(map[string]any{"coarse_intent": "LOOKUP"}, nil))
	assert.Equal(t, RouteGrounded, resolveRouteType(nil, nil))

	// Sub-problem route types win over the stage1 intent.
	subs := []map[string]any{{"route_type": "reasoning"}}
	assert.Equal(t, RouteMultiHop, resolveRouteType(map[string]any{"coarse_intent": "CHAT"}, subs))
	subs = []map[string]any{{"route_type": "context_retrieval"}}
	assert.Equal(t, RouteGrounded, resolveRouteType(map[string]any{"coarse_intent": "CHAT"}, subs))
}

func TestResolveRole(t *testing.T) {
	assert.Equal(t, contracts.RoleResearcher, resolveRole("context.retrieve", RouteGrounded))
	assert.Equal(t, contracts.RoleResearcher, resolveRole("research.reflect", RouteGrounded))
	assert.Equal(t, contracts.RoleSynthesizer, resolveRole("reasoning.synthesize", RouteGrounded))
	assert.Equal(t, contracts.RoleSynthesizer, resolveRole("response.compose", RouteGrounded))
	assert.Equal(t, contracts.RoleSynthesizer, resolveRole("code.analyze", RouteGrounded))
	assert.Equal(t, contracts.RoleToolExecutor, resolveRole("tool.fetch", RouteGrounded))
	assert.Equal(t, contracts.RoleSynthesizer, resolveRole("unknown.capability", RouteFastPath))
	assert.Equal(t, contracts.RoleToolExecutor, resolveRole("unknown.capability", RouteGrounded))
}

func TestBuildPlanMetadata(t *testing.T) {
	p := New()
	plan := p.BuildPlan(&contracts.PlanRequest{
		Query:    "short",
		DocScope: []string{"docs/a.md"},
	})
	assert.Equal(t, RouteGrounded, plan.Metadata["route_type"])
	assert.Equal(t, len("short"), plan.Metadata["query_len"])
	assert.Equal(t, []string{"docs/a.md"}, plan.Metadata["doc_scope"])
}
