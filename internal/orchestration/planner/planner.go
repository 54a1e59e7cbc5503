// Package planner turns a planning request into a plan graph: typed nodes
// with roles, capabilities, dependencies, budgets and retry policy.
package planner

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

// Route classifications assigned to a plan.
const (
	RouteFastPath = "fast_path"
	RouteGrounded = "grounded"
	RouteMultiHop = "multi_hop"
)

// Per-node timeout bounds: half the requested total, clamped to this window.
// The verification node gets its own, tighter cap.
const (
	minNodeTimeoutMS    = 800
	maxNodeTimeoutMS    = 5000
	maxVerifyTimeoutMS  = 2000
	defaultTotalTimeout = 8000
)

// Fixed node ids for the synthesized portions of the graph.
const (
	researchNodeID  = "sp_research"
	responseNodeID  = "sp_response"
	aggregateNodeID = "sp_aggregate"
	verifyNodeID    = "sp_verify"
)

// Planner builds plan graphs. It is a pure function of its input and keeps
// no state between calls.
type Planner struct{}

// New creates a planner.
func New() *Planner {
	return &Planner{}
}

// BuildPlan constructs the plan graph for one turn. Sub-problems from the
// stage2 result become nodes; without them a default research -> compose
// chain is synthesized. Multiple terminal nodes are funneled through one
// aggregator, and exactly one verifier node is appended as the graph's
// final node.
func (p *Planner) BuildPlan(req *contracts.PlanRequest) *contracts.PlanGraph {
	subProblems := stage2SubProblems(req.Stage2Result)
	routeType := resolveRouteType(req.Stage1Result, subProblems)

	totalTimeout := intOption(req.Options, "timeout_ms", defaultTotalTimeout)
	perNodeTimeout := clamp(totalTimeout/2, minNodeTimeoutMS, maxNodeTimeoutMS)
	budget := contracts.BudgetPolicy{
		TimeoutMS:       perNodeTimeout,
		MaxContextChars: intOption(req.Options, "max_context_chars", 4000),
	}

	var nodes []contracts.PlanNode
	var terminals []string

	if len(subProblems) > 0 {
		for _, item := range subProblems {
			nodeID := stringField(item, "sub_problem_id")
			if nodeID == "" {
				nodeID = fmt.Sprintf("node_%d", len(nodes)+1)
			}
			capability := stringField(item, "agent_capability")
			if capability == "" {
				capability = "tool.execute"
			}
			role := resolveRole(capability, routeType)
			question := stringField(item, "question")
			if question == "" {
				question = req.Query
			}
			nodes = append(nodes, contracts.PlanNode{
				NodeID:        nodeID,
				Role:          role,
				Capability:    capability,
				Question:      question,
				DependsOn:     stringListField(item, "depends_on"),
				Tools:         stringListField(item, "tools"),
				ParallelGroup: stringField(item, "parallel_group"),
				Budget:        budget,
				Retry:         retryFor(role),
				Metadata: map[string]any{
					"intent":     item["intent"],
					"route_type": item["route_type"],
				},
				IdentityPrompt: IdentityPromptFor(role),
			})
			terminals = append(terminals, nodeID)
		}
		// A node another node depends on is not terminal.
		terminals = withoutDependedOn(terminals, nodes)
	} else {
		nodes = append(nodes,
			contracts.PlanNode{
				NodeID:         researchNodeID,
				Role:           contracts.RoleResearcher,
				Capability:     "context.retrieve",
				Question:       req.Query,
				Budget:         budget,
				Retry:          retryFor(contracts.RoleResearcher),
				IdentityPrompt: IdentityPromptFor(contracts.RoleResearcher),
			},
			contracts.PlanNode{
				NodeID:         responseNodeID,
				Role:           contracts.RoleSynthesizer,
				Capability:     "response.compose",
				Question:       req.Query,
				DependsOn:      []string{researchNodeID},
				Budget:         budget,
				Retry:          retryFor(contracts.RoleSynthesizer),
				IdentityPrompt: IdentityPromptFor(contracts.RoleSynthesizer),
			},
		)
		terminals = append(terminals, responseNodeID)
	}

	verifierDepends := terminals
	if len(terminals) > 1 {
		nodes = append(nodes, contracts.PlanNode{
			NodeID:         aggregateNodeID,
			Role:           contracts.RoleAggregator,
			Capability:     "aggregate.merge",
			Question:       req.Query,
			DependsOn:      terminals,
			Budget:         budget,
			Retry:          retryFor(contracts.RoleAggregator),
			IdentityPrompt: IdentityPromptFor(contracts.RoleAggregator),
		})
		verifierDepends = []string{aggregateNodeID}
	}

	verifyTimeout := perNodeTimeout
	if verifyTimeout > maxVerifyTimeoutMS {
		verifyTimeout = maxVerifyTimeoutMS
	}
	nodes = append(nodes, contracts.PlanNode{
		NodeID:         verifyNodeID,
		Role:           contracts.RoleVerifier,
		Capability:     "grounding.verify",
		Question:       req.Query,
		DependsOn:      verifierDepends,
		Budget:         contracts.BudgetPolicy{TimeoutMS: verifyTimeout, MaxContextChars: budget.MaxContextChars},
		Retry:          retryFor(contracts.RoleVerifier),
		IdentityPrompt: IdentityPromptFor(contracts.RoleVerifier),
	})

	return &contracts.PlanGraph{
		PlanID: fmt.Sprintf("plan_%s", uuid.NewString()[:12]),
		Nodes:  nodes,
		Metadata: map[string]any{
			"route_type": routeType,
			"query_len":  len(req.Query),
			"doc_scope":  req.DocScope,
		},
	}
}

// resolveRouteType classifies the plan route. Stage2 sub-problem route types
// take priority; otherwise the stage1 coarse intent decides.
func resolveRouteType(stage1 map[string]any, subProblems []map[string]any) string {
	if len(subProblems) > 0 {
		routeTypes := make(map[string]bool, len(subProblems))
		for _, item := range subProblems {
			routeTypes[stringField(item, "route_type")] = true
		}
		if routeTypes["reasoning"] {
			return RouteMultiHop
		}
		if routeTypes["context_retrieval"] {
			return RouteGrounded
		}
	}
	switch strings.ToUpper(stringField(stage1, "coarse_intent")) {
	case "CHAT":
		return RouteFastPath
	case "MULTI_PART":
		return RouteMultiHop
	default:
		return RouteGrounded
	}
}

// resolveRole assigns a worker role from the capability prefix.
func resolveRole(capability, routeType string) contracts.Role {
	switch {
	case strings.HasPrefix(capability, "context.") || strings.HasPrefix(capability, "research."):
		return contracts.RoleResearcher
	case strings.HasPrefix(capability, "reasoning.") || strings.HasPrefix(capability, "response.") || strings.HasPrefix(capability, "code."):
		return contracts.RoleSynthesizer
	case strings.HasPrefix(capability, "tool."):
		return contracts.RoleToolExecutor
	case routeType == RouteFastPath:
		return contracts.RoleSynthesizer
	default:
		return contracts.RoleToolExecutor
	}
}

// retryFor gives retrieval and tool roles a second attempt; reasoning roles
// run once.
func retryFor(role contracts.Role) contracts.RetryPolicy {
	if role == contracts.RoleResearcher || role == contracts.RoleToolExecutor {
		return contracts.RetryPolicy{MaxAttempts: 2}
	}
	return contracts.RetryPolicy{MaxAttempts: 1}
}

// IdentityPromptFor describes the behavioral contract of a role to its
// worker: what it must and must not produce.
func IdentityPromptFor(role contracts.Role) string {
	switch role {
	case contracts.RoleToolExecutor:
		return "You are the tool-executor worker. Invoke the requested tool and return its structured result; do not reason about it and never produce a final conclusion."
	case contracts.RoleResearcher:
		return "You are the researcher worker. Retrieve, filter and condense evidence with traceable sources; never answer the question directly."
	case contracts.RoleSynthesizer:
		return "You are the synthesizer worker. Integrate upstream evidence and reasoning into a clear, structured answer."
	case contracts.RoleVerifier:
		return "You are the verifier worker. Check answer-evidence consistency; on failure, name the reasons and block the result."
	case contracts.RoleAggregator:
		return "You are the aggregator worker. Merge the outputs of multiple workers, keeping the key content and every citation."
	default:
		return "You are an execution worker. Complete the task as requested."
	}
}

// withoutDependedOn drops every candidate id some node depends on.
func withoutDependedOn(candidates []string, nodes []contracts.PlanNode) []string {
	dependedOn := make(map[string]bool)
	for _, node := range nodes {
		for _, dep := range node.DependsOn {
			dependedOn[dep] = true
		}
	}
	terminals := candidates[:0]
	for _, id := range candidates {
		if !dependedOn[id] {
			terminals = append(terminals, id)
		}
	}
	return terminals
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func stage2SubProblems(stage2 map[string]any) []map[string]any {
	raw, ok := stage2["sub_problems"].([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringListField(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func intOption(m map[string]any, key string, fallback int) int {
	if m == nil {
		return fallback
	}
	switch v := m[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
