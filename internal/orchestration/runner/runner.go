// Package runner executes a plan graph: topological batching, concurrent
// per-batch dispatch, per-node timeout and retry, dependency propagation and
// result aggregation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/registry"
)

// ErrCircularDependency is returned when batching cannot make progress:
// the plan graph contains a cycle. Structural, never retried.
var ErrCircularDependency = errors.New("circular dependency in plan graph")

// NoValidResult is the answer sentinel used when no node produced a usable
// answer, summary or text field.
const NoValidResult = "no valid result produced"

// CapabilityVerify is the capability the runner treats specially: it injects
// the upstream answer and evidence into the task payload and derives a
// passed flag when the worker does not report one.
const CapabilityVerify = "grounding.verify"

const artifactPreviewChars = 220

// Runner executes plan graphs. It owns no state between RunPlan calls; all
// mutable run-state lives on the stack of one invocation.
type Runner struct {
	router *registry.Router
	logger *zap.Logger
}

// New creates a runner over a worker router.
func New(router *registry.Router, logger *zap.Logger) *Runner {
	return &Runner{router: router, logger: logger}
}

// runState is the mutable state of one RunPlan call. It is touched only by
// the control goroutine, strictly between batches.
type runState struct {
	status      map[string]contracts.NodeStatus
	outputs     map[string]map[string]any
	outputOrder []string
	records     []contracts.RunRecord
	citations   []contracts.Citation
	// settled counts nodes in a terminal status; node goroutines read it
	// through the atomic to report running progress in their events.
	settled atomic.Int64
}

// nodeOutcome is what one node goroutine hands back to the control loop.
type nodeOutcome struct {
	nodeID string
	status contracts.NodeStatus
	output map[string]any
	record contracts.RunRecord
	result *contracts.WorkerResult
	// fatal carries a structural error (worker resolution failure) that
	// aborts the whole run.
	fatal error
}

// RunPlan executes the plan and folds all node outputs into one execution
// result. Events are sent best effort to the optional sink; a full sink
// drops the event rather than blocking execution. The two structural
// failures, ErrCircularDependency and registry.ErrWorkerNotFound, abort
// the run; everything else degrades into a partial result.
func (r *Runner) RunPlan(
	ctx context.Context,
	req *contracts.PlanRequest,
	plan *contracts.PlanGraph,
	selectedContext []contracts.ContextSnippet,
	events chan<- contracts.Event,
) (*contracts.ExecutionResult, error) {
	r.logger.Info("dag run start",
		zap.String("trace_id", req.TraceID),
		zap.String("session_id", req.SessionID),
		zap.String("turn_id", req.TurnID),
		zap.String("plan_id", plan.PlanID),
		zap.Int("node_count", len(plan.Nodes)))

	batches, err := topologicalBatches(plan)
	if err != nil {
		return nil, err
	}

	nodeMap := make(map[string]*contracts.PlanNode, len(plan.Nodes))
	state := &runState{
		status:  make(map[string]contracts.NodeStatus, len(plan.Nodes)),
		outputs: make(map[string]map[string]any, len(plan.Nodes)),
	}
	for i := range plan.Nodes {
		node := &plan.Nodes[i]
		nodeMap[node.NodeID] = node
		state.status[node.NodeID] = contracts.StatusPending
	}

	rc := &contracts.RunContext{
		SessionID:       req.SessionID,
		TurnID:          req.TurnID,
		TraceID:         req.TraceID,
		SelectedContext: selectedContext,
	}
	total := len(plan.Nodes)
	if total < 1 {
		total = 1
	}

	for _, batch := range batches {
		outcomes := make([]nodeOutcome, len(batch))
		var wg sync.WaitGroup
		for i, nodeID := range batch {
			node := nodeMap[nodeID]
			// Skip decisions read only state frozen between batches.
			deps := dependencyOutputs(node, state.outputs)
			if missing(node, deps) {
				outcomes[i] = skippedOutcome(node)
				continue
			}
			wg.Add(1)
			go func(i int, node *contracts.PlanNode, deps map[string]map[string]any) {
				defer wg.Done()
				outcomes[i] = r.runNode(ctx, req, node, deps, rc, state, events, total)
			}(i, node, deps)
		}
		wg.Wait()

		// Merge, single control goroutine, batch order keeps records
		// deterministic.
		failedInBatch := false
		for _, outcome := range outcomes {
			if outcome.fatal != nil {
				return nil, outcome.fatal
			}
			state.status[outcome.nodeID] = outcome.status
			if outcome.output != nil {
				state.outputs[outcome.nodeID] = outcome.output
				state.outputOrder = append(state.outputOrder, outcome.nodeID)
			}
			state.records = append(state.records, outcome.record)
			if outcome.result != nil {
				state.citations = append(state.citations, outcome.result.Citations...)
			}
			state.settled.Add(1)
			if outcome.status == contracts.StatusFailed {
				failedInBatch = true
			}
		}

		completed := int(state.settled.Load())
		emit(events, contracts.Event{
			Type:      contracts.EventDAGProgress,
			TraceID:   req.TraceID,
			Progress:  completed * 100 / total,
			Completed: completed,
			Total:     total,
		})

		if failedInBatch {
			r.logger.Warn("dag stop on failed batch",
				zap.String("trace_id", req.TraceID),
				zap.String("plan_id", plan.PlanID),
				zap.Strings("failed_batch", batch))
			break
		}
	}

	answer := buildAnswer(state)
	confidence := 0.0
	if len(state.records) > 0 {
		successes := 0
		for _, record := range state.records {
			if record.Success {
				successes++
			}
		}
		confidence = math.Round(float64(successes)/float64(len(state.records))*10000) / 10000
	}

	result := &contracts.ExecutionResult{
		Answer:       answer,
		Citations:    state.citations,
		Confidence:   confidence,
		NodeRuns:     state.records,
		FallbackUsed: false,
	}
	r.logger.Info("dag run done",
		zap.String("trace_id", req.TraceID),
		zap.String("plan_id", plan.PlanID),
		zap.Int("run_count", len(state.records)),
		zap.Int("citation_count", len(state.citations)),
		zap.Float64("confidence", confidence))
	return result, nil
}

// topologicalBatches computes the full batch sequence once via Kahn's
// algorithm. Every batch is sorted by node id for determinism. Dependencies
// pointing outside the graph do not count toward in-degree; the node runs
// and is skipped at dispatch for the missing output.
func topologicalBatches(plan *contracts.PlanGraph) ([][]string, error) {
	inGraph := make(map[string]bool, len(plan.Nodes))
	for _, node := range plan.Nodes {
		inGraph[node.NodeID] = true
	}
	inDegree := make(map[string]int, len(plan.Nodes))
	dependents := make(map[string][]string)
	for _, node := range plan.Nodes {
		inDegree[node.NodeID] = 0
		for _, dep := range node.DependsOn {
			if inGraph[dep] {
				inDegree[node.NodeID]++
				dependents[dep] = append(dependents[dep], node.NodeID)
			}
		}
	}

	remaining := len(plan.Nodes)
	var batches [][]string
	for remaining > 0 {
		var ready []string
		for nodeID, degree := range inDegree {
			if degree == 0 {
				ready = append(ready, nodeID)
			}
		}
		if len(ready) == 0 {
			return nil, ErrCircularDependency
		}
		sort.Strings(ready)
		batches = append(batches, ready)
		for _, nodeID := range ready {
			delete(inDegree, nodeID)
			for _, dependent := range dependents[nodeID] {
				if _, ok := inDegree[dependent]; ok {
					inDegree[dependent]--
				}
			}
		}
		remaining -= len(ready)
	}
	return batches, nil
}

func dependencyOutputs(node *contracts.PlanNode, outputs map[string]map[string]any) map[string]map[string]any {
	deps := make(map[string]map[string]any, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		deps[dep] = outputs[dep]
	}
	return deps
}

func missing(node *contracts.PlanNode, deps map[string]map[string]any) bool {
	for _, dep := range node.DependsOn {
		if deps[dep] == nil {
			return true
		}
	}
	return false
}

func skippedOutcome(node *contracts.PlanNode) nodeOutcome {
	return nodeOutcome{
		nodeID: node.NodeID,
		status: contracts.StatusSkipped,
		record: contracts.RunRecord{
			SubProblemID: node.NodeID,
			Capability:   node.Capability,
			Worker:       "worker-router",
			Success:      false,
			Error:        "dependency missing",
			Output:       map[string]any{},
			Role:         node.Role,
			Status:       contracts.StatusSkipped,
		},
	}
}

// runNode executes one node: resolve a worker, build the task, attempt up to
// the retry budget with per-attempt timeouts, and report the outcome.
func (r *Runner) runNode(
	ctx context.Context,
	req *contracts.PlanRequest,
	node *contracts.PlanNode,
	deps map[string]map[string]any,
	rc *contracts.RunContext,
	state *runState,
	events chan<- contracts.Event,
	total int,
) nodeOutcome {
	worker, err := r.router.Resolve(node.Role, node.Capability)
	if err != nil {
		return nodeOutcome{nodeID: node.NodeID, fatal: fmt.Errorf("resolving worker for node %s: %w", node.NodeID, err)}
	}

	r.logger.Info("dag node start",
		zap.String("trace_id", req.TraceID),
		zap.String("node_id", node.NodeID),
		zap.String("role", string(node.Role)),
		zap.String("capability", node.Capability),
		zap.Strings("depends_on", node.DependsOn))

	taskPrompt := buildTaskPrompt(node.Question, node.Capability, node.Tools)
	task := &contracts.WorkerTask{
		TaskID:     fmt.Sprintf("task_%s", uuid.NewString()[:10]),
		NodeID:     node.NodeID,
		Role:       node.Role,
		Capability: node.Capability,
		Query:      node.Question,
		Payload: map[string]any{
			"query":         req.Query,
			"question":      node.Question,
			"route_type":    requestRouteType(req),
			"stage1_result": req.Stage1Result,
			"stage2_result": req.Stage2Result,
			"tools":         node.Tools,
		},
		Dependencies: deps,
		DependsOn:    node.DependsOn,
		Budget:       node.Budget,
		Metadata:     node.Metadata,
		TaskPrompt:   taskPrompt,
	}
	if node.Capability == CapabilityVerify {
		candidate := latestUpstream(node, deps)
		task.Payload["answer"] = contracts.OutputAnswer(candidate)
		task.Payload["citations"] = contracts.OutputCitations(candidate)
		task.Payload["evidence_items"] = contextToEvidence(rc.SelectedContext)
	}

	maxAttempts := node.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()
	emit(events, contracts.Event{
		Type:           contracts.EventWorkerStarted,
		TraceID:        req.TraceID,
		NodeID:         node.NodeID,
		Worker:         worker.Name(),
		Role:           node.Role,
		Capability:     node.Capability,
		IdentityPrompt: worker.IdentityPrompt(),
		TaskPrompt:     taskPrompt,
		Progress:       5,
	})

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := r.attempt(ctx, worker, task, rc, node.Budget.TimeoutMS)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts && node.Retry.BackoffMS > 0 {
				time.Sleep(time.Duration(node.Retry.BackoffMS) * time.Millisecond)
			}
			continue
		}

		// A returned result is terminal even when Success is false; only
		// errors and timeouts consume further attempts.
		if node.Capability == CapabilityVerify {
			result = enrichVerifyResult(result, node, deps)
		}
		output := make(map[string]any, len(result.Output)+1)
		for k, v := range result.Output {
			output[k] = v
		}
		if len(result.Citations) > 0 {
			if _, ok := output[contracts.KeyCitations]; !ok {
				output[contracts.KeyCitations] = result.Citations
			}
		}
		status := contracts.StatusCompleted
		progress := 100
		if !result.Success {
			status = contracts.StatusFailed
			progress = 0
		}
		latency := roundMS(time.Since(start))
		record := contracts.RunRecord{
			SubProblemID:    node.NodeID,
			Capability:      node.Capability,
			Worker:          worker.Name(),
			Success:         result.Success,
			Error:           result.Error,
			Output:          result.Output,
			Role:            node.Role,
			Status:          status,
			Attempt:         attempt,
			LatencyMS:       latency,
			IdentityPrompt:  worker.IdentityPrompt(),
			TaskPrompt:      taskPrompt,
			Progress:        progress,
			ArtifactPreview: artifactPreview(result.Output),
		}
		r.logger.Info("dag node done",
			zap.String("trace_id", req.TraceID),
			zap.String("node_id", node.NodeID),
			zap.String("role", string(node.Role)),
			zap.String("capability", node.Capability),
			zap.Bool("success", result.Success),
			zap.Int("attempt", attempt),
			zap.Float64("latency_ms", latency))

		eventType := contracts.EventWorkerCompleted
		if !result.Success {
			eventType = contracts.EventWorkerFailed
		}
		running := int(state.settled.Load()) + 1
		emit(events, contracts.Event{
			Type:            eventType,
			TraceID:         req.TraceID,
			NodeID:          node.NodeID,
			Worker:          worker.Name(),
			Role:            node.Role,
			Capability:      node.Capability,
			Success:         result.Success,
			Error:           result.Error,
			ArtifactPreview: artifactPreview(result.Output),
			Progress:        running * 100 / total,
		})
		return nodeOutcome{
			nodeID: node.NodeID,
			status: status,
			output: output,
			record: record,
			result: result,
		}
	}

	errText := "unknown error"
	if lastErr != nil {
		errText = lastErr.Error()
	}
	latency := roundMS(time.Since(start))
	r.logger.Warn("dag node failed",
		zap.String("trace_id", req.TraceID),
		zap.String("node_id", node.NodeID),
		zap.String("role", string(node.Role)),
		zap.String("capability", node.Capability),
		zap.Int("attempt", maxAttempts),
		zap.String("error", errText))
	emit(events, contracts.Event{
		Type:       contracts.EventWorkerFailed,
		TraceID:    req.TraceID,
		NodeID:     node.NodeID,
		Worker:     worker.Name(),
		Role:       node.Role,
		Capability: node.Capability,
		Success:    false,
		Error:      errText,
		Progress:   0,
	})
	return nodeOutcome{
		nodeID: node.NodeID,
		status: contracts.StatusFailed,
		record: contracts.RunRecord{
			SubProblemID:   node.NodeID,
			Capability:     node.Capability,
			Worker:         worker.Name(),
			Success:        false,
			Error:          errText,
			Output:         map[string]any{},
			Role:           node.Role,
			Status:         contracts.StatusFailed,
			Attempt:        maxAttempts,
			LatencyMS:      latency,
			IdentityPrompt: worker.IdentityPrompt(),
			TaskPrompt:     taskPrompt,
			Progress:       0,
		},
	}
}

// attempt runs the worker once, bounded by the node timeout. A panicking
// worker counts as a failed attempt, the same as a returned error or a
// timeout. A worker that outlives its deadline is abandoned; it holds no
// shared mutable state, so it can only burn its own goroutine.
func (r *Runner) attempt(
	ctx context.Context,
	worker contracts.Worker,
	task *contracts.WorkerTask,
	rc *contracts.RunContext,
	timeoutMS int,
) (*contracts.WorkerResult, error) {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout < 100*time.Millisecond {
		timeout = 100 * time.Millisecond
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attemptReturn struct {
		result *contracts.WorkerResult
		err    error
	}
	done := make(chan attemptReturn, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- attemptReturn{err: fmt.Errorf("worker panic: %v", rec)}
			}
		}()
		result, err := worker.Run(attemptCtx, task, rc)
		if err == nil && result == nil {
			err = errors.New("worker returned no result")
		}
		done <- attemptReturn{result: result, err: err}
	}()

	select {
	case ret := <-done:
		return ret.result, ret.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("worker timed out after %s", timeout)
	}
}

// enrichVerifyResult derives the verification verdict when the worker did
// not report one: pass iff the latest upstream output has a non-empty answer
// and at least one citation.
func enrichVerifyResult(result *contracts.WorkerResult, node *contracts.PlanNode, deps map[string]map[string]any) *contracts.WorkerResult {
	if _, present := contracts.OutputPassed(result.Output); present {
		return result
	}
	candidate := latestUpstream(node, deps)
	if candidate == nil {
		result.Success = false
		if result.Error == "" {
			result.Error = "verify dependency missing"
		}
		return result
	}
	answer := contracts.OutputAnswer(candidate)
	citations := contracts.OutputCitations(candidate)
	if len(citations) == 0 {
		citations = result.Citations
	}
	passed := strings.TrimSpace(answer) != "" && len(citations) > 0
	output := map[string]any{
		contracts.KeyPassed:  passed,
		contracts.KeyAnswer:  "",
		contracts.KeyReasons: []string{"missing answer or citations"},
	}
	result.Success = passed
	result.Error = "verify failed"
	result.Citations = nil
	output[contracts.KeyCitations] = []contracts.Citation{}
	if passed {
		output[contracts.KeyAnswer] = answer
		output[contracts.KeyCitations] = citations
		output[contracts.KeyReasons] = []string{}
		result.Error = ""
		result.Citations = citations
	}
	result.Output = output
	return result
}

// latestUpstream returns the most recently produced dependency output,
// following the node's declared dependency order.
func latestUpstream(node *contracts.PlanNode, deps map[string]map[string]any) map[string]any {
	var candidate map[string]any
	for _, dep := range node.DependsOn {
		if out := deps[dep]; out != nil {
			candidate = out
		}
	}
	return candidate
}

// buildAnswer applies the answer selection precedence: the latest successful
// verification answer, then the last run record, then stored outputs in
// insertion order, then the sentinel.
func buildAnswer(state *runState) string {
	for i := len(state.records) - 1; i >= 0; i-- {
		record := state.records[i]
		if record.Capability == CapabilityVerify && record.Success {
			if answer, ok := record.Output[contracts.KeyAnswer].(string); ok && answer != "" {
				return answer
			}
			break
		}
	}
	if len(state.records) > 0 {
		if answer := contracts.OutputText(state.records[len(state.records)-1].Output); answer != "" {
			return answer
		}
	}
	for _, nodeID := range state.outputOrder {
		if answer := contracts.OutputText(state.outputs[nodeID]); answer != "" {
			return answer
		}
	}
	return NoValidResult
}

// requestRouteType derives the route label carried in task payloads. It scans
// the stage2 routing plan before falling back to the stage1 intent; note it
// labels the chat path "chat", unlike the planner's plan-level "fast_path".
func requestRouteType(req *contracts.PlanRequest) string {
	if routePlan, ok := req.Stage2Result["routing_plan"].([]any); ok {
		capabilities := make(map[string]bool, len(routePlan))
		for _, entry := range routePlan {
			if m, ok := entry.(map[string]any); ok {
				if capability, ok := m["capability"].(string); ok {
					capabilities[capability] = true
				}
			}
		}
		if capabilities["reasoning.synthesize"] {
			return "multi_hop"
		}
		if capabilities["context.retrieve"] {
			return "grounded"
		}
	}
	if intent, ok := req.Stage1Result["coarse_intent"].(string); ok {
		if strings.EqualFold(intent, "CHAT") {
			return "chat"
		}
	}
	return "grounded"
}

func contextToEvidence(selected []contracts.ContextSnippet) []contracts.EvidenceItem {
	items := make([]contracts.EvidenceItem, 0, len(selected))
	for _, snippet := range selected {
		source := snippet.TurnID
		if source == "" {
			source = "unknown"
		}
		items = append(items, contracts.EvidenceItem{
			Text:    snippet.Summary,
			Source:  source,
			Score:   snippet.Score,
			Summary: snippet.Summary,
		})
	}
	return items
}

func buildTaskPrompt(question, capability string, tools []string) string {
	toolsText := "none"
	if len(tools) > 0 {
		toolsText = strings.Join(tools, ", ")
	}
	return fmt.Sprintf(
		"Capability: %s\nQuestion: %s\nTools: %s\nPlease complete the task with concise and structured output.",
		capability, question, toolsText)
}

func artifactPreview(output map[string]any) string {
	text := strings.TrimSpace(contracts.OutputText(output))
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) > artifactPreviewChars {
		return string(runes[:artifactPreviewChars])
	}
	return text
}

func roundMS(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/1000*100) / 100
}

// emit performs a best-effort, non-blocking event send.
func emit(events chan<- contracts.Event, e contracts.Event) {
	if events == nil {
		return
	}
	select {
	case events <- e:
	default:
	}
}
