package contracts

import "context"

// Role is the coarse worker category used as a fallback resolution key.
type Role string

const (
	RoleToolExecutor Role = "TOOL_EXECUTOR"
	RoleResearcher   Role = "RESEARCHER"
	RoleSynthesizer  Role = "SYNTHESIZER"
	RoleVerifier     Role = "VERIFIER"
	RoleAggregator   Role = "AGGREGATOR"
)

// NodeStatus is the per-node execution state machine.
//
// PENDING -> RUNNING (dispatched), RUNNING -> COMPLETED / FAILED,
// PENDING -> SKIPPED (a dependency is missing, failed or skipped at dispatch
// time; skip is terminal and never retried).
type NodeStatus string

const (
	StatusPending   NodeStatus = "PENDING"
	StatusRunning   NodeStatus = "RUNNING"
	StatusCompleted NodeStatus = "COMPLETED"
	StatusFailed    NodeStatus = "FAILED"
	StatusSkipped   NodeStatus = "SKIPPED"
)

// RetryPolicy bounds the attempt loop for one node. Only worker errors and
// timeouts consume retries; a returned result with Success=false is terminal.
type RetryPolicy struct {
	MaxAttempts int `json:"max_attempts"`
	BackoffMS   int `json:"backoff_ms"`
}

// BudgetPolicy limits one node: wall-clock time per attempt and how much
// context the worker may consume.
type BudgetPolicy struct {
	TimeoutMS       int `json:"timeout_ms"`
	MaxContextChars int `json:"max_context_chars"`
}

// DefaultBudget returns the budget applied when a request carries no options.
func DefaultBudget() BudgetPolicy {
	return BudgetPolicy{TimeoutMS: 4000, MaxContextChars: 4000}
}

// PlanNode is one typed work unit in a plan graph.
//
// Ids listed in DependsOn should reference nodes in the same graph; an
// unresolved reference is treated as a permanently missing dependency at run
// time, not as a build error.
type PlanNode struct {
	NodeID         string         `json:"node_id"`
	Role           Role           `json:"role"`
	Capability     string         `json:"capability"`
	Question       string         `json:"question"`
	DependsOn      []string       `json:"depends_on,omitempty"`
	Tools          []string       `json:"tools,omitempty"`
	ParallelGroup  string         `json:"parallel_group,omitempty"`
	Budget         BudgetPolicy   `json:"budget"`
	Retry          RetryPolicy    `json:"retry"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdentityPrompt string         `json:"identity_prompt,omitempty"`
}

// PlanGraph is the DAG built for one query turn. It is immutable once built;
// cycles are detected during scheduling and are fatal.
type PlanGraph struct {
	PlanID   string         `json:"plan_id"`
	Nodes    []PlanNode     `json:"nodes"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PlanRequest is the request bundle handed to the core by the upstream
// planning stages. Stage1/Stage2 results are opaque maps produced by the
// external intent classifier and query splitter.
type PlanRequest struct {
	Query        string         `json:"query"`
	SessionID    string         `json:"session_id"`
	TurnID       string         `json:"turn_id"`
	TraceID      string         `json:"trace_id"`
	DocScope     []string       `json:"doc_scope,omitempty"`
	Stage1Result map[string]any `json:"stage1_result,omitempty"`
	Stage2Result map[string]any `json:"stage2_result,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

// ContextSnippet is one ranked prior-turn snippet selected by the external
// context indexer.
type ContextSnippet struct {
	TurnID  string  `json:"turn_id"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// Citation points a piece of the answer back at a context source.
type Citation struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// EvidenceItem is a context snippet projected into the verifier's payload.
type EvidenceItem struct {
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary"`
}

// RunContext carries the per-run identifiers and the pre-selected context
// shared by every worker invocation of one run.
type RunContext struct {
	SessionID       string
	TurnID          string
	TraceID         string
	SelectedContext []ContextSnippet
}

// WorkerTask is built fresh for every node attempt. Dependencies maps each
// dependency node id to its stored output; a nil value means the dependency
// produced nothing.
type WorkerTask struct {
	TaskID       string                    `json:"task_id"`
	NodeID       string                    `json:"node_id"`
	Role         Role                      `json:"role"`
	Capability   string                    `json:"capability"`
	Query        string                    `json:"query"`
	Payload      map[string]any            `json:"payload"`
	Dependencies map[string]map[string]any `json:"dependencies"`
	// DependsOn preserves the node's declared dependency order, since the
	// Dependencies map has none.
	DependsOn  []string       `json:"depends_on,omitempty"`
	Budget     BudgetPolicy   `json:"budget"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TaskPrompt string         `json:"task_prompt"`
}

// WorkerResult is what a worker hands back. Recoverable is informational;
// the runner retries only on errors and timeouts, never on Success=false.
type WorkerResult struct {
	Success     bool           `json:"success"`
	Output      map[string]any `json:"output"`
	Citations   []Citation     `json:"citations,omitempty"`
	Error       string         `json:"error,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Progress    int            `json:"progress"`
}

// RunRecord is the per-node audit entry, one per attempted node including
// skipped ones.
type RunRecord struct {
	SubProblemID    string         `json:"sub_problem_id"`
	Capability      string         `json:"capability"`
	Worker          string         `json:"worker"`
	Success         bool           `json:"success"`
	Error           string         `json:"error,omitempty"`
	Output          map[string]any `json:"output"`
	Role            Role           `json:"role"`
	Status          NodeStatus     `json:"status"`
	Attempt         int            `json:"attempt,omitempty"`
	LatencyMS       float64        `json:"latency_ms,omitempty"`
	IdentityPrompt  string         `json:"identity_prompt,omitempty"`
	TaskPrompt      string         `json:"task_prompt,omitempty"`
	Progress        int            `json:"progress"`
	ArtifactPreview string         `json:"artifact_preview,omitempty"`
}

// ExecutionResult is the run's final fold: the selected answer, merged
// citations, a confidence in [0,1], and the ordered run records.
type ExecutionResult struct {
	Answer       string      `json:"answer"`
	Citations    []Citation  `json:"citations"`
	Confidence   float64     `json:"confidence"`
	NodeRuns     []RunRecord `json:"node_runs"`
	FallbackUsed bool        `json:"fallback_used"`
}

// Lifecycle event types emitted during a run.
const (
	EventDAGProgress     = "dag.progress"
	EventWorkerStarted   = "worker.started"
	EventWorkerCompleted = "worker.completed"
	EventWorkerFailed    = "worker.failed"
)

// Event is one lifecycle event. Delivery is best effort: the runner performs
// a non-blocking send and drops the event when the sink is full. Ordering is
// not guaranteed across concurrent nodes in a batch.
type Event struct {
	Type            string `json:"type"`
	TraceID         string `json:"trace_id"`
	NodeID          string `json:"node_id,omitempty"`
	Worker          string `json:"worker,omitempty"`
	Role            Role   `json:"role,omitempty"`
	Capability      string `json:"capability,omitempty"`
	Success         bool   `json:"success,omitempty"`
	Error           string `json:"error,omitempty"`
	IdentityPrompt  string `json:"identity_prompt,omitempty"`
	TaskPrompt      string `json:"task_prompt,omitempty"`
	ArtifactPreview string `json:"artifact_preview,omitempty"`
	Progress        int    `json:"progress"`
	Completed       int    `json:"completed,omitempty"`
	Total           int    `json:"total,omitempty"`
}

// Worker is one named unit exposing a declared role and a capability set.
// Workers must be safe for concurrent use: several nodes of one batch may
// resolve to the same instance.
type Worker interface {
	Name() string
	Role() Role
	Capabilities() []string
	IdentityPrompt() string
	Run(ctx context.Context, task *WorkerTask, rc *RunContext) (*WorkerResult, error)
}
