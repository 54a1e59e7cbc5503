package workers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
	"github.com/ansor-ai/ansor/pkg/ports"
)

// architectureKeywords mark queries that get the generic system-design
// guidance block prepended to the composed answer.
var architectureKeywords = []string{
	"system", "architecture", "memory", "context", "how does", "how it runs",
}

// Synthesizer composes answers and summaries from deduplicated upstream
// fragments. When a completion client is configured, response.compose is
// attempted through it first, falling back to the deterministic composition
// on any error; with a nil client the worker is fully deterministic.
type Synthesizer struct {
	llm    ports.CompletionClient
	logger *zap.Logger
}

// NewSynthesizer creates a synthesizer worker. llm may be nil.
func NewSynthesizer(llm ports.CompletionClient, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, logger: logger}
}

func (s *Synthesizer) Name() string         { return "synthesizer-worker" }
func (s *Synthesizer) Role() contracts.Role { return contracts.RoleSynthesizer }
func (s *Synthesizer) Capabilities() []string {
	return []string{"reasoning.synthesize", "response.compose", "code.analyze", "code.summarize"}
}
func (s *Synthesizer) IdentityPrompt() string {
	return planner.IdentityPromptFor(contracts.RoleSynthesizer)
}

func (s *Synthesizer) Run(ctx context.Context, task *contracts.WorkerTask, rc *contracts.RunContext) (*contracts.WorkerResult, error) {
	var fragments []string
	var merged []contracts.Citation
	seen := make(map[string]bool)

	for _, depID := range orderedDepIDs(task) {
		depOutput := task.Dependencies[depID]
		if depOutput == nil {
			continue
		}
		if text := contracts.OutputText(depOutput); text != "" {
			cleaned := cleanFragment(text)
			if cleaned != "" {
				key := fingerprint(cleaned, 80)
				if !seen[key] {
					seen[key] = true
					fragments = append(fragments, cleaned)
				}
			}
		}
		merged = append(merged, contracts.OutputCitations(depOutput)...)
	}
	merged = dedupCitations(merged)

	if task.Capability == "response.compose" {
		var answer string
		if len(fragments) > 0 {
			answer = s.composeStructuredAnswer(ctx, task.Query, fragments)
		} else {
			answer = fmt.Sprintf("Question recorded: %s. Available context is insufficient; treating it as a new question.", task.Query)
		}
		return &contracts.WorkerResult{
			Success: true,
			Output: map[string]any{
				contracts.KeyAnswer:    answer,
				contracts.KeyCitations: merged,
			},
			Citations:   merged,
			Recoverable: true,
			Progress:    100,
		}, nil
	}

	summary := strings.TrimSpace(strings.Join(fragments, "\n"))
	if summary == "" {
		summary = "no dependency results available; continuing to the next step."
	}
	return &contracts.WorkerResult{
		Success:     true,
		Output:      map[string]any{contracts.KeySummary: summary},
		Recoverable: true,
		Progress:    100,
	}, nil
}

func (s *Synthesizer) composeStructuredAnswer(ctx context.Context, query string, fragments []string) string {
	if s.llm != nil {
		if answer, err := s.composeWithLLM(ctx, query, fragments); err == nil {
			return answer
		} else if s.logger != nil {
			s.logger.Warn("llm composition failed, using deterministic composition",
				zap.Error(err))
		}
	}

	topPoints := fragments
	if len(topPoints) > 4 {
		topPoints = topPoints[:4]
	}
	lines := []string{
		fmt.Sprintf("Question: %s", query),
		"Guidance:",
	}
	if isArchitectureQuery(query) {
		lines = append(lines,
			"1. Deduplicate and compress the short-term window first to avoid echoed repeats.",
			"2. Keep only stable facts and verified conclusions in long-term memory, never whole Q/A turns.",
			"3. Retrieve by semantic recall, then penalize near-duplicates and rerank by evidence.",
			"4. Enforce evidence coverage and citation completeness before emitting output.",
			"Key evidence:",
		)
	}
	for i, point := range topPoints {
		lines = append(lines, fmt.Sprintf("- Evidence %d: %s", i+1, point))
	}
	return strings.Join(lines, "\n")
}

func (s *Synthesizer) composeWithLLM(ctx context.Context, query string, fragments []string) (string, error) {
	prompt := fmt.Sprintf(
		"Compose a concise, well-structured answer to the question below using only the numbered evidence fragments. Cite no sources outside them.\n\nQuestion: %s\n\nEvidence:\n",
		query)
	for i, fragment := range fragments {
		prompt += fmt.Sprintf("%d. %s\n", i+1, fragment)
	}
	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("empty completion")
	}
	return answer, nil
}

func isArchitectureQuery(query string) bool {
	lowered := strings.ToLower(query)
	for _, key := range architectureKeywords {
		if strings.Contains(lowered, key) {
			return true
		}
	}
	return false
}

// dedupCitations keys each citation on (source, text fingerprint) and keeps
// the first occurrence.
func dedupCitations(citations []contracts.Citation) []contracts.Citation {
	deduped := make([]contracts.Citation, 0, len(citations))
	seen := make(map[string]bool, len(citations))
	for _, citation := range citations {
		key := citation.Source + ":" + fingerprint(citation.Text, 80)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, citation)
	}
	return deduped
}
