package workers

import (
	"context"
	"strings"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
)

// alignmentWindow is how much of a citation's leading text must appear
// verbatim inside some evidence item. A heuristic, not exact matching.
const alignmentWindow = 40

const echoDistinctLineRatio = 0.6

// Verifier checks that the final answer is supported by its citations and
// free of echoed Q/A noise. Failures are reported as a structured reason
// list, never as an error return.
type Verifier struct{}

// NewVerifier creates a verifier worker.
func NewVerifier() *Verifier { return &Verifier{} }

func (v *Verifier) Name() string           { return "verifier-worker" }
func (v *Verifier) Role() contracts.Role   { return contracts.RoleVerifier }
func (v *Verifier) Capabilities() []string { return []string{"grounding.verify"} }
func (v *Verifier) IdentityPrompt() string {
	return planner.IdentityPromptFor(contracts.RoleVerifier)
}

func (v *Verifier) Run(ctx context.Context, task *contracts.WorkerTask, rc *contracts.RunContext) (*contracts.WorkerResult, error) {
	route, _ := task.Payload["route_type"].(string)
	answer, _ := task.Payload["answer"].(string)
	citations := payloadCitations(task.Payload)
	evidence := payloadEvidence(task.Payload)

	groundedRoute := route != "fast_path" && route != "chat"

	var reasons []string
	if groundedRoute && len(citations) == 0 {
		reasons = append(reasons, "grounded path requires citations")
	}
	if groundedRoute {
		for _, citation := range citations {
			if strings.TrimSpace(citation.Text) == "" {
				reasons = append(reasons, "citation text is required for grounded route")
				break
			}
		}
	}

	evidenceTexts := make([]string, 0, len(evidence))
	for _, item := range evidence {
		text := item.Text
		if text == "" {
			text = item.Summary
		}
		evidenceTexts = append(evidenceTexts, text)
	}
	matched := 0
	for _, citation := range citations {
		snippet := truncateRunes(citation.Text, alignmentWindow)
		if snippet == "" {
			continue
		}
		if !containsAny(evidenceTexts, snippet) {
			reasons = append(reasons, "citation not found in evidence")
			break
		}
		matched++
	}
	if groundedRoute && len(citations) > 0 && matched == 0 {
		reasons = append(reasons, "no citation-evidence alignment")
	}

	if strings.TrimSpace(answer) == "" {
		reasons = append(reasons, "empty answer")
	}
	if hasEchoNoise(answer) {
		reasons = append(reasons, "echo noise detected in answer")
	}

	passed := len(reasons) == 0
	outAnswer := ""
	outCitations := []contracts.Citation{}
	if passed {
		outAnswer = answer
		outCitations = citations
	}
	if reasons == nil {
		reasons = []string{}
	}
	return &contracts.WorkerResult{
		Success: passed,
		Output: map[string]any{
			contracts.KeyPassed:    passed,
			contracts.KeyReasons:   reasons,
			contracts.KeyAnswer:    outAnswer,
			contracts.KeyCitations: outCitations,
		},
		Citations:   outCitations,
		Error:       strings.Join(reasons, "; "),
		Recoverable: true,
		Progress:    100,
	}, nil
}

// hasEchoNoise flags answers that literally repeat Q:/| A: framing markers,
// or whose distinct-line ratio falls under the threshold once the answer has
// at least three non-blank lines.
func hasEchoNoise(answer string) bool {
	text := strings.TrimSpace(answer)
	if text == "" {
		return false
	}
	if strings.Count(text, "Q:") >= 2 || strings.Count(text, "| A:") >= 2 {
		return true
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) < 3 {
		return false
	}
	distinct := make(map[string]bool, len(lines))
	for _, line := range lines {
		distinct[fingerprint(line, 80)] = true
	}
	return float64(len(distinct))/float64(len(lines)) < echoDistinctLineRatio
}

func containsAny(haystacks []string, needle string) bool {
	for _, haystack := range haystacks {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func payloadCitations(payload map[string]any) []contracts.Citation {
	switch v := payload["citations"].(type) {
	case []contracts.Citation:
		return v
	case []any:
		citations := make([]contracts.Citation, 0, len(v))
		for _, item := range v {
			if c, ok := item.(contracts.Citation); ok {
				citations = append(citations, c)
			}
		}
		return citations
	default:
		return nil
	}
}

func payloadEvidence(payload map[string]any) []contracts.EvidenceItem {
	switch v := payload["evidence_items"].(type) {
	case []contracts.EvidenceItem:
		return v
	case []any:
		items := make([]contracts.EvidenceItem, 0, len(v))
		for _, entry := range v {
			if item, ok := entry.(contracts.EvidenceItem); ok {
				items = append(items, item)
			}
		}
		return items
	default:
		return nil
	}
}
