package workers

import (
	"context"
	"strings"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
)

const (
	maxScannedSnippets = 8
	maxKeptSnippets    = 4

	// evidenceJoiner separates evidence points; a full-width separator keeps
	// CJK snippets readable and survives whitespace collapsing.
	evidenceJoiner = "；"

	noEvidenceMessage = "no high-quality evidence found in prior turns; trigger external retrieval with the current question."
)

// Researcher condenses the pre-selected context snippets into deduplicated
// evidence points with one citation per kept snippet.
type Researcher struct{}

// NewResearcher creates a researcher worker.
func NewResearcher() *Researcher { return &Researcher{} }

func (r *Researcher) Name() string         { return "researcher-worker" }
func (r *Researcher) Role() contracts.Role { return contracts.RoleResearcher }
func (r *Researcher) Capabilities() []string {
	return []string{"context.retrieve", "research.retrieve", "research.reflect"}
}
func (r *Researcher) IdentityPrompt() string {
	return planner.IdentityPromptFor(contracts.RoleResearcher)
}

func (r *Researcher) Run(ctx context.Context, task *contracts.WorkerTask, rc *contracts.RunContext) (*contracts.WorkerResult, error) {
	type kept struct {
		point   string
		snippet contracts.ContextSnippet
	}
	var evidence []kept
	seen := make(map[string]bool)

	selected := rc.SelectedContext
	if len(selected) > maxScannedSnippets {
		selected = selected[:maxScannedSnippets]
	}
	for _, snippet := range selected {
		cleaned := cleanContextText(snippet.Summary)
		if cleaned == "" {
			continue
		}
		key := fingerprint(cleaned, 60)
		if seen[key] {
			continue
		}
		seen[key] = true
		evidence = append(evidence, kept{point: cleaned, snippet: snippet})
		if len(evidence) >= maxKeptSnippets {
			break
		}
	}

	if len(evidence) == 0 {
		return &contracts.WorkerResult{
			Success: true,
			Output: map[string]any{
				contracts.KeyText:    noEvidenceMessage,
				contracts.KeySummary: noEvidenceMessage,
				"evidence_points":    []string{},
				"selected_turn_ids":  []string{},
			},
			Recoverable: true,
			Progress:    100,
		}, nil
	}

	points := make([]string, 0, len(evidence))
	turnIDs := make([]string, 0, len(evidence))
	citations := make([]contracts.Citation, 0, len(evidence))
	for _, item := range evidence {
		points = append(points, item.point)
		turnIDs = append(turnIDs, item.snippet.TurnID)
		source := item.snippet.TurnID
		if source == "" {
			source = "unknown"
		}
		citations = append(citations, contracts.Citation{
			Source: source,
			Score:  item.snippet.Score,
			Text:   item.point,
		})
	}
	text := strings.Join(points, evidenceJoiner)

	return &contracts.WorkerResult{
		Success: true,
		Output: map[string]any{
			contracts.KeyText:    text,
			contracts.KeySummary: text,
			"evidence_points":    points,
			"selected_turn_ids":  turnIDs,
		},
		Citations:   citations,
		Recoverable: true,
		Progress:    100,
	}, nil
}
