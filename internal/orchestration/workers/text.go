package workers

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

var (
	nonWordRE     = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	bracketTagRE  = regexp.MustCompile(`\[[^\]]+\]\s*`)
	leadingQRE    = regexp.MustCompile(`^Q:\s*`)
	whitespaceRE  = regexp.MustCompile(`\s+`)
	fragmentChars = 220
	snippetChars  = 180
)

// fingerprint is the near-duplicate key for text fragments: lowercased,
// stripped of all non-word characters, capped at n runes.
func fingerprint(text string, n int) string {
	return truncateRunes(nonWordRE.ReplaceAllString(strings.ToLower(text), ""), n)
}

// cleanFragment normalizes a dependency text fragment: flattens newlines,
// strips bracketed markers and echoed Q:/| A: framing, collapses whitespace
// and caps the length.
func cleanFragment(text string) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	normalized = bracketTagRE.ReplaceAllString(normalized, "")
	if idx := strings.Index(normalized, "| A:"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[idx+len("| A:"):])
	}
	normalized = leadingQRE.ReplaceAllString(normalized, "")
	normalized = whitespaceRE.ReplaceAllString(normalized, " ")
	return truncateRunes(normalized, fragmentChars)
}

// cleanContextText normalizes a prior-turn snippet the same way, with the
// tighter snippet cap and without bracket stripping.
func cleanContextText(text string) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if idx := strings.Index(normalized, "| A:"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[idx+len("| A:"):])
	}
	normalized = leadingQRE.ReplaceAllString(normalized, "")
	normalized = whitespaceRE.ReplaceAllString(normalized, " ")
	return truncateRunes(normalized, snippetChars)
}

// orderedDepIDs walks a task's dependencies in the node's declared order,
// falling back to sorted ids for tasks built without one.
func orderedDepIDs(task *contracts.WorkerTask) []string {
	if len(task.DependsOn) > 0 {
		return task.DependsOn
	}
	ids := make([]string, 0, len(task.Dependencies))
	for id := range task.Dependencies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func truncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
