package contracts

// Well-known output keys. Workers are expected, not required, to populate
// them; everything else in an output map is passed through untouched.
const (
	KeyAnswer    = "answer"
	KeySummary   = "summary"
	KeyText      = "text"
	KeyCitations = "citations"
	KeyPassed    = "passed"
	KeyReasons   = "reasons"
)

// OutputText returns the first non-empty of answer, summary, text from an
// output map, in that precedence.
func OutputText(output map[string]any) string {
	for _, key := range []string{KeyAnswer, KeySummary, KeyText} {
		if s, ok := output[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// OutputAnswer returns the first non-empty of answer, summary from an output
// map. Unlike OutputText it never falls through to the raw text key, so
// evidence-only outputs do not read as answers during verification.
func OutputAnswer(output map[string]any) string {
	for _, key := range []string{KeyAnswer, KeySummary} {
		if s, ok := output[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// OutputCitations reads the citations key of an output map. Both the typed
// slice and a []any of typed citations are accepted; anything else yields nil.
func OutputCitations(output map[string]any) []Citation {
	switch v := output[KeyCitations].(type) {
	case []Citation:
		return v
	case []any:
		citations := make([]Citation, 0, len(v))
		for _, item := range v {
			if c, ok := item.(Citation); ok {
				citations = append(citations, c)
			}
		}
		return citations
	default:
		return nil
	}
}

// OutputPassed reads the verifier's passed flag. The second return reports
// whether the key was present at all.
func OutputPassed(output map[string]any) (bool, bool) {
	v, ok := output[KeyPassed]
	if !ok || v == nil {
		return false, false
	}
	passed, ok := v.(bool)
	return passed, ok
}
