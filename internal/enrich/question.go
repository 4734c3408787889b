package enrich

import (
	"regexp"
	"strings"
	"sync"
)

// QuestionDetector spots interrogative utterances in finalized segments.
// Detection is best-effort pattern matching and deduplicates by normalized
// text so the same question is never answered twice in one session. A more
// robust classifier can replace the pattern table without changing callers.
type QuestionDetector struct {
	patterns []*regexp.Regexp

	mu   sync.Mutex
	seen map[string]struct{}
}

var defaultQuestionPatterns = map[string][]string{
	"en": {
		`(?i)^(?:who|what|when|where|why|how|which)\b.*\?\s*$`,
		`(?i)^(?:is|are|was|were|do|does|did|can|could|should|would|will|shall|may|might)\b.*\?\s*$`,
	},
	"ja": {
		`(?:ですか|ますか|でしょうか|かな)[?？]?\s*$`,
	},
	"": {
		`\?\s*$`,
		`？\s*$`,
	},
}

// NewQuestionDetector compiles the pattern set for a language. Unknown
// languages fall back to the punctuation-only heuristics.
func NewQuestionDetector(language string) *QuestionDetector {
	lang := strings.ToLower(strings.SplitN(language, "-", 2)[0])
	raw := append([]string(nil), defaultQuestionPatterns[lang]...)
	raw = append(raw, defaultQuestionPatterns[""]...)

	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return &QuestionDetector{patterns: patterns, seen: make(map[string]struct{})}
}

// Detect reports the question contained in text, once per normalized
// question per session.
func (d *QuestionDetector) Detect(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	matched := false
	for _, pattern := range d.patterns {
		if pattern.MatchString(trimmed) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	key := normalizeQuestion(trimmed)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[key]; dup {
		return "", false
	}
	d.seen[key] = struct{}{}
	return trimmed, true
}

// Reset clears the dedupe set for a new session.
func (d *QuestionDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
}

func normalizeQuestion(text string) string {
	lowered := strings.ToLower(text)
	lowered = strings.TrimRight(lowered, "?？!！.。 \t")
	return strings.Join(strings.Fields(lowered), " ")
}
