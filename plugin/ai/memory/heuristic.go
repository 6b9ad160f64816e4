package memory

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/wsu2059q/qvqchat/store"
)

// HeuristicMatcher scores records by normalized token overlap. It is
// the fallback when the model-backed matcher is unavailable or paced
// out, and the default in tests.
type HeuristicMatcher struct{}

func NewHeuristicMatcher() *HeuristicMatcher {
	return &HeuristicMatcher{}
}

func (m *HeuristicMatcher) Match(_ context.Context, text string, records []*store.MemoryRecord) ([]Match, error) {
	query := tokenize(text)
	if len(query) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(records))
	for _, r := range records {
		score := overlap(query, tokenize(r.Content))
		if score > 0 {
			matches = append(matches, Match{Record: r, Confidence: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches, nil
}

// tokenize lowercases and splits text into tokens. CJK characters are
// treated as single-rune tokens so Chinese content matches without
// word segmentation.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			tokens[word.String()] = true
			word.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens[string(r)] = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// overlap returns the overlap coefficient of two token sets:
// |intersection| / min(|a|, |b|).
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}

	common := 0
	for tok := range small {
		if large[tok] {
			common++
		}
	}
	return float64(common) / float64(len(small))
}
