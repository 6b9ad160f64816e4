package intent

import (
	"regexp"
	"strings"
)

// RuleClassifier is the keyword fallback used when the model is
// unavailable. It is deliberately conservative: it only extracts
// memory ops behind explicit phrasing and only votes to reply on
// clear questions or remember/forget requests.
type RuleClassifier struct {
	rememberPatterns []*regexp.Regexp
	forgetPatterns   []*regexp.Regexp
	questionWords    []string
}

// NewRuleClassifier creates a classifier with the default patterns.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		rememberPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:记住|记一下|帮我记|别忘了)[，,:：]?\s*(.+)`),
			regexp.MustCompile(`(?i)remember\s+(?:that\s+)?(.+)`),
		},
		forgetPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:忘掉|忘了|别记|删掉)[，,:：]?\s*(.+)`),
			regexp.MustCompile(`(?i)forget\s+(?:about\s+)?(.+)`),
		},
		questionWords: []string{
			"吗", "呢", "什么", "怎么", "为什么", "哪", "谁",
			"what", "how", "why", "when", "where", "who",
		},
	}
}

// Classify applies the keyword rules to a message.
func (rc *RuleClassifier) Classify(message string) *Decision {
	decision := suppressed()
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return decision
	}

	for _, p := range rc.rememberPatterns {
		if m := p.FindStringSubmatch(trimmed); len(m) > 1 {
			decision.MemoryOps = append(decision.MemoryOps, MemoryOp{Op: OpAdd, Content: strings.TrimSpace(m[1])})
			break
		}
	}
	for _, p := range rc.forgetPatterns {
		if m := p.FindStringSubmatch(trimmed); len(m) > 1 {
			decision.MemoryOps = append(decision.MemoryOps, MemoryOp{Op: OpForget, Content: strings.TrimSpace(m[1])})
			break
		}
	}

	if len(decision.MemoryOps) > 0 || rc.isQuestion(trimmed) {
		decision.ShouldReply = true
		decision.Confidence = 0.5
	}
	return decision
}

func (rc *RuleClassifier) isQuestion(message string) bool {
	if strings.ContainsAny(message, "?？") {
		return true
	}
	lower := strings.ToLower(message)
	for _, w := range rc.questionWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
