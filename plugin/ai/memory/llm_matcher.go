package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/wsu2059q/qvqchat/plugin/ai"
	"github.com/wsu2059q/qvqchat/plugin/ai/ratelimit"
	"github.com/wsu2059q/qvqchat/store"
)

// structuredModel is the slice of the provider the matcher needs.
type structuredModel interface {
	ChatJSON(ctx context.Context, messages []ai.Message, schemaName string, schema *ai.JSONSchema) (string, error)
}

// LLMMatcher asks the memory capability's model which existing records
// a piece of text refers to. Calls are paced per scope independently of
// the dialogue budget; on any failure or when paced out it degrades to
// the heuristic matcher.
type LLMMatcher struct {
	model    structuredModel
	pacer    *ratelimit.Pacer
	fallback *HeuristicMatcher
}

// NewLLMMatcher creates a model-backed matcher.
func NewLLMMatcher(model structuredModel, pacer *ratelimit.Pacer) *LLMMatcher {
	return &LLMMatcher{
		model:    model,
		pacer:    pacer,
		fallback: NewHeuristicMatcher(),
	}
}

const matcherSystemPrompt = `记忆匹配器。给定一段文本和已记住的事实列表，找出文本指向的事实。
只返回确实相关的条目；confidence 为 0 到 1 的相关度。没有相关条目时返回空列表。`

var matcherSchema = &ai.JSONSchema{
	Type: "object",
	Properties: map[string]*ai.JSONSchema{
		"matches": {
			Type: "array",
			Items: &ai.JSONSchema{
				Type: "object",
				Properties: map[string]*ai.JSONSchema{
					"uid": {
						Type:        "string",
						Description: "The uid of the matched memory record",
					},
					"confidence": {
						Type:        "number",
						Description: "Relevance score between 0 and 1",
					},
				},
				Required:             []string{"uid", "confidence"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"matches"},
	AdditionalProperties: false,
}

func (m *LLMMatcher) Match(ctx context.Context, text string, records []*store.MemoryRecord) ([]Match, error) {
	if len(records) == 0 {
		return nil, nil
	}

	// Scope-keyed pacing: memory resolution must not starve the
	// dialogue budget, and a busy scope must not hammer the endpoint.
	key := "memory:" + records[0].ScopeID
	if !m.pacer.Allow(key) {
		slog.Debug("memory matcher paced out, using heuristic", "key", key)
		return m.fallback.Match(ctx, text, records)
	}

	content, err := m.model.ChatJSON(ctx, []ai.Message{
		ai.SystemPrompt(matcherSystemPrompt),
		ai.UserMessage(m.buildPrompt(text, records)),
	}, "memory_match", matcherSchema)
	if err != nil {
		slog.Warn("memory matcher model call failed, using heuristic", "error", err)
		return m.fallback.Match(ctx, text, records)
	}

	matches, err := m.parseResponse(content, records)
	if err != nil {
		slog.Warn("memory matcher returned unparseable output, using heuristic",
			"content", truncateForLog(content, 80),
			"error", err)
		return m.fallback.Match(ctx, text, records)
	}
	return matches, nil
}

func (m *LLMMatcher) buildPrompt(text string, records []*store.MemoryRecord) string {
	var b strings.Builder
	b.WriteString("文本: ")
	b.WriteString(text)
	b.WriteString("\n已记住的事实:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "- [%s] %s\n", r.UID, r.Content)
	}
	return b.String()
}

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

func (m *LLMMatcher) parseResponse(content string, records []*store.MemoryRecord) ([]Match, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if sub := fencedJSON.FindStringSubmatch(content); len(sub) > 1 {
			content = sub[1]
		}
	}

	var raw struct {
		Matches []struct {
			UID        string  `json:"uid"`
			Confidence float64 `json:"confidence"`
		} `json:"matches"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	byUID := make(map[string]*store.MemoryRecord, len(records))
	for _, r := range records {
		byUID[r.UID] = r
	}

	matches := make([]Match, 0, len(raw.Matches))
	for _, rm := range raw.Matches {
		record, ok := byUID[rm.UID]
		if !ok {
			// Hallucinated uid, drop it.
			continue
		}
		matches = append(matches, Match{Record: record, Confidence: rm.Confidence})
	}
	return matches, nil
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
