// Package intent classifies incoming messages into an action decision:
// whether the bot should want to reply, and which memory operations the
// message implies. Classification is advisory; the gate and rate
// limiter have the final say.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/wsu2059q/qvqchat/plugin/ai"
)

// MemoryOpKind is the kind of memory operation a message implies.
type MemoryOpKind string

const (
	OpAdd    MemoryOpKind = "add"
	OpForget MemoryOpKind = "forget"
)

// MemoryOp is one memory action extracted from a message.
type MemoryOp struct {
	Op      MemoryOpKind `json:"op"`
	Content string       `json:"content"`
}

// Decision is the per-message classification result. It is produced
// once and consumed once.
type Decision struct {
	ShouldReply bool       `json:"should_reply"`
	MemoryOps   []MemoryOp `json:"memory_ops"`
	Confidence  float64    `json:"confidence"`
}

// suppressed is the safe default when classification fails. Missing a
// chance to engage is acceptable; replying to everything is not.
func suppressed() *Decision {
	return &Decision{ShouldReply: false, MemoryOps: []MemoryOp{}}
}

// structuredModel is the slice of the provider the classifier needs.
type structuredModel interface {
	ChatJSON(ctx context.Context, messages []ai.Message, schemaName string, schema *ai.JSONSchema) (string, error)
}

// Classifier asks the intent capability's model what a message wants.
// On any failure it falls back to rule-based classification, and when
// even that is uncertain it defaults to not replying.
type Classifier struct {
	model    structuredModel
	fallback *RuleClassifier
	timeout  time.Duration
}

// NewClassifier creates a model-backed intent classifier.
func NewClassifier(model structuredModel) *Classifier {
	return &Classifier{
		model:    model,
		fallback: NewRuleClassifier(),
		timeout:  10 * time.Second,
	}
}

const classifierSystemPrompt = `群聊消息意图分类器。判断这条消息是否值得机器人回应，以及是否包含应该记住或忘记的事实。
- should_reply: 消息是否在对机器人说话、提问、或值得搭话
- memory_ops: 消息中明确要求记住的事实 (op=add) 或要求忘记的内容 (op=forget)，没有则为空列表
- confidence: 0 到 1 的判断把握`

var classifierSchema = &ai.JSONSchema{
	Type: "object",
	Properties: map[string]*ai.JSONSchema{
		"should_reply": {
			Type:        "boolean",
			Description: "Whether the bot should want to reply to this message",
		},
		"memory_ops": {
			Type: "array",
			Items: &ai.JSONSchema{
				Type: "object",
				Properties: map[string]*ai.JSONSchema{
					"op": {
						Type: "string",
						Enum: []string{"add", "forget"},
					},
					"content": {
						Type:        "string",
						Description: "The fact to remember or the reference to forget",
					},
				},
				Required:             []string{"op", "content"},
				AdditionalProperties: false,
			},
		},
		"confidence": {
			Type:        "number",
			Description: "Classification confidence between 0 and 1",
		},
	},
	Required:             []string{"should_reply", "memory_ops", "confidence"},
	AdditionalProperties: false,
}

// Classify returns a decision for the message. recentTurns carries the
// last few turns of scope context, oldest first; it may be empty.
func (c *Classifier) Classify(ctx context.Context, message string, recentTurns []string) *Decision {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err := c.model.ChatJSON(ctx, []ai.Message{
		ai.SystemPrompt(classifierSystemPrompt),
		ai.UserMessage(c.buildPrompt(message, recentTurns)),
	}, "intent_classification", classifierSchema)
	if err != nil {
		slog.Warn("intent classification failed, using rule fallback",
			"error", err,
			"message", truncateForLog(message, 50))
		return c.fallback.Classify(message)
	}

	decision, err := parseDecision(content)
	if err != nil {
		slog.Warn("intent classifier returned unparseable output",
			"content", truncateForLog(content, 80),
			"error", err)
		return suppressed()
	}
	return decision
}

func (c *Classifier) buildPrompt(message string, recentTurns []string) string {
	var b strings.Builder
	if len(recentTurns) > 0 {
		b.WriteString("最近的对话:\n")
		for _, turn := range recentTurns {
			b.WriteString(turn)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("消息: ")
	b.WriteString(message)
	return b.String()
}

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

func parseDecision(content string) (*Decision, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if sub := fencedJSON.FindStringSubmatch(content); len(sub) > 1 {
			content = sub[1]
		}
	}

	decision := &Decision{}
	if err := json.Unmarshal([]byte(content), decision); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}
	if decision.MemoryOps == nil {
		decision.MemoryOps = []MemoryOp{}
	}
	// Drop ops the schema should have prevented.
	ops := decision.MemoryOps[:0]
	for _, op := range decision.MemoryOps {
		if (op.Op == OpAdd || op.Op == OpForget) && op.Content != "" {
			ops = append(ops, op)
		}
	}
	decision.MemoryOps = ops
	return decision, nil
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
