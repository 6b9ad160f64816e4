// Package agent coordinates one inbound message through intent
// classification, the reply gate, the token budget, memory and the
// dialogue model, ending in a send/suppress decision.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"

	"github.com/wsu2059q/qvqchat/internal/profile"
	"github.com/wsu2059q/qvqchat/plugin/ai"
	"github.com/wsu2059q/qvqchat/plugin/ai/gate"
	"github.com/wsu2059q/qvqchat/plugin/ai/intent"
	"github.com/wsu2059q/qvqchat/plugin/ai/ratelimit"
	"github.com/wsu2059q/qvqchat/plugin/ai/session"
	"github.com/wsu2059q/qvqchat/store"
)

const (
	contextTurns   = 6
	memoryRecall   = 5
	defaultPersona = "你是群里的一个活泼的聊天伙伴，说话自然、简短、有个性，像真人一样参与群聊。"
)

// chatModel is the dialogue capability surface the orchestrator needs.
type chatModel interface {
	Chat(ctx context.Context, messages []ai.Message) (string, error)
}

// visionModel turns an image into a one-line description.
type visionModel interface {
	DescribeImage(ctx context.Context, imageURL string) (string, error)
}

// intentClassifier produces the per-message decision hint.
type intentClassifier interface {
	Classify(ctx context.Context, message string, recentTurns []string) *intent.Decision
}

// memoryService is the slice of the memory service the orchestrator
// uses.
type memoryService interface {
	Add(ctx context.Context, owner, scope, content string) (*store.MemoryRecord, error)
	Forget(ctx context.Context, owner, scope, reference string) (int, error)
	Query(ctx context.Context, owner, scope string, limit int) ([]*store.MemoryRecord, error)
}

// Orchestrator routes events through the decision pipeline. Scopes are
// serialized individually; different scopes proceed in parallel.
type Orchestrator struct {
	dialogue   chatModel
	vision     visionModel // nil when the capability is not configured
	classifier intentClassifier
	gate       *gate.Gate
	limiter    *ratelimit.Limiter
	memory     memoryService
	window     *session.Window
	tracker    *session.Tracker

	persona            string
	maxMessageLength   int
	keywords           []string
	expectedCompletion int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Dialogue   chatModel
	Vision     visionModel
	Classifier intentClassifier
	Gate       *gate.Gate
	Limiter    *ratelimit.Limiter
	Memory     memoryService
	Window     *session.Window
	Tracker    *session.Tracker
}

// New creates an orchestrator using the profile's guardrails.
func New(p *profile.Profile, expectedCompletion int, deps Deps) *Orchestrator {
	if expectedCompletion <= 0 {
		expectedCompletion = ai.DefaultMaxTokens
	}
	return &Orchestrator{
		dialogue:           deps.Dialogue,
		vision:             deps.Vision,
		classifier:         deps.Classifier,
		gate:               deps.Gate,
		limiter:            deps.Limiter,
		memory:             deps.Memory,
		window:             deps.Window,
		tracker:            deps.Tracker,
		persona:            defaultPersona,
		maxMessageLength:   p.MaxMessageLength,
		keywords:           p.TriggerKeywords,
		expectedCompletion: expectedCompletion,
		locks:              make(map[string]*sync.Mutex),
	}
}

// WithPersona replaces the default system persona.
func (o *Orchestrator) WithPersona(persona string) *Orchestrator {
	o.persona = persona
	return o
}

func (o *Orchestrator) scopeLock(scope string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.locks[scope]
	if !ok {
		l = &sync.Mutex{}
		o.locks[scope] = l
	}
	return l
}

// HandleMessage runs one event to a terminal outcome. The returned
// error is non-nil only when Kind is OutcomeError; suppression is a
// normal result.
func (o *Orchestrator) HandleMessage(ctx context.Context, event Event) (Outcome, error) {
	trace := shortuuid.New()
	log := slog.With("trace", trace, "scope", event.ScopeID, "sender", event.SenderID)

	if utf8.RuneCountInString(event.Text) > o.maxMessageLength {
		log.Debug("message over length limit", "length", utf8.RuneCountInString(event.Text))
		return suppressed("message too long"), nil
	}

	lock := o.scopeLock(event.ScopeID)
	lock.Lock()
	defer lock.Unlock()

	recentTurns := o.window.Recent(event.ScopeID, contextTurns)
	turnLines := formatTurns(recentTurns)

	// The user turn joins the context window whatever the outcome, so
	// later messages see the full conversation.
	o.window.Append(event.ScopeID, session.Message{
		Role:       "user",
		SenderName: event.SenderName,
		Content:    event.Text,
		Timestamp:  event.Timestamp,
	})

	decision := o.classifier.Classify(ctx, event.Text, turnLines)

	trigger := detectTrigger(event, o.keywords)
	// A confident classifier vote lifts plain chatter to the question
	// tier; the gate still makes the final call.
	if trigger == gate.TriggerAmbient && decision.ShouldReply {
		trigger = gate.TriggerQuestion
	}

	if !o.gate.ShouldReply(event.ScopeID, trigger) {
		o.applyMemoryOps(ctx, log, event, decision.MemoryOps)
		log.Debug("gate suppressed reply", "trigger", trigger)
		return suppressed("gate"), nil
	}

	estimate := ratelimit.EstimateTokens(event.Text+strings.Join(turnLines, "\n")) + o.expectedCompletion
	if !o.limiter.Reserve(event.ScopeID, estimate) {
		o.applyMemoryOps(ctx, log, event, decision.MemoryOps)
		log.Warn("token budget exhausted", "estimate", estimate,
			"window_tokens", o.limiter.WindowTokens(event.ScopeID))
		return suppressed("rate limit"), nil
	}

	prompt := o.assemblePrompt(ctx, log, event, recentTurns)

	reply, err := o.dialogue.Chat(ctx, prompt)
	if err != nil {
		// The reservation stays committed; refunds would allow
		// double-spending under racing failures.
		log.Warn("dialogue model call failed", "error", err)
		return Outcome{Kind: OutcomeError}, err
	}

	o.gate.CommitReply(event.ScopeID)
	o.applyMemoryOps(ctx, log, event, decision.MemoryOps)
	o.updateState(ctx, log, event, decision.MemoryOps)

	o.window.Append(event.ScopeID, session.Message{
		Role:    "assistant",
		Content: reply,
	})

	log.Info("reply sent", "trigger", trigger, "reply_length", len(reply))
	return sent(reply), nil
}

// applyMemoryOps runs the classifier's add/forget operations.
// Remembering is independent of replying, and failures here never
// change the outcome.
func (o *Orchestrator) applyMemoryOps(ctx context.Context, log *slog.Logger, event Event, ops []intent.MemoryOp) {
	for _, op := range ops {
		switch op.Op {
		case intent.OpAdd:
			if _, err := o.memory.Add(ctx, event.SenderID, event.ScopeID, op.Content); err != nil {
				log.Warn("memory add failed", "error", err)
			}
		case intent.OpForget:
			if _, err := o.memory.Forget(ctx, event.SenderID, event.ScopeID, op.Content); err != nil {
				log.Warn("memory forget failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) updateState(ctx context.Context, log *slog.Logger, event Event, ops []intent.MemoryOp) {
	if o.tracker == nil {
		return
	}
	state, err := o.tracker.Get(ctx, event.SenderID, event.ScopeID)
	if err != nil {
		log.Warn("conversation state load failed", "error", err)
		return
	}
	state.InteractionCount++
	for _, op := range ops {
		if op.Op == intent.OpAdd {
			state.AddKeyword(op.Content)
		}
	}
	if err := o.tracker.Save(ctx, event.SenderID, event.ScopeID, state); err != nil {
		log.Warn("conversation state save failed", "error", err)
	}
}

func (o *Orchestrator) assemblePrompt(ctx context.Context, log *slog.Logger, event Event, recentTurns []session.Message) []ai.Message {
	var sys strings.Builder
	sys.WriteString(o.persona)
	sys.WriteString("\n回复可以用 <|wait time=\"秒\"|> 分成最多三条消息，")
	sys.WriteString("也可以用 <|voice style=\"语气\"|>内容<|/voice|> 标记要说出来的部分。")

	if facts, err := o.memory.Query(ctx, event.SenderID, event.ScopeID, memoryRecall); err != nil {
		log.Warn("memory query failed", "error", err)
	} else if len(facts) > 0 {
		sys.WriteString("\n\n关于 ")
		sys.WriteString(event.SenderName)
		sys.WriteString(" 的记忆:\n")
		for _, f := range facts {
			sys.WriteString("- ")
			sys.WriteString(f.Content)
			sys.WriteByte('\n')
		}
	}

	if o.tracker != nil {
		if state, err := o.tracker.Get(ctx, event.SenderID, event.ScopeID); err == nil {
			if state.CurrentTopic != "" {
				fmt.Fprintf(&sys, "\n当前话题: %s", state.CurrentTopic)
			}
			if state.Mood != "" && state.Mood != "neutral" {
				fmt.Fprintf(&sys, "\n对方情绪: %s", state.Mood)
			}
		}
	}

	if len(event.ImageURLs) > 0 && o.vision != nil {
		desc, err := o.vision.DescribeImage(ctx, event.ImageURLs[0])
		if err != nil {
			// A broken vision call degrades to text-only, it does not
			// kill the reply.
			log.Warn("image description failed", "error", err)
		} else {
			fmt.Fprintf(&sys, "\n消息附带图片: %s", desc)
		}
	}

	messages := []ai.Message{ai.SystemPrompt(sys.String())}
	for _, turn := range recentTurns {
		if turn.Role == "assistant" {
			messages = append(messages, ai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, ai.UserMessage(formatTurn(turn)))
		}
	}
	messages = append(messages, ai.UserMessage(fmt.Sprintf("%s: %s", event.SenderName, event.Text)))
	return messages
}

func formatTurn(m session.Message) string {
	if m.SenderName != "" {
		return fmt.Sprintf("%s: %s", m.SenderName, m.Content)
	}
	return m.Content
}

func formatTurns(turns []session.Message) []string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, formatTurn(t))
	}
	return lines
}
