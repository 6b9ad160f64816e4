package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsu2059q/qvqchat/internal/profile"
	"github.com/wsu2059q/qvqchat/plugin/ai"
	"github.com/wsu2059q/qvqchat/plugin/ai/gate"
	"github.com/wsu2059q/qvqchat/plugin/ai/intent"
	"github.com/wsu2059q/qvqchat/plugin/ai/ratelimit"
	"github.com/wsu2059q/qvqchat/plugin/ai/session"
	"github.com/wsu2059q/qvqchat/store"
)

type stubChat struct {
	reply  string
	err    error
	calls  int
	prompt []ai.Message
}

func (s *stubChat) Chat(_ context.Context, messages []ai.Message) (string, error) {
	s.calls++
	s.prompt = messages
	return s.reply, s.err
}

type stubVision struct {
	description string
	err         error
}

func (s *stubVision) DescribeImage(context.Context, string) (string, error) {
	return s.description, s.err
}

type stubClassifier struct {
	decision *intent.Decision
}

func (s *stubClassifier) Classify(context.Context, string, []string) *intent.Decision {
	return s.decision
}

type stubMemory struct {
	added  []string
	forgot []string
	facts  []*store.MemoryRecord
}

func (s *stubMemory) Add(_ context.Context, _, _, content string) (*store.MemoryRecord, error) {
	s.added = append(s.added, content)
	return &store.MemoryRecord{Content: content}, nil
}

func (s *stubMemory) Forget(_ context.Context, _, _, reference string) (int, error) {
	s.forgot = append(s.forgot, reference)
	return 1, nil
}

func (s *stubMemory) Query(context.Context, string, string, int) ([]*store.MemoryRecord, error) {
	return s.facts, nil
}

type fixture struct {
	orch   *Orchestrator
	chat   *stubChat
	memory *stubMemory
	gate   *gate.Gate
	limit  *ratelimit.Limiter
	window *session.Window
}

func newFixture(t *testing.T, opts ...func(*profile.Profile, *fixture)) *fixture {
	p := profile.Default()
	p.StalkerEnabled = true
	p.MinMessagesBetweenReplies = 0
	p.MaxRepliesPerHour = 100

	f := &fixture{
		chat:   &stubChat{reply: "好呀"},
		memory: &stubMemory{},
	}
	for _, opt := range opts {
		opt(p, f)
	}

	f.gate = gate.New(gate.ConfigFromProfile(p)).WithRand(func() float64 { return 0 })
	f.limit = ratelimit.NewLimiter(p.RateLimitTokens, p.RateLimitWindow)
	f.window = session.NewWindow(10)
	t.Cleanup(f.window.Close)

	classifier := &stubClassifier{decision: &intent.Decision{ShouldReply: true}}

	f.orch = New(p, 10, Deps{
		Dialogue:   f.chat,
		Classifier: classifier,
		Gate:       f.gate,
		Limiter:    f.limit,
		Memory:     f.memory,
		Window:     f.window,
	})
	return f
}

func event(text string) Event {
	return Event{
		ScopeID:    "g1",
		SenderID:   "u1",
		SenderName: "alice",
		Text:       text,
		IsMention:  true,
		Timestamp:  time.Now(),
	}
}

func TestHandleMessage_Sent(t *testing.T) {
	f := newFixture(t)

	out, err := f.orch.HandleMessage(context.Background(), event("在干嘛?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, out.Kind)
	assert.Equal(t, "好呀", out.Reply)
	require.Len(t, out.Segments, 1)

	// The reply is committed against the hourly cap and both turns
	// joined the context window.
	assert.Equal(t, 1, f.gate.RepliesLastHour("g1"))
	assert.Len(t, f.window.Recent("g1", 0), 2)
}

func TestHandleMessage_OverLengthSuppressed(t *testing.T) {
	f := newFixture(t)

	out, err := f.orch.HandleMessage(context.Background(), event(strings.Repeat("啊", 2001)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, out.Kind)
	assert.Zero(t, f.chat.calls)
	// Nothing downstream ran: no reservation, no history.
	assert.Zero(t, f.limit.WindowTokens("g1"))
}

func TestHandleMessage_GateSuppressedStillRemembers(t *testing.T) {
	f := newFixture(t)
	f.gate.WithRand(func() float64 { return 0.999 })

	ev := event("记住我爱喝绿茶")
	ev.IsMention = false
	f.orch.classifier = &stubClassifier{decision: &intent.Decision{
		ShouldReply: false,
		MemoryOps:   []intent.MemoryOp{{Op: intent.OpAdd, Content: "爱喝绿茶"}},
	}}

	out, err := f.orch.HandleMessage(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, out.Kind)
	assert.Zero(t, f.chat.calls)
	assert.Equal(t, []string{"爱喝绿茶"}, f.memory.added)
}

func TestHandleMessage_BudgetDeniedSuppressed(t *testing.T) {
	f := newFixture(t, func(p *profile.Profile, _ *fixture) {
		p.RateLimitTokens = 5
	})

	out, err := f.orch.HandleMessage(context.Background(), event("讲个长故事"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, out.Kind)
	assert.Equal(t, "rate limit", out.Reason)
	assert.Zero(t, f.chat.calls)
}

func TestHandleMessage_ModelFailureIsError(t *testing.T) {
	f := newFixture(t)
	f.chat.err = errors.New("upstream 500")

	out, err := f.orch.HandleMessage(context.Background(), event("在吗?"))
	require.Error(t, err)
	assert.Equal(t, OutcomeError, out.Kind)

	// Reply history untouched, but the reservation stays committed.
	assert.Equal(t, 0, f.gate.RepliesLastHour("g1"))
	assert.Positive(t, f.limit.WindowTokens("g1"))
}

func TestHandleMessage_AmbientHintUpgradesTier(t *testing.T) {
	f := newFixture(t, func(p *profile.Profile, _ *fixture) {
		p.DefaultProbability = 0.0
		p.QuestionProbability = 1.0
	})
	// Draw always lands between the two tiers.
	f.gate.WithRand(func() float64 { return 0.5 })

	ev := event("今天好无聊")
	ev.IsMention = false

	out, err := f.orch.HandleMessage(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, out.Kind)
}

func TestHandleMessage_MemoryInPrompt(t *testing.T) {
	f := newFixture(t)
	f.memory.facts = []*store.MemoryRecord{{Content: "生日是六月十五"}}

	_, err := f.orch.HandleMessage(context.Background(), event("快到我生日了"))
	require.NoError(t, err)
	require.NotEmpty(t, f.chat.prompt)
	assert.Contains(t, f.chat.prompt[0].Content, "生日是六月十五")
}

func TestHandleMessage_VisionDescriptionInPrompt(t *testing.T) {
	f := newFixture(t)
	f.orch.vision = &stubVision{description: "一只橘猫趴在键盘上"}

	ev := event("看我家猫")
	ev.ImageURLs = []string{"https://example.com/cat.jpg"}

	_, err := f.orch.HandleMessage(context.Background(), ev)
	require.NoError(t, err)
	assert.Contains(t, f.chat.prompt[0].Content, "橘猫")
}

func TestHandleMessage_VisionFailureDegradesToText(t *testing.T) {
	f := newFixture(t)
	f.orch.vision = &stubVision{err: errors.New("model offline")}

	ev := event("看图")
	ev.ImageURLs = []string{"https://example.com/x.jpg"}

	out, err := f.orch.HandleMessage(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, out.Kind)
}

func TestDetectTrigger(t *testing.T) {
	keywords := []string{"小Q"}

	assert.Equal(t, gate.TriggerMention, detectTrigger(Event{IsMention: true, Text: "小Q在吗?"}, keywords))
	assert.Equal(t, gate.TriggerKeyword, detectTrigger(Event{Text: "小Q快看"}, keywords))
	assert.Equal(t, gate.TriggerQuestion, detectTrigger(Event{Text: "这是什么"}, keywords))
	assert.Equal(t, gate.TriggerAmbient, detectTrigger(Event{Text: "哈哈哈"}, keywords))
}
