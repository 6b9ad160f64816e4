// Package gate implements the stalker-mode reply gate: a probabilistic,
// history-aware decision on whether the bot speaks in a group turn.
package gate

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/wsu2059q/qvqchat/internal/profile"
)

// Trigger classifies what in a message addresses the bot.
type Trigger string

const (
	TriggerMention  Trigger = "mention"
	TriggerKeyword  Trigger = "keyword"
	TriggerQuestion Trigger = "question"
	TriggerAmbient  Trigger = "ambient"
)

// Config holds the gate parameters.
type Config struct {
	Enabled                   bool
	DefaultProbability        float64
	MentionProbability        float64
	KeywordProbability        float64
	QuestionProbability       float64
	MinMessagesBetweenReplies int
	MaxRepliesPerHour         int
}

// ConfigFromProfile extracts the gate config from the profile.
func ConfigFromProfile(p *profile.Profile) Config {
	return Config{
		Enabled:                   p.StalkerEnabled,
		DefaultProbability:        p.DefaultProbability,
		MentionProbability:        p.MentionProbability,
		KeywordProbability:        p.KeywordProbability,
		QuestionProbability:       p.QuestionProbability,
		MinMessagesBetweenReplies: p.MinMessagesBetweenReplies,
		MaxRepliesPerHour:         p.MaxRepliesPerHour,
	}
}

// history is the per-scope reply bookkeeping. Guarded by its own mutex
// so scopes never contend with each other.
type history struct {
	mu sync.Mutex
	// replyTimes holds the reply timestamps inside the trailing hour.
	replyTimes []time.Time
	// messagesSinceReply counts observed messages since the last reply.
	messagesSinceReply int
}

// Gate decides per message whether the bot replies, keyed by scope.
type Gate struct {
	mu     sync.Mutex
	scopes map[string]*history

	cfg  Config
	rand func() float64
	now  func() time.Time
}

// New creates a gate. The random source and clock are injectable for
// deterministic tests.
func New(cfg Config) *Gate {
	return &Gate{
		scopes: make(map[string]*history),
		cfg:    cfg,
		rand:   rand.Float64,
		now:    time.Now,
	}
}

// WithRand replaces the uniform random source.
func (g *Gate) WithRand(r func() float64) *Gate {
	g.rand = r
	return g
}

// WithClock replaces the gate's clock.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) scopeHistory(scope string) *history {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.scopes[scope]
	if !ok {
		h = &history{}
		g.scopes[scope] = h
	}
	return h
}

func (g *Gate) baseProbability(trigger Trigger) float64 {
	switch trigger {
	case TriggerMention:
		return g.cfg.MentionProbability
	case TriggerKeyword:
		return g.cfg.KeywordProbability
	case TriggerQuestion:
		return g.cfg.QuestionProbability
	default:
		return g.cfg.DefaultProbability
	}
}

// ShouldReply runs the gate for one observed message. Every message
// increments the scope's message-gap counter; a yes is provisional
// until the reply is actually sent and CommitReply resets the counter
// and records the reply, so a downstream failure never burns
// hourly-cap budget.
func (g *Gate) ShouldReply(scope string, trigger Trigger) bool {
	// Disabled gate keeps the legacy always-respond behavior.
	if !g.cfg.Enabled {
		return true
	}

	h := g.scopeHistory(scope)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneReplies(g.now())

	reply := g.decide(h, trigger)
	h.messagesSinceReply++
	return reply
}

// CommitReply records a sent reply against the hourly cap and resets
// the scope's message-gap counter.
func (g *Gate) CommitReply(scope string) {
	if !g.cfg.Enabled {
		return
	}

	h := g.scopeHistory(scope)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.replyTimes = append(h.replyTimes, g.now())
	h.messagesSinceReply = 0
}

// decide applies the hard caps and the probability draw. Caller holds
// the history lock.
func (g *Gate) decide(h *history, trigger Trigger) bool {
	// Hourly cap is a hard veto for every trigger, mentions included.
	// Abuse protection outranks being addressed directly.
	if len(h.replyTimes) >= g.cfg.MaxRepliesPerHour {
		slog.Debug("gate veto: hourly reply cap reached",
			"replies_last_hour", len(h.replyTimes),
			"trigger", trigger)
		return false
	}

	// The message-gap veto is deliberately skipped for mentions: being
	// addressed directly should almost always get an answer, while the
	// hourly cap above still bounds total volume.
	if trigger != TriggerMention && h.messagesSinceReply < g.cfg.MinMessagesBetweenReplies {
		return false
	}

	return g.rand() < g.baseProbability(trigger)
}

// pruneReplies drops reply timestamps older than one hour. Caller holds
// the history lock.
func (h *history) pruneReplies(now time.Time) {
	cutoff := now.Add(-time.Hour)
	keep := h.replyTimes[:0]
	for _, t := range h.replyTimes {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	h.replyTimes = keep
}

// RepliesLastHour returns the number of replies committed within the
// trailing hour for a scope.
func (g *Gate) RepliesLastHour(scope string) int {
	h := g.scopeHistory(scope)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneReplies(g.now())
	return len(h.replyTimes)
}

// MessagesSinceReply returns the scope's current message-gap counter.
func (g *Gate) MessagesSinceReply(scope string) int {
	h := g.scopeHistory(scope)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messagesSinceReply
}
