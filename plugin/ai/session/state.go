package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wsu2059q/qvqchat/store"
)

// Mood values the tracker accepts. Anything else is ignored.
var validMoods = map[string]bool{
	"happy":      true,
	"sad":        true,
	"angry":      true,
	"neutral":    true,
	"excited":    true,
	"frustrated": true,
}

const (
	maxContextKeywords = 10
	topicStaleAfter    = 5 * time.Minute
)

// State is the per-user, per-scope conversation state. It is stored
// as the JSON payload of a store.ConversationState row.
type State struct {
	CurrentTopic     string    `json:"current_topic,omitempty"`
	LastTopic        string    `json:"last_topic,omitempty"`
	TopicStartTime   time.Time `json:"topic_start_time,omitzero"`
	InteractionCount int       `json:"interaction_count"`
	LastInteraction  time.Time `json:"last_interaction,omitzero"`
	Mood             string    `json:"mood"`
	ContextKeywords  []string  `json:"context_keywords,omitempty"`
}

// Tracker persists conversation state through the store.
type Tracker struct {
	store *store.Store
	now   func() time.Time
}

// NewTracker creates a state tracker backed by the given store.
func NewTracker(s *store.Store) *Tracker {
	return &Tracker{store: s, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Get loads the state for a user in a scope, returning a fresh neutral
// state when none has been saved yet.
func (t *Tracker) Get(ctx context.Context, ownerID, scopeID string) (*State, error) {
	row, err := t.store.GetConversationState(ctx, &store.FindConversationState{
		OwnerID: ownerID,
		ScopeID: scopeID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversation state")
	}
	if row == nil {
		return &State{Mood: "neutral"}, nil
	}

	state := &State{}
	if err := json.Unmarshal([]byte(row.Payload), state); err != nil {
		// A corrupt payload should not wedge the conversation.
		return &State{Mood: "neutral"}, nil
	}
	if state.Mood == "" {
		state.Mood = "neutral"
	}
	return state, nil
}

// Save persists the state, stamping LastInteraction.
func (t *Tracker) Save(ctx context.Context, ownerID, scopeID string, state *State) error {
	state.LastInteraction = t.now()

	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "failed to marshal conversation state")
	}
	_, err = t.store.UpsertConversationState(ctx, &store.ConversationState{
		OwnerID:   ownerID,
		ScopeID:   scopeID,
		Payload:   string(payload),
		UpdatedTs: t.now().Unix(),
	})
	return errors.Wrap(err, "failed to save conversation state")
}

// Touch bumps the interaction counter and persists.
func (t *Tracker) Touch(ctx context.Context, ownerID, scopeID string) (*State, error) {
	state, err := t.Get(ctx, ownerID, scopeID)
	if err != nil {
		return nil, err
	}
	state.InteractionCount++
	if err := t.Save(ctx, ownerID, scopeID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetTopic records a topic change, remembering the previous topic. A
// repeat of the current topic is a no-op on the topic fields.
func (s *State) SetTopic(topic string, now time.Time) {
	if topic == "" || topic == s.CurrentTopic {
		return
	}
	s.LastTopic = s.CurrentTopic
	s.CurrentTopic = topic
	s.TopicStartTime = now
}

// SetMood updates the mood if the value is one of the known moods.
func (s *State) SetMood(mood string) {
	mood = strings.ToLower(mood)
	if validMoods[mood] {
		s.Mood = mood
	}
}

// AddKeyword appends a context keyword, case-insensitively deduplicated
// and capped at the most recent ten.
func (s *State) AddKeyword(keyword string) {
	if keyword == "" {
		return
	}
	lower := strings.ToLower(keyword)
	for _, k := range s.ContextKeywords {
		if strings.ToLower(k) == lower {
			return
		}
	}
	s.ContextKeywords = append(s.ContextKeywords, keyword)
	if len(s.ContextKeywords) > maxContextKeywords {
		s.ContextKeywords = s.ContextKeywords[len(s.ContextKeywords)-maxContextKeywords:]
	}
}

// TopicStale reports whether the current topic has been running longer
// than five minutes.
func (s *State) TopicStale(now time.Time) bool {
	if s.CurrentTopic == "" || s.TopicStartTime.IsZero() {
		return false
	}
	return now.Sub(s.TopicStartTime) > topicStaleAfter
}
