package store

import "context"

// ConversationState is the persisted per-user, per-scope conversation
// state (topic, mood, interaction counters). Payload is a JSON document
// owned by the session package; the store treats it as opaque.
type ConversationState struct {
	OwnerID   string
	ScopeID   string
	Payload   string
	UpdatedTs int64
}

// FindConversationState identifies a single state row.
type FindConversationState struct {
	OwnerID string
	ScopeID string
}

func (s *Store) UpsertConversationState(ctx context.Context, upsert *ConversationState) (*ConversationState, error) {
	return s.driver.UpsertConversationState(ctx, upsert)
}

// GetConversationState returns nil without error when no state exists
// for the given owner and scope.
func (s *Store) GetConversationState(ctx context.Context, find *FindConversationState) (*ConversationState, error) {
	return s.driver.GetConversationState(ctx, find)
}
