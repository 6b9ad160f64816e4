package test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsu2059q/qvqchat/store"
)

func TestMemoryRecordStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	owner, scope := "user-1", "group-42"

	created, err := ts.CreateMemoryRecord(ctx, &store.MemoryRecord{
		UID:     uuid.NewString(),
		OwnerID: owner,
		ScopeID: scope,
		Content: "birthday is June 15",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.NotZero(t, created.CreatedTs)

	t.Run("ListByOwnerAndScope", func(t *testing.T) {
		list, err := ts.ListMemoryRecords(ctx, &store.FindMemoryRecord{
			OwnerID: &owner,
			ScopeID: &scope,
		})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "birthday is June 15", list[0].Content)
	})

	t.Run("ListByQuery", func(t *testing.T) {
		q := "birthday"
		list, err := ts.ListMemoryRecords(ctx, &store.FindMemoryRecord{
			OwnerID: &owner,
			ScopeID: &scope,
			Query:   &q,
		})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		miss := "anniversary"
		list, err = ts.ListMemoryRecords(ctx, &store.FindMemoryRecord{
			OwnerID: &owner,
			ScopeID: &scope,
			Query:   &miss,
		})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("RecentFirst", func(t *testing.T) {
		_, err := ts.CreateMemoryRecord(ctx, &store.MemoryRecord{
			UID:       uuid.NewString(),
			OwnerID:   owner,
			ScopeID:   scope,
			Content:   "likes green tea",
			CreatedTs: time.Now().Unix() + 10,
		})
		require.NoError(t, err)

		list, err := ts.ListMemoryRecords(ctx, &store.FindMemoryRecord{
			OwnerID: &owner,
			ScopeID: &scope,
		})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "likes green tea", list[0].Content)
	})

	t.Run("ExcludeExpired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour).Unix()
		_, err := ts.CreateMemoryRecord(ctx, &store.MemoryRecord{
			UID:       uuid.NewString(),
			OwnerID:   owner,
			ScopeID:   scope,
			Content:   "ephemeral fact",
			ExpiresTs: &past,
		})
		require.NoError(t, err)

		now := time.Now().Unix()
		list, err := ts.ListMemoryRecords(ctx, &store.FindMemoryRecord{
			OwnerID:              &owner,
			ScopeID:              &scope,
			ExcludeExpiredBefore: &now,
		})
		require.NoError(t, err)
		for _, r := range list {
			assert.NotEqual(t, "ephemeral fact", r.Content)
		}
	})

	t.Run("Update", func(t *testing.T) {
		merged := "birthday is June 15; favourite cake is matcha"
		err := ts.UpdateMemoryRecord(ctx, &store.UpdateMemoryRecord{
			ID:      created.ID,
			Content: &merged,
		})
		require.NoError(t, err)

		list, err := ts.ListMemoryRecords(ctx, &store.FindMemoryRecord{ID: &created.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, merged, list[0].Content)
	})

	t.Run("Delete", func(t *testing.T) {
		err := ts.DeleteMemoryRecord(ctx, &store.DeleteMemoryRecord{ID: &created.ID})
		require.NoError(t, err)

		list, err := ts.ListMemoryRecords(ctx, &store.FindMemoryRecord{ID: &created.ID})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("DeleteRequiresIdentity", func(t *testing.T) {
		err := ts.DeleteMemoryRecord(ctx, &store.DeleteMemoryRecord{})
		assert.Error(t, err)
	})
}

func TestConversationStateStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		state, err := ts.GetConversationState(ctx, &store.FindConversationState{
			OwnerID: "nobody", ScopeID: "nowhere",
		})
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("UpsertRoundTrip", func(t *testing.T) {
		_, err := ts.UpsertConversationState(ctx, &store.ConversationState{
			OwnerID: "user-1",
			ScopeID: "group-42",
			Payload: `{"mood":"happy","interaction_count":3}`,
		})
		require.NoError(t, err)

		state, err := ts.GetConversationState(ctx, &store.FindConversationState{
			OwnerID: "user-1", ScopeID: "group-42",
		})
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Contains(t, state.Payload, "happy")
		assert.NotZero(t, state.UpdatedTs)

		// Second upsert replaces the payload.
		_, err = ts.UpsertConversationState(ctx, &store.ConversationState{
			OwnerID: "user-1",
			ScopeID: "group-42",
			Payload: `{"mood":"neutral","interaction_count":4}`,
		})
		require.NoError(t, err)

		state, err = ts.GetConversationState(ctx, &store.FindConversationState{
			OwnerID: "user-1", ScopeID: "group-42",
		})
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Contains(t, state.Payload, "neutral")
	})
}
