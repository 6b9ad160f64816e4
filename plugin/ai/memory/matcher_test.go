package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsu2059q/qvqchat/plugin/ai"
	"github.com/wsu2059q/qvqchat/plugin/ai/ratelimit"
	"github.com/wsu2059q/qvqchat/store"
)

func records(contents ...string) []*store.MemoryRecord {
	out := make([]*store.MemoryRecord, len(contents))
	for i, c := range contents {
		out[i] = &store.MemoryRecord{
			ID:      int64(i + 1),
			UID:     string(rune('a' + i)),
			ScopeID: "g1",
			Content: c,
		}
	}
	return out
}

func TestHeuristicMatcher(t *testing.T) {
	m := NewHeuristicMatcher()
	ctx := context.Background()

	t.Run("BestMatchFirst", func(t *testing.T) {
		rs := records("birthday is June 15", "allergic to peanuts")
		matches, err := m.Match(ctx, "when is the birthday", rs)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, rs[0], matches[0].Record)
	})

	t.Run("IdenticalContentScoresFull", func(t *testing.T) {
		rs := records("favourite drink is green tea")
		matches, err := m.Match(ctx, "favourite drink is green tea", rs)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 1.0, matches[0].Confidence)
	})

	t.Run("UnrelatedContentReturnsNothingRelevant", func(t *testing.T) {
		rs := records("favourite drink is green tea")
		matches, err := m.Match(ctx, "quantum chromodynamics", rs)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("CJKContentMatches", func(t *testing.T) {
		rs := records("生日是六月十五号")
		matches, err := m.Match(ctx, "生日", rs)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.GreaterOrEqual(t, matches[0].Confidence, ForgetThreshold)
	})

	t.Run("EmptyTextMatchesNothing", func(t *testing.T) {
		matches, err := m.Match(ctx, "", records("something"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

// fakeStructuredModel returns a canned JSON payload.
type fakeStructuredModel struct {
	response string
	err      error
	calls    int
}

func (f *fakeStructuredModel) ChatJSON(_ context.Context, _ []ai.Message, _ string, _ *ai.JSONSchema) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestLLMMatcher(t *testing.T) {
	ctx := context.Background()
	rs := records("birthday is June 15", "allergic to peanuts")

	t.Run("ParsesModelMatches", func(t *testing.T) {
		model := &fakeStructuredModel{response: `{"matches":[{"uid":"a","confidence":0.92}]}`}
		m := NewLLMMatcher(model, ratelimit.NewPacer(time.Millisecond, 10))

		matches, err := m.Match(ctx, "生日", rs)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].Record.UID)
		assert.Equal(t, 0.92, matches[0].Confidence)
	})

	t.Run("TolerantOfMarkdownFences", func(t *testing.T) {
		model := &fakeStructuredModel{response: "```json\n{\"matches\":[{\"uid\":\"b\",\"confidence\":0.7}]}\n```"}
		m := NewLLMMatcher(model, ratelimit.NewPacer(time.Millisecond, 10))

		matches, err := m.Match(ctx, "花生", rs)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "b", matches[0].Record.UID)
	})

	t.Run("DropsHallucinatedUIDs", func(t *testing.T) {
		model := &fakeStructuredModel{response: `{"matches":[{"uid":"zzz","confidence":0.99}]}`}
		m := NewLLMMatcher(model, ratelimit.NewPacer(time.Millisecond, 10))

		matches, err := m.Match(ctx, "anything", rs)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("FallsBackOnModelError", func(t *testing.T) {
		model := &fakeStructuredModel{err: context.DeadlineExceeded}
		m := NewLLMMatcher(model, ratelimit.NewPacer(time.Millisecond, 10))

		matches, err := m.Match(ctx, "birthday", rs)
		require.NoError(t, err)
		// Heuristic fallback still finds the birthday record.
		require.NotEmpty(t, matches)
		assert.Equal(t, "a", matches[0].Record.UID)
	})

	t.Run("FallsBackOnGarbageOutput", func(t *testing.T) {
		model := &fakeStructuredModel{response: "not json at all"}
		m := NewLLMMatcher(model, ratelimit.NewPacer(time.Millisecond, 10))

		matches, err := m.Match(ctx, "birthday", rs)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
	})

	t.Run("PacedOutSkipsModelCall", func(t *testing.T) {
		model := &fakeStructuredModel{response: `{"matches":[]}`}
		m := NewLLMMatcher(model, ratelimit.NewPacer(time.Hour, 1))

		_, err := m.Match(ctx, "birthday", rs)
		require.NoError(t, err)
		assert.Equal(t, 1, model.calls)

		// Second call inside the pacing interval uses the heuristic.
		matches, err := m.Match(ctx, "birthday", rs)
		require.NoError(t, err)
		assert.Equal(t, 1, model.calls)
		assert.NotEmpty(t, matches)
	})

	t.Run("NoRecordsNoCall", func(t *testing.T) {
		model := &fakeStructuredModel{}
		m := NewLLMMatcher(model, ratelimit.NewPacer(time.Millisecond, 10))

		matches, err := m.Match(ctx, "birthday", nil)
		require.NoError(t, err)
		assert.Empty(t, matches)
		assert.Zero(t, model.calls)
	})
}
