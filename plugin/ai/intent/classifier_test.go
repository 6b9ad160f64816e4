package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsu2059q/qvqchat/plugin/ai"
)

type fakeModel struct {
	response string
	err      error
	prompt   string
}

func (f *fakeModel) ChatJSON(_ context.Context, messages []ai.Message, _ string, _ *ai.JSONSchema) (string, error) {
	if len(messages) > 0 {
		f.prompt = messages[len(messages)-1].Content
	}
	return f.response, f.err
}

func TestClassifier(t *testing.T) {
	ctx := context.Background()

	t.Run("ParsesModelDecision", func(t *testing.T) {
		model := &fakeModel{response: `{"should_reply":true,"memory_ops":[{"op":"add","content":"生日是六月十五"}],"confidence":0.9}`}
		c := NewClassifier(model)

		d := c.Classify(ctx, "记住我生日是六月十五", nil)
		assert.True(t, d.ShouldReply)
		require.Len(t, d.MemoryOps, 1)
		assert.Equal(t, OpAdd, d.MemoryOps[0].Op)
		assert.Equal(t, "生日是六月十五", d.MemoryOps[0].Content)
	})

	t.Run("TolerantOfMarkdownFences", func(t *testing.T) {
		model := &fakeModel{response: "```json\n{\"should_reply\":true,\"memory_ops\":[],\"confidence\":0.7}\n```"}
		c := NewClassifier(model)

		d := c.Classify(ctx, "在吗?", nil)
		assert.True(t, d.ShouldReply)
		assert.Empty(t, d.MemoryOps)
	})

	t.Run("GarbageOutputSuppresses", func(t *testing.T) {
		model := &fakeModel{response: "I think you should reply to this one"}
		c := NewClassifier(model)

		d := c.Classify(ctx, "hello", nil)
		assert.False(t, d.ShouldReply)
		assert.Empty(t, d.MemoryOps)
	})

	t.Run("ModelErrorFallsBackToRules", func(t *testing.T) {
		model := &fakeModel{err: context.DeadlineExceeded}
		c := NewClassifier(model)

		d := c.Classify(ctx, "记住: 我对花生过敏", nil)
		assert.True(t, d.ShouldReply)
		require.Len(t, d.MemoryOps, 1)
		assert.Equal(t, OpAdd, d.MemoryOps[0].Op)
	})

	t.Run("InvalidOpsDropped", func(t *testing.T) {
		model := &fakeModel{response: `{"should_reply":false,"memory_ops":[{"op":"summon","content":"x"},{"op":"add","content":""}],"confidence":0.3}`}
		c := NewClassifier(model)

		d := c.Classify(ctx, "whatever", nil)
		assert.Empty(t, d.MemoryOps)
	})

	t.Run("ContextTurnsIncludedInPrompt", func(t *testing.T) {
		model := &fakeModel{response: `{"should_reply":false,"memory_ops":[],"confidence":0.2}`}
		c := NewClassifier(model)

		c.Classify(ctx, "嗯", []string{"alice: 今晚吃什么", "bot: 火锅怎么样"})
		assert.Contains(t, model.prompt, "今晚吃什么")
		assert.Contains(t, model.prompt, "消息: 嗯")
	})
}

func TestRuleClassifier(t *testing.T) {
	rc := NewRuleClassifier()

	t.Run("ExtractsRememberRequest", func(t *testing.T) {
		d := rc.Classify("记住我最喜欢绿茶")
		require.Len(t, d.MemoryOps, 1)
		assert.Equal(t, OpAdd, d.MemoryOps[0].Op)
		assert.Equal(t, "我最喜欢绿茶", d.MemoryOps[0].Content)
		assert.True(t, d.ShouldReply)
	})

	t.Run("ExtractsForgetRequest", func(t *testing.T) {
		d := rc.Classify("forget about my old address")
		require.Len(t, d.MemoryOps, 1)
		assert.Equal(t, OpForget, d.MemoryOps[0].Op)
		assert.Equal(t, "my old address", d.MemoryOps[0].Content)
	})

	t.Run("QuestionTriggersReply", func(t *testing.T) {
		assert.True(t, rc.Classify("明天会下雨吗").ShouldReply)
		assert.True(t, rc.Classify("what time is it?").ShouldReply)
	})

	t.Run("PlainChatterSuppressed", func(t *testing.T) {
		d := rc.Classify("哈哈哈")
		assert.False(t, d.ShouldReply)
		assert.Empty(t, d.MemoryOps)
	})

	t.Run("EmptyMessageSuppressed", func(t *testing.T) {
		assert.False(t, rc.Classify("   ").ShouldReply)
	})
}
