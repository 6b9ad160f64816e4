package errors

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestChatError_Error(t *testing.T) {
	t.Run("WithoutCause", func(t *testing.T) {
		err := ConfigInvalid("temperature out of range")
		assert.Equal(t, "[CONFIG_INVALID] temperature out of range", err.Error())
	})

	t.Run("WithCause", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := ModelInvocation("dialogue call failed", cause)
		assert.Contains(t, err.Error(), "MODEL_INVOCATION_FAILED")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestChatError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(cause, ErrCodeTimeout, "call timed out")
	assert.ErrorIs(t, err, cause)
}

func TestIsCode(t *testing.T) {
	err := RateLimitExceeded("budget exhausted")
	assert.True(t, IsCode(err, ErrCodeRateLimitExceeded))
	assert.False(t, IsCode(err, ErrCodeConfigInvalid))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeConfigInvalid))

	// Code is still found through additional wrapping.
	wrapped := pkgerrors.Wrap(err, "handling message")
	assert.True(t, IsCode(wrapped, ErrCodeRateLimitExceeded))
	assert.Equal(t, ErrCodeRateLimitExceeded, CodeOf(wrapped))
}

func TestWithContext(t *testing.T) {
	err := MemoryAmbiguous("forget matched multiple records").
		WithContext("scope", "group-1").
		WithContext("candidates", 3)
	assert.Equal(t, "group-1", err.Context["scope"])
	assert.Equal(t, 3, err.Context["candidates"])
}
