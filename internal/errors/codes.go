// Package errors defines the structured error taxonomy for the chat
// decision core.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific failure class.
type ErrorCode string

const (
	// ErrCodeConfigInvalid indicates malformed or missing configuration.
	// Fatal at startup, never raised per message.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ErrCodeModelInvocation indicates a model endpoint failure
	// (network, auth, timeout, malformed response).
	ErrCodeModelInvocation ErrorCode = "MODEL_INVOCATION_FAILED"
	// ErrCodeRateLimitExceeded indicates the token budget window is
	// exhausted. A control-flow signal, not a true failure.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeMemoryAmbiguous indicates a memory add/forget matched zero
	// or multiple candidates. Resolved by policy and logged.
	ErrCodeMemoryAmbiguous ErrorCode = "MEMORY_AMBIGUOUS"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// ChatError is a structured error carrying a code and optional context.
type ChatError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *ChatError) WithContext(key string, value any) *ChatError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ConfigInvalid creates a configuration error.
func ConfigInvalid(msg string) *ChatError {
	return &ChatError{Code: ErrCodeConfigInvalid, Message: msg}
}

// ModelInvocation creates a model invocation error.
func ModelInvocation(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodeModelInvocation, Message: msg, Cause: cause}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *ChatError {
	return &ChatError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// MemoryAmbiguous creates a memory resolution error.
func MemoryAmbiguous(msg string) *ChatError {
	return &ChatError{Code: ErrCodeMemoryAmbiguous, Message: msg}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *ChatError {
	return &ChatError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string) *ChatError {
	return &ChatError{Code: ErrCodeTimeout, Message: msg}
}

// Wrap wraps an existing error with a code.
func Wrap(cause error, code ErrorCode, msg string) *ChatError {
	return &ChatError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// CodeOf extracts the error code from any error, or empty string.
func CodeOf(err error) ErrorCode {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
