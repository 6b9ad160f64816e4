package agent

import (
	"time"

	"github.com/wsu2059q/qvqchat/plugin/ai/segment"
)

// Event is one inbound chat message as delivered by a platform
// adapter.
type Event struct {
	// ScopeID identifies the conversation (group or private chat).
	ScopeID string
	// SenderID identifies the author within the scope.
	SenderID string
	// SenderName is the author's display name, used in prompts.
	SenderName string
	// Text is the message body.
	Text string
	// ImageURLs lists attached images, if any.
	ImageURLs []string
	// IsMention reports whether the bot was addressed directly.
	IsMention bool
	// Timestamp is when the platform received the message.
	Timestamp time.Time
}

// OutcomeKind is the terminal result of handling one event.
type OutcomeKind string

const (
	// OutcomeSent means a reply was produced.
	OutcomeSent OutcomeKind = "sent"
	// OutcomeSuppressed means the bot chose or was forced to stay
	// silent. Not an error.
	OutcomeSuppressed OutcomeKind = "suppressed"
	// OutcomeError means the dialogue model call failed. The caller
	// logs it; it never reaches the chat.
	OutcomeError OutcomeKind = "error"
)

// Outcome is the result of HandleMessage.
type Outcome struct {
	Kind OutcomeKind
	// Reply is the raw model response, set when Kind is OutcomeSent.
	Reply string
	// Segments is the reply split into timed send units.
	Segments []segment.Message
	// Reason explains a suppression, for logs only.
	Reason string
}

func sent(reply string) Outcome {
	return Outcome{
		Kind:     OutcomeSent,
		Reply:    reply,
		Segments: segment.ParseMessages(reply),
	}
}

func suppressed(reason string) Outcome {
	return Outcome{Kind: OutcomeSuppressed, Reason: reason}
}
