package agent

import (
	"strings"

	"github.com/wsu2059q/qvqchat/plugin/ai/gate"
)

var questionWords = []string{
	"吗", "呢", "什么", "怎么", "为什么", "哪", "谁",
	"what", "how", "why", "when", "where", "who",
}

// detectTrigger classifies how a message addresses the bot. Mention
// outranks keyword, keyword outranks question, everything else is
// ambient chatter.
func detectTrigger(event Event, keywords []string) gate.Trigger {
	if event.IsMention {
		return gate.TriggerMention
	}

	lower := strings.ToLower(event.Text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return gate.TriggerKeyword
		}
	}

	if isQuestion(event.Text) {
		return gate.TriggerQuestion
	}
	return gate.TriggerAmbient
}

func isQuestion(text string) bool {
	if strings.ContainsAny(text, "?？") {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range questionWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
