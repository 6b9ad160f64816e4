// Package segment parses the dialogue model's reply into sendable
// pieces. Replies may contain wait separators splitting them into
// multiple timed messages, and voice tags marking spans to synthesize
// as speech. Models are sloppy with the tag syntax, so parsing is
// tolerant of several malformed variants.
package segment

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxMessages caps how many pieces one reply may be split into.
const MaxMessages = 3

// Message is one piece of a reply. Delay is how long to wait before
// sending it; the first piece always has zero delay.
type Message struct {
	Content string
	Delay   time.Duration
}

// Voice is the result of extracting a voice tag from one message.
type Voice struct {
	// Text is what remains outside the voice tag.
	Text string
	// Style is the spoken style description from the tag attribute.
	Style string
	// Content is the text to synthesize.
	Content string
	// HasVoice reports whether a voice tag was found at all.
	HasVoice bool
}

var (
	waitPattern = regexp.MustCompile(`(?i)<\|\s*wait\s+time\s*=\s*"(\d+)"\s*\|>`)

	// Accepts the canonical <|voice style="..."|> plus the variants
	// models actually emit: missing pipe before >, single quotes.
	voiceStartPattern = regexp.MustCompile(`<\|\s*voice\s+style\s*=\s*(?:"([^"]*)"|'([^']*)')\s*\|?>`)
	// Accepts <|/voice|> and <|/voice>, plus the slash-first variants
	// with or without a pipe: </voice|>, </voice>, </|voice|>, </|voice>.
	voiceEndPattern = regexp.MustCompile(`<\|?\s*/\s*\|?\s*voice\s*\|?>`)
)

type voiceBlock struct {
	start    int
	end      int
	style    string
	content  string
	unclosed bool
}

// parseVoiceBlocks pairs voice start and end tags with a stack so
// stray or unclosed tags cannot derail the rest of the text.
func parseVoiceBlocks(text string) []voiceBlock {
	type openTag struct {
		start        int
		contentStart int
		style        string
	}

	var blocks []voiceBlock
	var stack []openTag

	i := 0
	for i < len(text) {
		startLoc := voiceStartPattern.FindStringSubmatchIndex(text[i:])
		endLoc := voiceEndPattern.FindStringIndex(text[i:])

		if startLoc == nil && endLoc == nil {
			break
		}

		if startLoc != nil && (endLoc == nil || startLoc[0] < endLoc[0]) {
			style := ""
			if startLoc[2] >= 0 {
				style = text[i+startLoc[2] : i+startLoc[3]]
			} else if startLoc[4] >= 0 {
				style = text[i+startLoc[4] : i+startLoc[5]]
			}
			stack = append(stack, openTag{
				start:        i + startLoc[0],
				contentStart: i + startLoc[1],
				style:        strings.TrimSpace(style),
			})
			i += startLoc[1]
			continue
		}

		if len(stack) > 0 {
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			blocks = append(blocks, voiceBlock{
				start:   open.start,
				end:     i + endLoc[1],
				style:   open.style,
				content: strings.TrimSpace(text[open.contentStart : i+endLoc[0]]),
			})
		} else {
			// Stray end tag with no opener.
			blocks = append(blocks, voiceBlock{
				start: i + endLoc[0],
				end:   i + endLoc[1],
			})
		}
		i += endLoc[1]
	}

	for _, open := range stack {
		blocks = append(blocks, voiceBlock{
			start:    open.start,
			end:      len(text),
			style:    open.style,
			content:  strings.TrimSpace(text[open.contentStart:]),
			unclosed: true,
		})
	}
	return blocks
}

func insideAnyBlock(blocks []voiceBlock, pos int) bool {
	for _, b := range blocks {
		if b.start < pos && pos < b.end {
			return true
		}
	}
	return false
}

// ParseMessages splits a reply into timed messages. Wait separators
// inside voice tags are ignored. When there are no separators but text
// follows a closed voice tag, the reply is split there with a one
// second delay. An unclosed voice tag disables splitting entirely.
func ParseMessages(text string) []Message {
	blocks := parseVoiceBlocks(text)

	for _, b := range blocks {
		if b.unclosed {
			return []Message{{Content: strings.TrimSpace(text)}}
		}
	}

	var messages []Message
	currentStart := 0
	pendingDelay := time.Duration(0)
	hasSeparator := false

	for _, loc := range waitPattern.FindAllStringSubmatchIndex(text, -1) {
		if insideAnyBlock(blocks, loc[0]) {
			continue
		}
		hasSeparator = true
		if content := strings.TrimSpace(text[currentStart:loc[0]]); content != "" {
			messages = append(messages, Message{Content: content, Delay: pendingDelay})
		}
		seconds, _ := strconv.Atoi(text[loc[2]:loc[3]])
		pendingDelay = time.Duration(seconds) * time.Second
		currentStart = loc[1]
	}

	if !hasSeparator {
		return autoSplit(text, blocks)
	}

	if content := strings.TrimSpace(text[currentStart:]); content != "" {
		messages = append(messages, Message{Content: content, Delay: pendingDelay})
	}

	if len(messages) > MaxMessages {
		messages = messages[:MaxMessages]
	}
	if len(messages) > 0 {
		messages[0].Delay = 0
	}
	return messages
}

// autoSplit handles a reply with no wait separators: when non-tag text
// trails a closed voice tag, split there and add a one second pause.
func autoSplit(text string, blocks []voiceBlock) []Message {
	for _, loc := range voiceEndPattern.FindAllStringIndex(text, -1) {
		endPos := loc[1]
		if insideAnyBlock(blocks, endPos) {
			continue
		}
		remaining := strings.TrimSpace(text[endPos:])
		if remaining == "" {
			continue
		}
		// Trailing text that immediately opens another voice tag stays
		// part of the same message.
		if next := voiceStartPattern.FindStringIndex(remaining); next != nil && next[0] == 0 {
			continue
		}
		return []Message{
			{Content: strings.TrimSpace(text[:endPos])},
			{Content: remaining, Delay: time.Second},
		}
	}
	if content := strings.TrimSpace(text); content != "" {
		return []Message{{Content: content}}
	}
	return nil
}

// ParseVoice extracts the first voice tag from one message. The tag is
// removed from the surrounding text; an unclosed tag consumes
// everything after it as speech content.
func ParseVoice(text string) Voice {
	result := Voice{Text: text}

	blocks := parseVoiceBlocks(text)
	if len(blocks) == 0 {
		return result
	}

	first := blocks[0]
	result.HasVoice = true
	result.Style = first.style
	result.Content = first.content
	result.Text = strings.TrimSpace(strings.Replace(text, text[first.start:first.end], "", 1))
	return result
}
