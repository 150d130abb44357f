package llm

import (
	"encoding/json"
	"strings"

	"github.com/vinodismyname/sheetmind/internal/memory"
)

const (
	shortMessageChars   = 20
	priorUserChars      = 200
	priorAssistantChars = 300
)

// EnrichShortMessage prefixes a short follow-up ("desc", "profit") with the
// previous user message and answer so the model sees what it refers to.
// Longer messages and messages without history pass through.
func EnrichShortMessage(message string, history []memory.Message) string {
	if len(strings.TrimSpace(message)) > shortMessageChars || len(history) == 0 {
		return message
	}
	var lastUser, lastAssistant string
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		switch {
		case m.Role == memory.RoleAssistant && lastAssistant == "":
			lastAssistant = clip(m.Content, priorAssistantChars)
		case m.Role == memory.RoleUser && lastUser == "":
			lastUser = clip(m.Content, priorUserChars)
		}
		if lastUser != "" && lastAssistant != "" {
			break
		}
	}
	if lastUser == "" && lastAssistant == "" {
		return message
	}

	lines := []string{"[CONTEXT FROM PREVIOUS MESSAGES - use this to understand the follow-up below]"}
	if lastUser != "" {
		lines = append(lines, "Previous user message: "+lastUser)
	}
	if lastAssistant != "" {
		lines = append(lines, "Previous AI response: "+lastAssistant)
	}
	lines = append(lines, "", "[CURRENT FOLLOW-UP MESSAGE]", message)
	return strings.Join(lines, "\n")
}

// UnwrapJSON strips a surrounding markdown code fence, language tag
// included, from a model answer.
func UnwrapJSON(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	_, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return strings.Trim(s, "`")
	}
	if i := strings.LastIndex(rest, "```"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

// decodeAnswer unmarshals a possibly fenced JSON answer into v.
func decodeAnswer(text string, v any) error {
	return json.Unmarshal([]byte(UnwrapJSON(text)), v)
}
