package router

import (
	"regexp"
	"strings"

	"github.com/vinodismyname/sheetmind/internal/actions"
)

var sheetActionRe = regexp.MustCompile("(?s)```sheetaction\\s*\\n(.*?)\\n```")

// ExtractAction pulls the first fenced sheetaction block out of a chat
// answer. On success the block is removed from the returned text; a block
// that does not decode leaves the text untouched.
func ExtractAction(text string) (string, actions.Action, bool) {
	loc := sheetActionRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil, false
	}
	a, err := actions.Decode([]byte(strings.TrimSpace(text[loc[2]:loc[3]])))
	if err != nil {
		return text, nil, false
	}
	cleaned := strings.TrimRight(text[:loc[0]], " \t\r\n") + text[loc[1]:]
	return strings.TrimSpace(cleaned), a, true
}
