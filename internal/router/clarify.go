package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vinodismyname/sheetmind/internal/memory"
	"github.com/vinodismyname/sheetmind/internal/sheet"
)

var (
	columnQuestionRe = regexp.MustCompile(`(?i)which\s+column|what\s+column|select\s+.*column|choose\s+.*column`)
	sheetQuestionRe  = regexp.MustCompile(`(?i)which\s+sheet|what\s+sheet|select\s+.*sheet`)
	rangeQuestionRe  = regexp.MustCompile(`(?i)which\s+range|what\s+range|which\s+cells`)
)

const (
	maxClarifyOptions = 8
	// recentHistory is how many trailing history messages are checked for a
	// column the user already named.
	recentHistory = 6
)

// Option is one clickable answer to a clarifying question.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Clarification is a question the answer asked, with options to pick from.
type Clarification struct {
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []Option `json:"options"`
}

// DetectClarification returns options when the answer ends by asking which
// column, sheet or range to use. It stays quiet when the user already named
// a column in recent history.
func DetectClarification(answer string, meta *sheet.Metadata, sheets []string, history []memory.Message) *Clarification {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(answer), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	tail := lines
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	asks := false
	for _, l := range tail {
		if strings.Contains(l, "?") {
			asks = true
			break
		}
	}
	if !asks {
		return nil
	}

	columnQ := columnQuestionRe.MatchString(answer)
	if columnQ && meta != nil && len(history) >= 2 && mentionsColumn(meta, history) {
		return nil
	}

	question := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], "?") {
			question = strings.TrimSpace(strings.TrimLeft(lines[i], "#*- "))
			break
		}
	}

	if columnQ && meta != nil && len(meta.Columns) > 0 {
		opts := make([]Option, 0, len(meta.Columns))
		for _, c := range meta.Columns {
			var desc []string
			if c.Type != "" {
				desc = append(desc, string(c.Type))
			}
			if c.UniqueCount > 0 {
				desc = append(desc, fmt.Sprintf("%d unique", c.UniqueCount))
			}
			d := "column"
			if len(desc) > 0 {
				d = strings.Join(desc, ", ")
			}
			opts = append(opts, Option{
				Label:       c.Letter + ": " + c.Header,
				Value:       fmt.Sprintf("Column %s (%s)", c.Letter, c.Header),
				Description: d,
			})
		}
		return &Clarification{Question: question, Type: "column", Options: capOptions(opts)}
	}

	if sheetQuestionRe.MatchString(answer) && len(sheets) > 0 {
		opts := make([]Option, 0, len(sheets))
		for _, s := range sheets {
			opts = append(opts, Option{Label: s, Value: "Sheet: " + s, Description: "sheet"})
		}
		return &Clarification{Question: question, Type: "sheet", Options: capOptions(opts)}
	}

	if rangeQuestionRe.MatchString(answer) {
		return &Clarification{Question: question, Type: "range", Options: []Option{
			{Label: "Full data range", Value: "Use the full data range", Description: "All rows and columns"},
			{Label: "Current selection", Value: "Use my current selection", Description: "Selected cells only"},
		}}
	}
	return nil
}

func mentionsColumn(meta *sheet.Metadata, history []memory.Message) bool {
	recent := history
	if len(recent) > recentHistory {
		recent = recent[len(recent)-recentHistory:]
	}
	var said []string
	for _, m := range recent {
		if m.Role == memory.RoleUser {
			said = append(said, m.Content)
		}
	}
	text := strings.ToLower(strings.Join(said, " "))
	for _, c := range meta.Columns {
		h := strings.ToLower(c.Header)
		if len(h) > 1 && strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func capOptions(opts []Option) []Option {
	if len(opts) > maxClarifyOptions {
		return opts[:maxClarifyOptions]
	}
	return opts
}
