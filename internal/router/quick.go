package router

import (
	"fmt"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/sheet"
)

// quickSampleRows is how many values per column the detector looks at.
const quickSampleRows = 20

const (
	quickNumericShare = 0.7
	quickGroupRatio   = 0.6
)

// QuickAction is a one-click prompt suggested for a fresh conversation.
type QuickAction struct {
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// QuickActions suggests prompts from the column mix of the sheet: grouped
// aggregates when there is a numeric and a groupable text column, a total,
// a count and always a duplicate check.
func QuickActions(snap *sheet.Snapshot) []QuickAction {
	if snap == nil || snap.Grid == nil || snap.Grid.Len() == 0 {
		return nil
	}
	g := snap.Grid

	var numeric, text []string
	headers := 0
	for _, col := range g.Columns() {
		header := g.Header(col)
		if header == "" {
			continue
		}
		headers++
		cells := g.Column(col)
		if len(cells) > quickSampleRows {
			cells = cells[:quickSampleRows]
		}
		if len(cells) == 0 {
			continue
		}
		nums := 0
		distinct := map[string]struct{}{}
		for _, c := range cells {
			if _, ok := sheet.ParseNumber(c.Value); ok {
				nums++
			}
			distinct[c.Value] = struct{}{}
		}
		switch {
		case float64(nums) > float64(len(cells))*quickNumericShare:
			numeric = append(numeric, header)
		case float64(len(distinct))/float64(len(cells)) < quickGroupRatio:
			text = append(text, header)
		}
	}
	if headers == 0 {
		return nil
	}

	var out []QuickAction
	if len(numeric) > 0 && len(text) > 0 {
		n, t := numeric[0], text[0]
		out = append(out,
			QuickAction{Label: fmt.Sprintf("Sum %s by %s", n, t), Prompt: fmt.Sprintf("Find the sum of %s grouped by %s", n, t)},
			QuickAction{Label: fmt.Sprintf("Average %s by %s", n, t), Prompt: fmt.Sprintf("Calculate the average %s for each %s", n, t)},
		)
	}
	if len(numeric) > 0 {
		out = append(out, QuickAction{Label: "Total " + numeric[0], Prompt: fmt.Sprintf("What is the total %s?", numeric[0])})
	}
	if len(text) > 0 {
		out = append(out, QuickAction{Label: "Count by " + text[0], Prompt: fmt.Sprintf("Count the number of entries for each %s", text[0])})
	}
	out = append(out, QuickAction{Label: "Find Duplicates", Prompt: "Find duplicate rows in " + snap.SheetName()})

	if len(out) > config.DefaultQuickActionLimit {
		out = out[:config.DefaultQuickActionLimit]
	}
	return out
}
