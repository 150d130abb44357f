package patterns

import (
	"strconv"
	"strings"
)

// Fill substitutes the {sheet} and {lastRow} placeholders. The result is not
// validated.
func Fill(text, sheet string, lastRow int) string {
	r := strings.NewReplacer("{sheet}", sheet, "{lastRow}", strconv.Itoa(lastRow))
	return r.Replace(text)
}

// Guide renders a pattern as a short block for model prompts.
func (p Pattern) Guide() string {
	example := p.Example
	if example == "" {
		example = "N/A"
	}
	lines := []string{
		"**" + p.Name + "**",
		"Description: " + p.Description,
		"Template: " + p.Template,
		"Example: " + example,
	}
	if len(p.UseWhen) > 0 {
		lines = append(lines, "Use when: "+strings.Join(firstN(p.UseWhen, 2), "; "))
	}
	if len(p.AvoidWhen) > 0 {
		lines = append(lines, "Do NOT use when: "+strings.Join(firstN(p.AvoidWhen, 2), "; "))
	}
	if p.Warning != "" {
		lines = append(lines, "WARNING: "+p.Warning)
	}
	return strings.Join(lines, "\n")
}

// Summary lists every pattern name with its first three intent phrases.
func (c *Catalog) Summary() string {
	lines := make([]string, 0, len(c.Patterns))
	for _, p := range c.Patterns {
		lines = append(lines, "- "+p.Name+": "+strings.Join(firstN(p.Intents, 3), ", "))
	}
	return strings.Join(lines, "\n")
}

// Recommendation is the answer to a formula lookup for one intent.
type Recommendation struct {
	Found        bool      `json:"found"`
	Message      string    `json:"message,omitempty"`
	FormulaName  string    `json:"formula_name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Template     string    `json:"template,omitempty"`
	Example      string    `json:"example,omitempty"`
	UseWhen      []string  `json:"use_when,omitempty"`
	AvoidWhen    []string  `json:"do_not_use_when,omitempty"`
	Warning      string    `json:"warning,omitempty"`
	Mistakes     []Mistake `json:"common_mistakes,omitempty"`
	Variants     []Variant `json:"additional_patterns,omitempty"`
	Alternatives []string  `json:"alternatives,omitempty"`
	Guide        string    `json:"formatted_guide,omitempty"`
}

const noMatchMessage = "No matching formula pattern found. Please describe what you want to calculate."

// ForIntent picks the best pattern for intent and fills its example with the
// sheet name and last data row. Runner-up names are listed as alternatives.
func (c *Catalog) ForIntent(intent, sheet string, lastRow int) Recommendation {
	found := c.Find(intent)
	if len(found) == 0 {
		return Recommendation{Found: false, Message: noMatchMessage}
	}
	best := found[0]
	example := best.Example
	if example == "" {
		example = best.Template
	}
	rec := Recommendation{
		Found:       true,
		FormulaName: best.Name,
		Description: best.Description,
		Template:    best.Template,
		Example:     Fill(example, sheet, lastRow),
		UseWhen:     best.UseWhen,
		AvoidWhen:   best.AvoidWhen,
		Warning:     best.Warning,
		Mistakes:    best.Mistakes,
		Guide:       best.Guide(),
	}
	for _, v := range best.Variants {
		rec.Variants = append(rec.Variants, Variant{Case: v.Case, Formula: Fill(v.Formula, sheet, lastRow)})
	}
	for _, alt := range found[1:] {
		rec.Alternatives = append(rec.Alternatives, alt.Name)
	}
	return rec
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
