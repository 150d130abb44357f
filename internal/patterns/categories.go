package patterns

import "strings"

// Classify returns the categories whose keywords appear in message, in
// catalog order. One keyword hit is enough per category.
func (c *Catalog) Classify(message string) []string {
	low := strings.ToLower(message)
	var out []string
	for _, cat := range c.Categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(low, kw) {
				out = append(out, cat.Name)
				break
			}
		}
	}
	return out
}

// CategoryDocs joins the reference docs for the named categories under a
// single heading. Unknown names are skipped; the result is empty when nothing
// matched.
func (c *Catalog) CategoryDocs(names []string) string {
	var parts []string
	for _, n := range names {
		if i, ok := c.byCategory[n]; ok {
			parts = append(parts, c.Categories[i].Doc)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "RELEVANT FORMULA GUIDANCE FOR THIS QUERY:\n" + strings.Join(parts, "\n\n")
}

// CheatSheet is the compact function reference included in every agent prompt.
func (c *Catalog) CheatSheet() string { return c.Cheat }
