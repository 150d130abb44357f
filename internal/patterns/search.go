package patterns

import (
	"sort"
	"strings"
)

// maxMatches is how many ranked patterns Find returns.
const maxMatches = 3

// Scoring weights. Intent phrase hits dominate; every other signal nudges.
const (
	scoreIntentPhrase = 10
	scoreIntentWord   = 2
	scoreName         = 5
	scoreNamePart     = 3
	scoreDescWord     = 1
	scoreCategory     = 3

	boostProduct   = 15
	boostGrouping  = 5
	boostFinancial = 5
	boostLookup    = 5
)

var (
	groupedAggregates = map[string]bool{"SUMIF": true, "COUNTIF": true, "AVERAGEIF": true, "SUMPRODUCT": true}
	financialWords    = []string{"loan", "mortgage", "payment", "interest", "investment"}
	lookupWords       = []string{"lookup", "find value", "search for", "cross-reference"}
)

// Match is a pattern with its relevance score.
type Match struct {
	Pattern Pattern
	Score   int
}

// Search scores every pattern against query and returns those with a positive
// score, best first. Ties keep catalog order. A blank query matches nothing.
func (c *Catalog) Search(query string) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Match
	for _, p := range c.Patterns {
		if s := score(p, q); s > 0 {
			out = append(out, Match{Pattern: p, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Find returns the top ranked patterns for an intent description.
func (c *Catalog) Find(query string) []Pattern {
	matches := c.Search(query)
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	out := make([]Pattern, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Pattern)
	}
	return out
}

// score ranks one pattern against a lower-cased query. Word overlap is
// substring containment, so "sum" also credits "summary".
func score(p Pattern, q string) int {
	s := 0
	for _, intent := range p.Intents {
		intent = strings.ToLower(intent)
		if strings.Contains(q, intent) {
			s += scoreIntentPhrase
		}
		s += scoreIntentWord * containedWords(q, intent)
	}

	name := strings.ToLower(p.Name)
	if strings.Contains(q, name) {
		s += scoreName
	}
	for _, part := range strings.Split(name, "+") {
		if part != "" && strings.Contains(q, part) {
			s += scoreNamePart
		}
	}

	s += scoreDescWord * containedWords(q, strings.ToLower(p.Description))

	if p.Category != "" && strings.Contains(q, p.Category) {
		s += scoreCategory
	}

	if p.Name == "SUMPRODUCT" && containsAny(q, "multiply", "product", "*") {
		s += boostProduct
	}
	if groupedAggregates[p.Name] && containsAny(q, "by", "group", "category") {
		s += boostGrouping
	}
	if p.Category == "financial" && containsAny(q, financialWords...) {
		s += boostFinancial
	}
	if p.Category == "lookup" && containsAny(q, lookupWords...) {
		s += boostLookup
	}
	return s
}

func containedWords(q, text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if strings.Contains(q, w) {
			n++
		}
	}
	return n
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
