package sheet

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vinodismyname/sheetmind/config"
)

// ColumnType is the inferred kind of a column's data.
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeText        ColumnType = "text"
	TypeDate        ColumnType = "date"
	TypeCategorical ColumnType = "categorical"
	TypeEmpty       ColumnType = "empty"
)

// Inference thresholds.
const (
	numericShare      = 0.7
	dateShare         = 0.7
	maxCategories     = 20
	categoricalRatio  = 0.5
	groupableTextRate = 0.6
	identifierRatio   = 0.9
)

// ColumnMetadata summarizes one column below the header row.
type ColumnMetadata struct {
	Letter      string     `json:"letter"`
	Header      string     `json:"header"`
	Type        ColumnType `json:"type"`
	UniqueCount int        `json:"uniqueCount"`
	NullCount   int        `json:"nullCount"`
	Samples     []string   `json:"samples,omitempty"`
	Min         *float64   `json:"min,omitempty"`
	Max         *float64   `json:"max,omitempty"`
	Avg         *float64   `json:"avg,omitempty"`
	Sum         *float64   `json:"sum,omitempty"`
	Categories  []string   `json:"categories,omitempty"`

	nonEmpty int
}

// UniqueRatio is unique values over non-empty values, 0 for an empty column.
func (c ColumnMetadata) UniqueRatio() float64 {
	if c.nonEmpty == 0 {
		return 0
	}
	return float64(c.UniqueCount) / float64(c.nonEmpty)
}

// Metadata is the pre-computed sheet summary handed to prompts and tools.
type Metadata struct {
	SheetName           string           `json:"sheetName"`
	TotalRows           int              `json:"totalRows"`
	DataRows            int              `json:"dataRows"`
	LastRow             int              `json:"lastRow"`
	TotalColumns        int              `json:"totalColumns"`
	Columns             []ColumnMetadata `json:"columns"`
	SuggestedGroupBy    []string         `json:"suggestedGroupBy,omitempty"`
	SuggestedAggregate  []string         `json:"suggestedAggregate,omitempty"`
	SuggestedDateColumn string           `json:"suggestedDateColumn,omitempty"`
}

// Column returns the metadata for a column letter.
func (m Metadata) Column(letter string) (ColumnMetadata, bool) {
	for _, c := range m.Columns {
		if c.Letter == letter {
			return c, true
		}
	}
	return ColumnMetadata{}, false
}

// Analyze derives sheet metadata from a grid. The result depends only on the
// grid contents, so every caller sees the same inference.
func Analyze(sheetName string, g *Grid) Metadata {
	m := Metadata{
		SheetName: sheetName,
		LastRow:   g.LastRow(),
		TotalRows: g.LastRow(),
	}
	if m.LastRow > 1 {
		m.DataRows = m.LastRow - 1
	}
	for _, col := range g.Columns() {
		cm := analyzeColumn(col, g)
		m.Columns = append(m.Columns, cm)
	}
	m.TotalColumns = len(m.Columns)
	suggest(&m)
	return m
}

func analyzeColumn(col string, g *Grid) ColumnMetadata {
	cm := ColumnMetadata{Letter: col, Header: g.Header(col), Type: TypeEmpty}
	var (
		tc     typeCounter
		values []string
		nums   []float64
		freq   = map[string]int{}
		order  []string
	)
	for _, c := range g.Column(col) {
		v := strings.TrimSpace(c.Value)
		if v == "" {
			continue
		}
		values = append(values, v)
		tc.observe(v)
		if f, ok := ParseNumber(v); ok {
			nums = append(nums, f)
		}
		if freq[v] == 0 {
			order = append(order, v)
		}
		freq[v]++
	}
	cm.nonEmpty = len(values)
	if last := g.LastRow(); last > 1 {
		cm.NullCount = max(0, last-1-len(values))
	}
	cm.UniqueCount = len(order)
	cm.Samples = firstN(order, config.DefaultColumnSampleCount)
	if len(values) == 0 {
		return cm
	}

	n := float64(len(values))
	switch {
	case float64(tc.numCount+tc.percentCount)/n > numericShare:
		cm.Type = TypeNumeric
		setStats(&cm, nums)
	case float64(tc.dateCount)/n > dateShare:
		cm.Type = TypeDate
	case isCategorical(cm.UniqueCount, len(values)):
		cm.Type = TypeCategorical
		cm.Categories = byFrequency(order, freq)
	default:
		cm.Type = TypeText
	}
	return cm
}

// isCategorical reports whether few distinct values repeat enough to group by.
func isCategorical(unique, total int) bool {
	return unique <= maxCategories && float64(unique) < categoricalRatio*float64(total)
}

func setStats(cm *ColumnMetadata, nums []float64) {
	if len(nums) == 0 {
		return
	}
	lo, hi, sum := nums[0], nums[0], 0.0
	for _, f := range nums {
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
		sum += f
	}
	avg := round2(sum / float64(len(nums)))
	sum = round2(sum)
	cm.Min, cm.Max, cm.Avg, cm.Sum = &lo, &hi, &avg, &sum
}

func byFrequency(order []string, freq map[string]int) []string {
	out := append([]string(nil), order...)
	sort.SliceStable(out, func(i, j int) bool { return freq[out[i]] > freq[out[j]] })
	return out
}

func suggest(m *Metadata) {
	var groupable []string
	for _, c := range m.Columns {
		switch c.Type {
		case TypeCategorical:
			m.SuggestedGroupBy = append(m.SuggestedGroupBy, c.Letter)
		case TypeText:
			if c.UniqueRatio() < groupableTextRate {
				groupable = append(groupable, c.Letter)
			}
		case TypeNumeric:
			if !isIdentifier(c) {
				m.SuggestedAggregate = append(m.SuggestedAggregate, c.Letter)
			}
		case TypeDate:
			if m.SuggestedDateColumn == "" {
				m.SuggestedDateColumn = c.Letter
			}
		}
	}
	if len(m.SuggestedGroupBy) == 0 {
		m.SuggestedGroupBy = groupable
	}
	if m.SuggestedDateColumn == "" {
		for _, c := range m.Columns {
			if containsAny(strings.ToLower(c.Header), "date", "month", "day") {
				m.SuggestedDateColumn = c.Letter
				break
			}
		}
	}
}

// isIdentifier flags numeric columns that number rows rather than measure
// anything, such as an "Order ID" with all-distinct values.
func isIdentifier(c ColumnMetadata) bool {
	h := strings.ToLower(c.Header)
	if h == "#" || h == "no" || h == "no." {
		return true
	}
	if containsAny(h, "id", "code", "number", "zip", "phone") && c.UniqueRatio() >= identifierRatio {
		return true
	}
	return containsAny(h, "year")
}

// Describe renders the metadata as the text block placed in agent prompts.
func (m Metadata) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sheet: '%s'\n", m.SheetName)
	fmt.Fprintf(&b, "Total rows: %d (header + %d data rows)\n", m.TotalRows, m.DataRows)
	fmt.Fprintf(&b, "Last row with data: %d\n", m.LastRow)
	fmt.Fprintf(&b, "Columns: %d\n\n", m.TotalColumns)
	b.WriteString("COLUMN DETAILS:\n")
	for _, c := range m.Columns {
		fmt.Fprintf(&b, "- Column %s \"%s\": %s, %d unique", c.Letter, c.Header, c.Type, c.UniqueCount)
		if c.NullCount > 0 {
			fmt.Fprintf(&b, ", %d empty", c.NullCount)
		}
		if c.Type == TypeNumeric && c.Min != nil {
			fmt.Fprintf(&b, ", min=%s max=%s avg=%s sum=%s",
				formatFloat(*c.Min), formatFloat(*c.Max), formatFloat(*c.Avg), formatFloat(*c.Sum))
		}
		if len(c.Categories) > 0 {
			fmt.Fprintf(&b, ", values: %s", strings.Join(firstN(c.Categories, 10), ", "))
		} else if len(c.Samples) > 0 {
			fmt.Fprintf(&b, ", samples: %s", strings.Join(c.Samples, ", "))
		}
		b.WriteString("\n")
	}
	if len(m.SuggestedGroupBy) > 0 {
		fmt.Fprintf(&b, "\nSuggested GROUP BY columns: %s\n", strings.Join(m.SuggestedGroupBy, ", "))
	}
	if len(m.SuggestedAggregate) > 0 {
		fmt.Fprintf(&b, "Suggested SUM/AVG columns: %s\n", strings.Join(m.SuggestedAggregate, ", "))
	}
	if m.SuggestedDateColumn != "" {
		fmt.Fprintf(&b, "Date column: %s\n", m.SuggestedDateColumn)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Labeled joins column letters with their headers, "B (Region), G (Sales)",
// or returns "None detected".
func (m Metadata) Labeled(letters []string) string {
	if len(letters) == 0 {
		return "None detected"
	}
	parts := make([]string, 0, len(letters))
	for _, l := range letters {
		if c, ok := m.Column(l); ok && c.Header != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", l, c.Header))
			continue
		}
		parts = append(parts, l)
	}
	return strings.Join(parts, ", ")
}

// typeCounter tracks observed value categories for a column.
type typeCounter struct {
	numCount     int
	percentCount int
	textCount    int
	dateCount    int
	boolCount    int
}

var dateLayouts = []string{
	time.RFC3339, "2006-01-02", "01/02/2006", "2006/01/02", "1/2/2006", "1/2/06", "2006-01-02 15:04:05",
	"Jan 2, 2006", "2 Jan 2006",
}

func (t *typeCounter) observe(s string) {
	low := strings.ToLower(s)
	if low == "true" || low == "false" || low == "yes" || low == "no" {
		t.boolCount++
		return
	}
	if strings.HasSuffix(low, "%") {
		v := strings.ReplaceAll(strings.TrimSpace(strings.TrimSuffix(low, "%")), ",", "")
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			t.percentCount++
			return
		}
	}
	if _, ok := ParseNumber(s); ok {
		t.numCount++
		return
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			t.dateCount++
			return
		}
	}
	t.textCount++
}

// ParseNumber reads a numeric cell value, ignoring thousands separators,
// a currency sign and a trailing percent.
func ParseNumber(s string) (float64, bool) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', '%', ' ':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(s))
	if clean == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return append([]string(nil), s[:n]...)
	}
	return s
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
