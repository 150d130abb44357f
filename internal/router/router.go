package router

import (
	"regexp"
	"strings"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/memory"
)

// Intent is the path a message takes through the service.
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentChart    Intent = "chart"
	IntentAgent    Intent = "agent"
	IntentDirect   Intent = "direct"
)

// Mode is an explicit caller override of inferred routing.
type Mode string

const (
	ModeAuto   Mode = ""
	ModeChat   Mode = "chat"
	ModeAction Mode = "action"
)

var (
	greetingRe = regexp.MustCompile(`(?i)^(hi|hello|hey|good\s*(morning|afternoon|evening)|thanks|thank\s*you|ok|okay|bye|goodbye)[\s!.?]*$`)

	chartRe = regexp.MustCompile(`(?i)\b(show\s+(me\s+)?(a\s+)?chart|` +
		`create\s+(a\s+)?chart|generate\s+(a\s+)?chart|make\s+(a\s+)?chart|` +
		`visualize|visualise|plot\s+(the\s+)?data|` +
		`bar\s+chart|line\s+chart|pie\s+chart|doughnut\s+chart|scatter\s+chart|radar\s+chart|` +
		`graph\s+(the|my|this))\b`)

	agentRe = regexp.MustCompile(`(?i)\b(group\s+by|grouped\s+by|summarize|summarise|` +
		`pivot\s+table|create\s+(a\s+)?sheet|create\s+(a\s+)?new\s+sheet|move\s+to\s+(a\s+)?new\s+sheet|` +
		`split\s+into|merge\s+|` +
		`deduplicate|de-duplicate|remove\s+duplicates|find\s+duplicates|` +
		`create\s+(a\s+)?summary|breakdown\s+by|break\s+down\s+by|` +
		`aggregate|aggregated|cross\s*tab|crosstab|` +
		`sum\s+of\s+.*\s+by\s+|count\s+of\s+.*\s+by\s+|average\s+of\s+.*\s+by\s+|` +
		`total\s+.*\s+per\s+|count\s+.*\s+per\s+|` +
		`for\s+each\s+(unique\s+)?|per\s+each\s+|` +
		`grouped|categorize\s+by|categorise\s+by|organize\s+by|organise\s+by|` +
		`\w+\s+wise\s+(sum|count|total|average|avg|mean|breakdown|split|value)|` +
		`(sum|count|total|average|avg|mean)\s+\w+\s+wise|\w+\s+wise\b|` +
		`sum\s+\w*\s*by\s+|count\s+by\s+|average\s+by\s+|avg\s+by\s+|total\s+by\s+|mean\s+by\s+|` +
		`top\s+\d+|bottom\s+\d+|` +
		`sort\s+(by|the)|sort\s+\w+\s+(asc|desc|ascending|descending)|` +
		`highest\s+\d+|lowest\s+\d+|rank\s+by|ranking|` +
		`best\s+\d+|worst\s+\d+|largest\s+\d+|smallest\s+\d+|` +
		`show\s+(me\s+)?(the\s+)?top\s+|show\s+(me\s+)?(the\s+)?bottom\s+|` +
		`sort\s+descending|sort\s+ascending|order\s+by|arrange\s+by)\b`)

	// actionRequestRe catches explicit requests to change the sheet.
	actionRequestRe = regexp.MustCompile(`(?i)\b(do\s+(the\s+)?action|perform|execute|make\s+it|in\s+the\s+sheet|` +
		`not\s+answer|actions?\s+in)`)

	confirmationRe = regexp.MustCompile(`(?i)^(yes|yeah|yep|sure|ok|okay|do it|go ahead|proceed|please|correct|right|exactly|that one|the first|create it)[\s!.?]*$`)
)

// maxFollowUpWords bounds the bare replies ("descending", "profit") that
// inherit routing from history.
const maxFollowUpWords = 2

// Options tunes short-reply carry-forward.
type Options struct {
	// CarryForwardWindow is how many recent history messages of the scanned
	// roles are checked. Zero disables carry-forward.
	CarryForwardWindow int
	// ScanAssistant also checks assistant turns, not only user turns.
	ScanAssistant bool
}

// DefaultOptions scans the four most recent user messages.
func DefaultOptions() Options {
	return Options{CarryForwardWindow: config.DefaultCarryForwardMessages}
}

// Input is one routing question.
type Input struct {
	Message string
	History []memory.Message
	Mode    Mode
}

// Route is the routing decision and the rule that made it.
type Route struct {
	Intent Intent `json:"intent"`
	Rule   string `json:"rule"`
	// CarriedFrom is the history message a short reply inherited from.
	CarriedFrom string `json:"carried_from,omitempty"`
}

// SkipsSheetContext reports whether the sheet payload can be dropped.
func (r Route) SkipsSheetContext() bool { return r.Intent == IntentGreeting }

// Rule is one step of the ordered classification.
type Rule struct {
	Name  string
	Match func(rt *Router, in Input) (Route, bool)
}

// Router classifies messages by evaluating rules in order; the first match
// wins and no match means a direct answer.
type Router struct {
	opts  Options
	rules []Rule
}

// New builds a router with the standard rule order: greeting, mode override,
// chart, agent, short-reply carry-forward.
func New(opts Options) *Router {
	return &Router{opts: opts, rules: []Rule{
		{Name: "greeting", Match: matchGreeting},
		{Name: "mode", Match: matchMode},
		{Name: "chart", Match: matchChart},
		{Name: "agent", Match: matchAgent},
		{Name: "carry_forward", Match: matchCarryForward},
	}}
}

// Rules returns the rule names in evaluation order.
func (rt *Router) Rules() []string {
	names := make([]string, len(rt.rules))
	for i, r := range rt.rules {
		names[i] = r.Name
	}
	return names
}

// Classify routes one message.
func (rt *Router) Classify(in Input) Route {
	for _, r := range rt.rules {
		if route, ok := r.Match(rt, in); ok {
			route.Rule = r.Name
			return route
		}
	}
	return Route{Intent: IntentDirect, Rule: "default"}
}

// IsGreeting reports whether message is only a greeting or pleasantry.
func IsGreeting(message string) bool { return greetingRe.MatchString(strings.TrimSpace(message)) }

// HasChartIntent reports visualization vocabulary.
func HasChartIntent(message string) bool { return chartRe.MatchString(message) }

// HasAgentIntent reports grouping, aggregation, ranking, sorting or explicit
// sheet-change vocabulary.
func HasAgentIntent(message string) bool {
	return agentRe.MatchString(message) || actionRequestRe.MatchString(message)
}

func matchGreeting(_ *Router, in Input) (Route, bool) {
	return Route{Intent: IntentGreeting}, IsGreeting(in.Message)
}

func matchMode(_ *Router, in Input) (Route, bool) {
	switch in.Mode {
	case ModeChat:
		return Route{Intent: IntentDirect}, true
	case ModeAction:
		return Route{Intent: IntentAgent}, true
	}
	return Route{}, false
}

func matchChart(_ *Router, in Input) (Route, bool) {
	return Route{Intent: IntentChart}, HasChartIntent(in.Message)
}

func matchAgent(_ *Router, in Input) (Route, bool) {
	return Route{Intent: IntentAgent}, HasAgentIntent(in.Message)
}

// matchCarryForward lets a short reply inherit the classification of the
// most recent classifiable message in the window.
func matchCarryForward(rt *Router, in Input) (Route, bool) {
	if rt.opts.CarryForwardWindow <= 0 || !isShortReply(in.Message) {
		return Route{}, false
	}
	seen := 0
	for i := len(in.History) - 1; i >= 0 && seen < rt.opts.CarryForwardWindow; i-- {
		h := in.History[i]
		if h.Role != memory.RoleUser && !(rt.opts.ScanAssistant && h.Role == memory.RoleAssistant) {
			continue
		}
		seen++
		switch {
		case HasChartIntent(h.Content):
			return Route{Intent: IntentChart, CarriedFrom: h.Content}, true
		case HasAgentIntent(h.Content):
			return Route{Intent: IntentAgent, CarriedFrom: h.Content}, true
		}
	}
	return Route{}, false
}

func isShortReply(message string) bool {
	m := strings.TrimSpace(message)
	if m == "" {
		return false
	}
	if confirmationRe.MatchString(m) {
		return true
	}
	return !strings.Contains(m, "?") && len(strings.Fields(m)) <= maxFollowUpWords
}
