package agent

import (
	"errors"
	"regexp"
	"strings"
)

const finalAnswerMarker = "Final Answer:"

// ErrMissingAction is reported when a model turn names neither a tool nor a
// final answer. The loop feeds the message back as the observation.
var ErrMissingAction = errors.New("Invalid Format: Missing 'Action:' after 'Thought:'") //nolint:staticcheck // fed verbatim to the model

// ErrActionAndFinal is reported when one turn carries both a tool call and a
// final answer. Neither is acted on; the message goes back to the model.
var ErrActionAndFinal = errors.New("Invalid Format: Parsing LLM output produced both a final answer and a parse-able action. Give either an Action or a Final Answer, not both.") //nolint:staticcheck // fed verbatim to the model

// IsFormatError reports whether err describes a malformed model turn that the
// loop should feed back as an observation.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrMissingAction) || errors.Is(err, ErrActionAndFinal)
}

var (
	actionRe      = regexp.MustCompile(`(?s)Action\s*\d*\s*:(.*?)\nAction\s*\d*\s*Input\s*\d*\s*:(.*)`)
	thoughtLeadRe = regexp.MustCompile(`(?i)^\s*Thought\s*:\s*`)
	// An action input ends where the next reasoning step starts.
	inputEndRe = regexp.MustCompile(`\n\s*(?:Thought\s*:|Final Answer\s*:|Action\s*\d*\s*:)`)
)

// Decision is one parsed model turn.
type Decision struct {
	Thought string
	Tool    string
	Input   string
	Final   string
	IsFinal bool
}

// ParseReAct reads a Thought/Action/Action Input turn. Text after
// "Observation" is something the model hallucinated and is dropped. A turn
// holding both an action and a final answer is rejected with
// ErrActionAndFinal.
func ParseReAct(text string) (Decision, error) {
	if i := strings.Index(text, "\nObservation"); i >= 0 {
		text = text[:i]
	}
	finalAt := strings.Index(text, finalAnswerMarker)
	loc := actionRe.FindStringSubmatchIndex(text)

	if finalAt >= 0 && loc != nil {
		return Decision{Thought: thoughtOf(text[:min(finalAt, loc[0])])}, ErrActionAndFinal
	}
	if finalAt >= 0 {
		return Decision{
			Thought: thoughtOf(text[:finalAt]),
			Final:   strings.TrimSpace(text[finalAt+len(finalAnswerMarker):]),
			IsFinal: true,
		}, nil
	}
	if loc == nil {
		return Decision{Thought: thoughtOf(text)}, ErrMissingAction
	}
	tool := strings.TrimSpace(text[loc[2]:loc[3]])
	tool = strings.Trim(tool, "*`[] ")
	input := text[loc[4]:loc[5]]
	if end := inputEndRe.FindStringIndex(input); end != nil {
		input = input[:end[0]]
	}
	input = strings.TrimSpace(input)
	input = strings.TrimSpace(strings.Trim(input, "`"))
	input = strings.TrimPrefix(input, "json\n")
	return Decision{
		Thought: thoughtOf(text[:loc[0]]),
		Tool:    tool,
		Input:   input,
	}, nil
}

func thoughtOf(s string) string {
	return strings.TrimSpace(thoughtLeadRe.ReplaceAllString(strings.TrimSpace(s), ""))
}
