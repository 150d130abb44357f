package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/memory"
)

// Chat answers a question about the sheet. The answer may end with a
// fenced sheetaction block.
func (s *Service) Chat(ctx context.Context, history []memory.Message, message, sheetContext string) (Completion, error) {
	return s.Complete(ctx, Call{
		System:  chatPrompt,
		History: history,
		Message: message,
		Context: sheetContext,
		Label:   "chat",
	})
}

// PlanStep is one step of a single-shot execution plan.
type PlanStep struct {
	Step        int             `json:"step"`
	Description string          `json:"description"`
	Formula     string          `json:"formula,omitempty"`
	About       string          `json:"about,omitempty"`
	Action      json.RawMessage `json:"action"`
}

// Plan is a whole execution plan produced in one completion, without tool
// calls.
type Plan struct {
	Thinking     string     `json:"thinking"`
	Steps        []PlanStep `json:"steps"`
	Verification string     `json:"verification"`
	Summary      string     `json:"summary"`
}

// Actions decodes the step actions in order. Steps whose action does not
// decode are reported by step number and skipped.
func (p *Plan) Actions() (actions.List, []string) {
	out := actions.List{}
	var problems []string
	for _, st := range p.Steps {
		if len(st.Action) == 0 {
			continue
		}
		a, err := actions.Decode(st.Action)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Step %d: %v", st.Step, err))
			continue
		}
		out = append(out, a)
	}
	return out, problems
}

// AgentPlan asks for a JSON plan in one call. A nil plan with a nil error
// means the answer was not a plan.
func (s *Service) AgentPlan(ctx context.Context, history []memory.Message, message, sheetContext string) (*Plan, error) {
	c, err := s.Complete(ctx, Call{
		System:  agentPlanPrompt + s.catalog.CheatSheet(),
		History: history,
		Message: message,
		Context: sheetContext,
		Label:   "agent_plan",
	})
	if err != nil {
		return nil, err
	}
	var p Plan
	if err := decodeAnswer(c.Text, &p); err != nil {
		s.log.Warn().Err(err).Msg("agent plan is not JSON")
		return nil, nil
	}
	return &p, nil
}

// FormulaCompletion answers a per-cell prompt with just the value.
func (s *Service) FormulaCompletion(ctx context.Context, prompt string, rows [][]any) (string, error) {
	var b strings.Builder
	if len(rows) > 0 {
		b.WriteString("Cell data:\n")
		for i, r := range rows {
			raw, err := json.Marshal(r)
			if err != nil {
				return "", fmt.Errorf("llm: encode row %d: %w", i+1, err)
			}
			fmt.Fprintf(&b, "  Row %d: %s\n", i+1, raw)
		}
	}
	c, err := s.Complete(ctx, Call{
		System:  formulaPromptHead + s.catalog.CheatSheet(),
		Message: prompt,
		Context: b.String(),
		Label:   "formula",
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(c.Text), nil
}

// FixResult is a suggested correction for a broken formula.
type FixResult struct {
	FixedFormula string `json:"fixed_formula"`
	WhatWasWrong string `json:"what_was_wrong"`
	Explanation  string `json:"explanation"`
}

// FixFormula asks for a minimal correction. An answer that is not JSON comes
// back as the explanation with an empty fixed formula.
func (s *Service) FixFormula(ctx context.Context, formula, errorMessage, sheetContext string) (FixResult, error) {
	msg := "Broken formula:\n" + formula + "\n\nError message:\n" + errorMessage
	if sheetContext != "" {
		msg += "\n\nSheet context:\n" + sheetContext
	}
	c, err := s.Complete(ctx, Call{System: fixPromptHead + s.catalog.CheatSheet(), Message: msg, Label: "fix"})
	if err != nil {
		return FixResult{}, err
	}
	var fr FixResult
	if err := decodeAnswer(c.Text, &fr); err != nil {
		return FixResult{WhatWasWrong: "Could not parse AI response", Explanation: c.Text}, nil
	}
	return fr, nil
}

// ExplainFormula returns a plain-language walkthrough.
func (s *Service) ExplainFormula(ctx context.Context, formula string) (string, error) {
	c, err := s.Complete(ctx, Call{
		System:  explainPromptHead + s.catalog.CheatSheet(),
		Message: "Explain this spreadsheet formula:\n\n" + formula,
		Label:   "explain",
	})
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ExplainStep is one function in an enhanced explanation.
type ExplainStep struct {
	Step        int    `json:"step"`
	Function    string `json:"function"`
	Description string `json:"description"`
}

// Explanation is the structured walkthrough of a formula.
type Explanation struct {
	Summary            string        `json:"summary"`
	Steps              []ExplainStep `json:"steps"`
	SimplerAlternative *string       `json:"simpler_alternative"`
	FullExplanation    string        `json:"full_explanation"`
}

// ExplainEnhanced returns a step-by-step breakdown. A non-JSON answer is
// used as both summary and full explanation.
func (s *Service) ExplainEnhanced(ctx context.Context, formula string) (Explanation, error) {
	c, err := s.Complete(ctx, Call{
		System:  enhancedExplainPromptHead + s.catalog.CheatSheet(),
		Message: "Explain this spreadsheet formula step by step:\n\n" + formula,
		Label:   "enhanced_explain",
	})
	if err != nil {
		return Explanation{}, err
	}
	var ex Explanation
	if err := decodeAnswer(c.Text, &ex); err != nil {
		return Explanation{Summary: c.Text, Steps: []ExplainStep{}, FullExplanation: c.Text}, nil
	}
	if ex.Steps == nil {
		ex.Steps = []ExplainStep{}
	}
	return ex, nil
}

// ChartConfig is a generated Chart.js configuration. Config is nil when the
// answer was not a JSON object; Raw always holds the answer.
type ChartConfig struct {
	Config json.RawMessage `json:"config,omitempty"`
	Raw    string          `json:"-"`
}

// GenerateChart renders data as a Chart.js configuration.
func (s *Service) GenerateChart(ctx context.Context, data any, chartType, title string) (ChartConfig, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return ChartConfig{}, fmt.Errorf("llm: encode chart data: %w", err)
	}
	parts := []string{"Generate a chart configuration for this data."}
	if chartType != "" {
		parts = append(parts, "Chart type requested: "+chartType)
	}
	if title != "" {
		parts = append(parts, "Chart title: "+title)
	}

	// The data travels as context so it gets the larger input cap.
	c, err := s.Complete(ctx, Call{
		System:  chartPrompt,
		Message: strings.Join(parts, "\n"),
		Context: "Data:\n" + string(raw),
		Label:   "chart",
	})
	if err != nil {
		return ChartConfig{}, err
	}
	out := ChartConfig{Raw: c.Text}
	var obj map[string]any
	if body := UnwrapJSON(c.Text); json.Unmarshal([]byte(body), &obj) == nil {
		out.Config = json.RawMessage(body)
	}
	return out, nil
}
