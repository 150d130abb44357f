package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/vinodismyname/sheetmind/config"
)

// Decider chooses the next step of the loop from the rendered prompt. The
// loop owns budgets, tools and verification, so any oracle that can answer
// "which tool next, or done" plugs in here, including scripted test fakes.
type Decider interface {
	Decide(ctx context.Context, prompt string) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, prompt string) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, prompt string) (Decision, error) { return f(ctx, prompt) }

// ModelDecider asks a langchaingo model for a ReAct turn and parses it.
type ModelDecider struct {
	Model       llms.Model
	Temperature float64
	MaxTokens   int
}

// NewModelDecider uses the default reasoning temperature.
func NewModelDecider(m llms.Model) *ModelDecider {
	return &ModelDecider{Model: m, Temperature: config.DefaultAgentTemperature, MaxTokens: 2048}
}

// Decide stops generation at the first "Observation:" so the model cannot
// invent tool results. Malformed turns come back with a format error, see
// IsFormatError.
func (d *ModelDecider) Decide(ctx context.Context, prompt string) (Decision, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, d.Model, prompt,
		llms.WithTemperature(d.Temperature),
		llms.WithMaxTokens(d.MaxTokens),
		llms.WithStopWords([]string{"\nObservation:"}),
	)
	if err != nil {
		return Decision{}, fmt.Errorf("agent: decide: %w", err)
	}
	return ParseReAct(text)
}
