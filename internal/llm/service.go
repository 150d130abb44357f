package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/memory"
	"github.com/vinodismyname/sheetmind/internal/patterns"
)

// Outcomes reported to Options.Observe.
const (
	OutcomeOK      = "ok"
	OutcomeRefused = "refused"
	OutcomeError   = "error"
)

// refusalWindow is how much of the answer is checked for refusal phrases.
// Longer answers often quote such phrases legitimately further in.
const refusalWindow = 200

var refusalRe = regexp.MustCompile(`(?i)I cannot|I'm not able to|I can't|I am not able to|I do not have access|` +
	`I don't have access|I'm unable to|I am unable to|` +
	`I cannot directly access|I can't directly access|` +
	`I don't have the ability|I do not have the ability|` +
	`as an AI|as a language model|I cannot browse|I cannot view`)

// IsRefusal reports whether the start of text declines to answer.
func IsRefusal(text string) bool {
	return refusalRe.MatchString(clip(text, refusalWindow))
}

// Options configures a Service. Zero values fall back to the defaults.
type Options struct {
	Timeout          time.Duration
	MaxMessageChars  int
	MaxContextChars  int
	MaxResponseChars int
	MaxTokens        int
	Temperature      float64
	Catalog          *patterns.Catalog
	Logger           zerolog.Logger
	// Observe is called once per tier attempt.
	Observe func(tier, outcome string, elapsed time.Duration)
}

// DefaultOptions returns the configured completion caps.
func DefaultOptions() Options {
	return Options{
		Timeout:          config.DefaultCompletionTimeout,
		MaxMessageChars:  config.DefaultMaxMessageChars,
		MaxContextChars:  config.DefaultMaxContextChars,
		MaxResponseChars: config.DefaultMaxResponseChars,
		MaxTokens:        config.DefaultMaxTokens,
		Temperature:      config.DefaultTemperature,
		Logger:           zerolog.Nop(),
	}
}

// OptionsFromConfig maps the completion section of the configuration.
func OptionsFromConfig(c config.CompletionConfig) Options {
	o := DefaultOptions()
	o.Timeout = c.Timeout
	o.MaxMessageChars = c.MaxMessageChars
	o.MaxContextChars = c.MaxContextChars
	o.MaxResponseChars = c.MaxResponseChars
	o.MaxTokens = c.MaxTokens
	o.Temperature = c.Temperature
	return o
}

// Service sends completions through an ordered list of tiers. A tier that
// errors is skipped; a non-final tier that refuses is retried once with an
// explicit instruction before moving on. The final tier's answer is taken
// as is.
type Service struct {
	tiers   []Provider
	opts    Options
	catalog *patterns.Catalog
	log     zerolog.Logger
}

// NewService wires tiers in priority order.
func NewService(tiers []Provider, opts Options) *Service {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxMessageChars <= 0 {
		opts.MaxMessageChars = def.MaxMessageChars
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = def.MaxContextChars
	}
	if opts.MaxResponseChars <= 0 {
		opts.MaxResponseChars = def.MaxResponseChars
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Catalog == nil {
		opts.Catalog = patterns.Default()
	}
	return &Service{tiers: tiers, opts: opts, catalog: opts.Catalog, log: opts.Logger}
}

// Tiers returns the tier names in call order.
func (s *Service) Tiers() []string {
	names := make([]string, len(s.tiers))
	for i, t := range s.tiers {
		names[i] = t.Name()
	}
	return names
}

// Call is one conversational completion.
type Call struct {
	System  string
	History []memory.Message
	Message string
	// Context is the rendered sheet, sent ahead of the question.
	Context string
	// Label names the call site in logs.
	Label string
}

// Completion is the text that came back and where it came from.
type Completion struct {
	Text      string `json:"text"`
	Source    string `json:"source"`
	Retried   bool   `json:"retried,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Complete caps the inputs, enriches short follow-ups from history and runs
// the tier chain. When every tier fails the error wraps ErrUnavailable.
func (s *Service) Complete(ctx context.Context, c Call) (Completion, error) {
	msg := s.capInput(c.Message, s.opts.MaxMessageChars, c.Label+" message")
	sheetCtx := s.capInput(c.Context, s.opts.MaxContextChars, c.Label+" context")
	msg = EnrichShortMessage(msg, c.History)

	user := msg
	if sheetCtx != "" {
		user = "SPREADSHEET DATA:\n" + sheetCtx + "\n\nQUESTION:\n" + msg
	}
	msgs := make([]memory.Message, 0, len(c.History)+1)
	for _, h := range c.History {
		if h.Content == "" || (h.Role != memory.RoleUser && h.Role != memory.RoleAssistant) {
			continue
		}
		msgs = append(msgs, memory.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, memory.Message{Role: memory.RoleUser, Content: user})

	return s.run(ctx, c.Label, Request{
		System:      c.System,
		Messages:    msgs,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
}

func (s *Service) run(ctx context.Context, label string, req Request) (Completion, error) {
	if len(s.tiers) == 0 {
		return Completion{}, fmt.Errorf("%w: no completion tiers configured", ErrUnavailable)
	}
	var lastErr error
	for i, p := range s.tiers {
		final := i == len(s.tiers)-1
		text, err := s.attempt(ctx, p, req, final)
		if err != nil {
			lastErr = err
			s.log.Warn().Err(err).Str("tier", p.Name()).Str("call", label).Msg("completion tier failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if final || !IsRefusal(text) {
			return s.finish(text, p.Name(), false), nil
		}

		s.log.Warn().Str("tier", p.Name()).Str("call", label).Msg("completion refused, retrying with explicit instruction")
		retry, err := s.attempt(ctx, p, withNudge(req), final)
		if err == nil && !IsRefusal(retry) {
			return s.finish(retry, p.Name(), true), nil
		}
		if err != nil {
			lastErr = err
		}
		s.log.Info().Str("tier", p.Name()).Str("call", label).Msg("falling back to next completion tier")
	}
	s.log.Error().Err(lastErr).Str("call", label).Msg("all completion tiers exhausted")
	if lastErr == nil {
		lastErr = errors.New("every tier refused")
	}
	return Completion{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// attempt makes one bounded call to a tier.
func (s *Service) attempt(ctx context.Context, p Provider, req Request, final bool) (string, error) {
	ctx, span := otel.Tracer("sheetmind/llm").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.tier", p.Name()),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := p.Complete(ctx, req)
	elapsed := time.Since(start)

	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !final && IsRefusal(text):
		outcome = OutcomeRefused
	}
	span.SetAttributes(attribute.String("llm.outcome", outcome))
	if s.opts.Observe != nil {
		s.opts.Observe(p.Name(), outcome, elapsed)
	}
	return text, err
}

func (s *Service) finish(text, source string, retried bool) Completion {
	c := Completion{Text: text, Source: source, Retried: retried}
	if len(text) > s.opts.MaxResponseChars {
		s.log.Warn().Int("chars", len(text)).Int("limit", s.opts.MaxResponseChars).Msg("truncating completion")
		c.Text = clip(text, s.opts.MaxResponseChars) + truncatedMarker
		c.Truncated = true
	}
	return c
}

func (s *Service) capInput(text string, limit int, label string) string {
	if len(text) <= limit {
		return text
	}
	s.log.Warn().Str("input", label).Int("chars", len(text)).Int("limit", limit).Msg("truncating completion input")
	return clip(text, limit)
}

// withNudge appends the no-refusal instruction to the final user turn.
func withNudge(req Request) Request {
	msgs := append([]memory.Message(nil), req.Messages...)
	if i := lastUser(msgs); i >= 0 {
		msgs[i].Content += refusalNudge
	}
	req.Messages = msgs
	return req
}

// GenerateContent lets the tier chain stand in for a langchaingo model, so
// the reasoning loop can decide through the same fallback.
func (s *Service) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{Temperature: s.opts.Temperature, MaxTokens: s.opts.MaxTokens}
	for _, o := range options {
		o(&opts)
	}
	c, err := s.run(ctx, "model", requestFromContent(messages, opts))
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        c.Text,
		GenerationInfo: map[string]any{"source": c.Source},
	}}}, nil
}

// Call implements the single-prompt half of llms.Model.
func (s *Service) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

var _ llms.Model = (*Service)(nil)

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
