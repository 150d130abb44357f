package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/vinodismyname/sheetmind/internal/memory"
)

// LangChainProvider runs any langchaingo model as a completion tier.
type LangChainProvider struct {
	name  string
	model llms.Model
}

// NewLangChain wraps m under the given tier name.
func NewLangChain(name string, m llms.Model) *LangChainProvider {
	if name == "" {
		name = "langchain"
	}
	return &LangChainProvider{name: name, model: m}
}

func (p *LangChainProvider) Name() string { return p.name }

func (p *LangChainProvider) Complete(ctx context.Context, req Request) (string, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == memory.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if len(req.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(req.Stop))
	}
	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("%s: generate: %w", p.name, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

// requestFromContent converts langchaingo messages back into a Request so
// the Service can be handed to code that expects an llms.Model.
func requestFromContent(messages []llms.MessageContent, opts llms.CallOptions) Request {
	req := Request{Temperature: opts.Temperature, MaxTokens: opts.MaxTokens, Stop: opts.StopWords}
	var system []string
	for _, mc := range messages {
		var b strings.Builder
		for _, part := range mc.Parts {
			if t, ok := part.(llms.TextContent); ok {
				b.WriteString(t.Text)
			}
		}
		switch mc.Role {
		case llms.ChatMessageTypeSystem:
			system = append(system, b.String())
		case llms.ChatMessageTypeAI:
			req.Messages = append(req.Messages, memory.Message{Role: memory.RoleAssistant, Content: b.String()})
		default:
			req.Messages = append(req.Messages, memory.Message{Role: memory.RoleUser, Content: b.String()})
		}
	}
	req.System = strings.Join(system, "\n\n")
	return req
}
