package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/memory"
)

// OpenAIProvider speaks the OpenAI chat completions protocol. OpenRouter is
// the same protocol behind a different base URL.
type OpenAIProvider struct {
	name   string
	client *openai.Client
	model  string
}

// NewOpenAI creates a tier against api.openai.com.
func NewOpenAI(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	return &OpenAIProvider{name: "openai", client: openai.NewClient(apiKey), model: model}, nil
}

// NewOpenRouter creates a tier against an OpenAI-compatible OpenRouter
// endpoint. An empty baseURL uses the public endpoint.
func NewOpenRouter(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: API key is required")
	}
	if model == "" {
		model = config.DefaultOpenRouterModel
	}
	if baseURL == "" {
		baseURL = config.DefaultOpenRouterURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{name: "openrouter", client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == memory.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("%s: chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
