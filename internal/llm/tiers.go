package llm

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/vinodismyname/sheetmind/config"
)

// TiersFromConfig builds the fallback chain from whichever keys are set:
// Gemini direct, then OpenRouter, then OpenAI, then Anthropic, then a local
// Ollama model through langchaingo. A provider that fails to initialise is
// logged and left out.
func TiersFromConfig(ctx context.Context, cfg config.ProvidersConfig, log zerolog.Logger) []Provider {
	var tiers []Provider
	add := func(p Provider, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("completion tier disabled")
			return
		}
		tiers = append(tiers, p)
	}
	if cfg.GeminiAPIKey != "" {
		p, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		add(p, err)
	}
	if cfg.OpenRouterAPIKey != "" {
		p, err := NewOpenRouter(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterURL)
		add(p, err)
	}
	if cfg.OpenAIAPIKey != "" {
		p, err := NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		add(p, err)
	}
	if cfg.AnthropicAPIKey != "" {
		p, err := NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		add(p, err)
	}
	if cfg.OllamaModel != "" {
		opts := []ollama.Option{ollama.WithModel(cfg.OllamaModel)}
		if cfg.OllamaURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.OllamaURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			add(nil, err)
		} else {
			add(NewLangChain("ollama", m), nil)
		}
	}
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = t.Name()
	}
	log.Info().Strs("tiers", names).Msg("completion tiers configured")
	return tiers
}
