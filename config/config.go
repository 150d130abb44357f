package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vinodismyname/sheetmind/pkg/validation"
)

// Config is the complete server configuration.
type Config struct {
	LogLevel         string   `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	MetricsAddr      string   `yaml:"metrics_addr"`
	AllowedDirs      []string `yaml:"allowed_dirs"`
	EnableAdminTools bool     `yaml:"enable_admin_tools"`

	Runtime    RuntimeConfig    `yaml:"runtime"`
	Agent      AgentConfig      `yaml:"agent"`
	Memory     MemoryConfig     `yaml:"memory"`
	Router     RouterConfig     `yaml:"router"`
	Completion CompletionConfig `yaml:"completion"`
	RateLimits RateLimitConfig  `yaml:"rate_limits"`
	Providers  ProvidersConfig  `yaml:"providers"`
}

// RuntimeConfig bounds request concurrency and background work.
type RuntimeConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" validate:"gte=1"`
	WorkerPoolSize        int           `yaml:"worker_pool_size" validate:"gte=1"`
	MaxCells              int           `yaml:"max_cells" validate:"gte=1"`
	MaxSnapshotBytes      int64         `yaml:"max_snapshot_bytes" validate:"gte=0"`
	OperationTimeout      time.Duration `yaml:"operation_timeout" validate:"gt=0"`
	AcquireTimeout        time.Duration `yaml:"acquire_timeout" validate:"gt=0"`
	BackgroundJoinTimeout time.Duration `yaml:"background_join_timeout" validate:"gt=0"`
}

// AgentConfig holds reasoning loop budgets.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations" validate:"gte=1,lte=100"`
	MaxDuration   time.Duration `yaml:"max_duration" validate:"gt=0"`
	Temperature   float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	VerifyPolicy  string        `yaml:"verify_policy" validate:"oneof=advisory strict"`
}

// MemoryConfig controls the session cache.
type MemoryConfig struct {
	Window      int           `yaml:"window" validate:"gte=1"`
	MaxSessions int           `yaml:"max_sessions" validate:"gte=1"`
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	SweepEvery  time.Duration `yaml:"sweep_every" validate:"gt=0"`
}

// RouterConfig controls short-reply carry-forward.
type RouterConfig struct {
	CarryForwardWindow int  `yaml:"carry_forward_window" validate:"gte=0"`
	ScanAssistant      bool `yaml:"scan_assistant"`
}

// CompletionConfig caps completion-service traffic.
type CompletionConfig struct {
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxMessageChars  int           `yaml:"max_message_chars" validate:"gte=1"`
	MaxContextChars  int           `yaml:"max_context_chars" validate:"gte=1"`
	MaxResponseChars int           `yaml:"max_response_chars" validate:"gte=1"`
	MaxTokens        int           `yaml:"max_tokens" validate:"gte=1"`
	Temperature      float64       `yaml:"temperature" validate:"gte=0,lte=2"`
}

// RateLimitConfig is requests per minute by plan tier.
type RateLimitConfig struct {
	Free int `yaml:"free" validate:"gte=0"`
	Pro  int `yaml:"pro" validate:"gte=0"`
	Team int `yaml:"team" validate:"gte=0"`
}

// ProvidersConfig holds credentials and model names for each completion tier.
// Keys are only ever read from the environment.
type ProvidersConfig struct {
	GeminiAPIKey     string `yaml:"-"`
	GeminiModel      string `yaml:"gemini_model"`
	OpenRouterAPIKey string `yaml:"-"`
	OpenRouterModel  string `yaml:"openrouter_model"`
	OpenRouterURL    string `yaml:"openrouter_url" validate:"omitempty,url"`
	OpenAIAPIKey     string `yaml:"-"`
	OpenAIModel      string `yaml:"openai_model"`
	AnthropicAPIKey  string `yaml:"-"`
	AnthropicModel   string `yaml:"anthropic_model"`
	// OllamaModel enables a local last-resort tier when set.
	OllamaModel string `yaml:"ollama_model"`
	OllamaURL   string `yaml:"ollama_url" validate:"omitempty,url"`
}

// Default returns a Config populated from the compile-time defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Runtime: RuntimeConfig{
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			WorkerPoolSize:        DefaultWorkerPoolSize,
			MaxCells:              DefaultMaxCells,
			MaxSnapshotBytes:      DefaultMaxSnapshotBytes,
			OperationTimeout:      DefaultOperationTimeout,
			AcquireTimeout:        DefaultAcquireRequestTimeout,
			BackgroundJoinTimeout: DefaultBackgroundJoinTimeout,
		},
		Agent: AgentConfig{
			MaxIterations: DefaultAgentMaxIterations,
			MaxDuration:   DefaultAgentMaxDuration,
			Temperature:   DefaultAgentTemperature,
			VerifyPolicy:  "advisory",
		},
		Memory: MemoryConfig{
			Window:      DefaultMemoryWindow,
			MaxSessions: DefaultMaxSessions,
			IdleTimeout: DefaultSessionIdleTimeout,
			SweepEvery:  DefaultSessionSweepPeriod,
		},
		Router: RouterConfig{CarryForwardWindow: DefaultCarryForwardMessages},
		Completion: CompletionConfig{
			Timeout:          DefaultCompletionTimeout,
			MaxMessageChars:  DefaultMaxMessageChars,
			MaxContextChars:  DefaultMaxContextChars,
			MaxResponseChars: DefaultMaxResponseChars,
			MaxTokens:        DefaultMaxTokens,
			Temperature:      DefaultTemperature,
		},
		RateLimits: RateLimitConfig{
			Free: DefaultFreeRequestsPerMinute,
			Pro:  DefaultProRequestsPerMinute,
			Team: DefaultTeamRequestsPerMinute,
		},
		Providers: ProvidersConfig{
			GeminiModel:     DefaultGeminiModel,
			OpenRouterModel: DefaultOpenRouterModel,
			OpenRouterURL:   DefaultOpenRouterURL,
			OpenAIModel:     DefaultOpenAIModel,
			AnthropicModel:  DefaultAnthropicModel,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory and SHEETMIND_* environment
// variables, in that order, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// A missing .env is the normal production case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnv(&cfg)

	if msg := validation.ValidateStruct(cfg); msg != "" {
		return cfg, errors.New("config: " + msg)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := env("SHEETMIND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := env("SHEETMIND_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := env("SHEETMIND_ALLOWED_DIRS"); v != "" {
		cfg.AllowedDirs = filepath.SplitList(v)
	}
	if v := env("SHEETMIND_ENABLE_ADMIN_TOOLS"); v != "" {
		cfg.EnableAdminTools = truthy(v)
	}
	if v := env("SHEETMIND_VERIFY_POLICY"); v != "" {
		cfg.Agent.VerifyPolicy = strings.ToLower(v)
	}
	if n, ok := envInt("SHEETMIND_MAX_SESSIONS"); ok {
		cfg.Memory.MaxSessions = n
	}
	if n, ok := envInt("SHEETMIND_MEMORY_WINDOW"); ok {
		cfg.Memory.Window = n
	}
	if n, ok := envInt("SHEETMIND_MAX_ITERATIONS"); ok {
		cfg.Agent.MaxIterations = n
	}
	if n, ok := envInt("SHEETMIND_CARRY_FORWARD_WINDOW"); ok {
		cfg.Router.CarryForwardWindow = n
	}

	if v := env("SHEETMIND_OLLAMA_MODEL"); v != "" {
		cfg.Providers.OllamaModel = v
	}
	if v := env("OLLAMA_HOST"); v != "" {
		cfg.Providers.OllamaURL = v
	}

	cfg.Providers.GeminiAPIKey = env("GEMINI_API_KEY")
	cfg.Providers.OpenRouterAPIKey = env("OPENROUTER_API_KEY")
	cfg.Providers.OpenAIAPIKey = env("OPENAI_API_KEY")
	cfg.Providers.AnthropicAPIKey = env("ANTHROPIC_API_KEY")
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}
