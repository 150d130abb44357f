package config

import "time"

// Default limits and guardrails for the SheetMind server. Config.Load starts
// from these values before applying the YAML file and environment overrides.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultWorkerPoolSize        = 8

	// Payload bounds
	DefaultMaxCells         = 50_000
	DefaultMaxSnapshotBytes = 20 << 20
)

const (
	// Timeouts
	DefaultOperationTimeout      = 90 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second
	DefaultCompletionTimeout     = 30 * time.Second
	DefaultBackgroundJoinTimeout = 5 * time.Second
)

const (
	// Reasoning loop budgets
	DefaultAgentMaxIterations   = 15
	DefaultAgentMaxDuration     = 60 * time.Second
	DefaultAgentTemperature     = 0.2
	DefaultTraceObservationCap  = 500
	DefaultTraceToolInputCap    = 200
	DefaultColumnValuesLimit    = 20
	DefaultColumnSampleCount    = 5
	DefaultLastRow              = 100
	DefaultChartRangeFallback   = 10
	DefaultVerifyEndRowSlack    = 10
	DefaultQuickActionLimit     = 5
	DefaultCarryForwardMessages = 4
)

const (
	// Session memory
	DefaultMemoryWindow       = 10
	DefaultMaxSessions        = 500
	DefaultSessionIdleTimeout = time.Hour
	DefaultSessionSweepPeriod = 5 * time.Minute
)

const (
	// Completion service caps
	DefaultMaxMessageChars  = 10_000
	DefaultMaxContextChars  = 100_000
	DefaultMaxResponseChars = 50_000
	DefaultMaxTokens        = 2000
	DefaultTemperature      = 0.3
)

const (
	// Per-minute request limits by plan tier
	DefaultFreeRequestsPerMinute = 5
	DefaultProRequestsPerMinute  = 20
	DefaultTeamRequestsPerMinute = 50
)

const (
	// Default models per completion tier
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultOpenRouterModel = "google/gemini-2.0-flash-001"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultAnthropicModel  = "claude-3-5-haiku-latest"
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
)
