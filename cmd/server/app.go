package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/agent"
	"github.com/vinodismyname/sheetmind/internal/assistant"
	"github.com/vinodismyname/sheetmind/internal/llm"
	"github.com/vinodismyname/sheetmind/internal/memory"
	"github.com/vinodismyname/sheetmind/internal/patterns"
	"github.com/vinodismyname/sheetmind/internal/ratelimit"
	"github.com/vinodismyname/sheetmind/internal/registry"
	"github.com/vinodismyname/sheetmind/internal/router"
	"github.com/vinodismyname/sheetmind/internal/runtime"
	"github.com/vinodismyname/sheetmind/internal/security"
	"github.com/vinodismyname/sheetmind/internal/sheet"
	"github.com/vinodismyname/sheetmind/internal/telemetry"
)

// app holds the wired server components.
type app struct {
	cfg config.Config
	log zerolog.Logger

	metrics *telemetry.Metrics
	hooks   *telemetry.Hooks

	limits    runtime.Limits
	runtime   *runtime.Controller
	memory    *memory.Manager
	limiter   *ratelimit.Limiter
	catalog   *patterns.Catalog
	loader    *sheet.Loader
	llm       *llm.Service
	agent     *agent.Agent
	assistant *assistant.Assistant
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger, catalog: patterns.Default()}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = telemetry.NewMetrics(promReg)
	a.hooks = telemetry.NewHooks(logger).WithMetrics(a.metrics)

	// An empty allow-list denies every path import; inline cells still work.
	sec, err := security.NewManager(cfg.AllowedDirs, nil, security.WithMaxBytes(cfg.Runtime.MaxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	if err := sec.ValidateConfig(); err != nil {
		logger.Warn().Msg("no allowed directories configured; workbook path imports are disabled")
	} else {
		logger.Info().Strs("allowed_dirs", sec.AllowedDirectories()).Msg("security allow-list configured")
	}

	a.limits = runtime.LimitsFromConfig(cfg.Runtime)
	a.runtime = runtime.NewController(a.limits)
	a.loader = sheet.NewLoader(sec, a.limits.MaxCells)

	a.memory = memory.NewManager(memory.Options{
		Window:      cfg.Memory.Window,
		MaxSessions: cfg.Memory.MaxSessions,
		IdleTimeout: cfg.Memory.IdleTimeout,
		SweepEvery:  cfg.Memory.SweepEvery,
		Logger:      logger,
		OnEvict:     a.hooks.OnSessionEvicted,
	})
	a.limiter = ratelimit.New(ratelimit.FromConfig(cfg.RateLimits))

	llmOpts := llm.OptionsFromConfig(cfg.Completion)
	llmOpts.Catalog = a.catalog
	llmOpts.Logger = logger
	llmOpts.Observe = a.metrics.ObserveCompletion
	a.llm = llm.NewService(llm.TiersFromConfig(ctx, cfg.Providers, logger), llmOpts)

	tools, err := agent.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("agent tools: %w", err)
	}
	decider := agent.NewModelDecider(a.llm)
	decider.Temperature = cfg.Agent.Temperature
	a.agent = agent.New(decider, tools, agent.Options{
		Limits:  agent.Limits{MaxIterations: cfg.Agent.MaxIterations, MaxDuration: cfg.Agent.MaxDuration},
		Policy:  actions.Policy(cfg.Agent.VerifyPolicy),
		Catalog: a.catalog,
		Logger:  logger,
		Hooks: agent.Hooks{
			ToolCalled: a.metrics.AgentToolCalled,
			Finished: func(t agent.Termination, iterations int) {
				a.metrics.AgentFinished(string(t), iterations)
			},
		},
	})

	a.assistant = assistant.New(a.llm, a.agent, assistant.Options{
		Memory:      a.memory,
		Router:      router.New(router.Options{CarryForwardWindow: cfg.Router.CarryForwardWindow, ScanAssistant: cfg.Router.ScanAssistant}),
		Limiter:     a.limiter,
		Pool:        a.runtime.Workers(),
		JoinTimeout: a.limits.BackgroundJoinTimeout,
		MaxCells:    a.limits.MaxCells,
		Logger:      logger,
		Hooks: assistant.Hooks{
			Routed:  a.metrics.Routed,
			Limited: a.hooks.OnRateLimited,
		},
	})
	return a, nil
}

// deps is the tool handler view of the app.
func (a *app) deps() registry.Deps {
	return registry.Deps{
		Assistant: a.assistant,
		LLM:       a.llm,
		Memory:    a.memory,
		Catalog:   a.catalog,
		Loader:    a.loader,
		Filter:    registry.NewAdminToolFilter(a.cfg.EnableAdminTools),
	}
}

// startHousekeeping runs the idle session sweeper and prunes idle rate
// limit buckets until ctx ends.
func (a *app) startHousekeeping(ctx context.Context) {
	a.memory.Start()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := a.limiter.Prune(); n > 0 {
					a.log.Debug().Int("buckets", n).Msg("pruned idle rate limit buckets")
				}
			}
		}
	}()
}

func (a *app) close(ctx context.Context) error {
	if err := a.memory.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("memory: %w", err)
	}
	return nil
}
