package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/vinodismyname/sheetmind/internal/registry"
	"github.com/vinodismyname/sheetmind/internal/runtime"
	"github.com/vinodismyname/sheetmind/internal/telemetry"
	"github.com/vinodismyname/sheetmind/pkg/version"
)

func buildServeCmd(g *globalFlags) *cobra.Command {
	var (
		metricsAddr     string
		shutdownTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run the SheetMind MCP server over stdio.

Tools: ask, analyze_sheet, validate_formula, repair_formula,
find_formula_pattern, explain_formula, fix_formula, and, when admin tools
are enabled, list_sessions and clear_session.

With --metrics-addr a Prometheus endpoint is served at /metrics.`,
		Example: `  sheetmind serve
  sheetmind serve --config sheetmind.yaml --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g, metricsAddr, shutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for the Prometheus /metrics endpoint (default from config)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	return cmd
}

func runServe(ctx context.Context, g *globalFlags, metricsAddr string, shutdownTimeout time.Duration) error {
	cfg, logger, err := g.loadConfig()
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	ctx = logger.WithContext(ctx)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.startHousekeeping(ctx)

	runtimeMW := runtime.NewMiddleware(a.runtime).WithObserver(a.metrics.ObserveTool)
	deps := a.deps()
	toolRegistry := registry.New()

	srv := server.NewMCPServer(
		"SheetMind",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(buildHooks(a.hooks)),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return deps.Filter.FilterTools(ctx, tools) }),
	)
	registry.RegisterTools(srv, toolRegistry, deps)

	tools, _ := toolRegistry.Tools(ctx)
	groups := toolRegistry.Groups()
	logger.Info().
		Str("version", version.Build().String()).
		Str("go", version.Build().Go).
		Int("tools", len(tools)).
		Strs("formula_tools", groups[registry.GroupFormula]).
		Strs("assistant_tools", groups[registry.GroupAssistant]).
		Strs("completion_tiers", a.llm.Tiers()).
		Int("max_concurrent_requests", a.limits.MaxConcurrentRequests).
		Int("worker_pool_size", a.limits.WorkerPoolSize).
		Bool("admin_tools", cfg.EnableAdminTools).
		Msg("server bootstrap configured")

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	a.hooks.OnServerStart()
	stdio := server.NewStdioServer(srv)
	stdio.SetContextFunc(func(ctx context.Context) context.Context { return logger.WithContext(ctx) })
	serveErr := stdio.Listen(ctx, os.Stdin, os.Stdout)
	a.hooks.OnServerStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics endpoint shutdown")
		}
	}
	if err := a.close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown incomplete")
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// buildHooks adapts mcp-go server hooks to the telemetry hooks.
func buildHooks(th *telemetry.Hooks) *server.Hooks {
	hooks := &server.Hooks{}
	var started sync.Map // request id -> start time

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		th.OnSessionStart(session.SessionID())
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		th.OnSessionEnd(session.SessionID())
	})

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		started.Store(id, time.Now())
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		var elapsed time.Duration
		if v, ok := started.LoadAndDelete(id); ok {
			elapsed = time.Since(v.(time.Time))
		}
		var err error
		if res != nil && res.IsError {
			err = toolError(res)
		}
		th.OnToolCall(clientSession(ctx), req.Params.Name, elapsed, err)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		started.Delete(id)
		th.OnToolCall(clientSession(ctx), string(method), 0, err)
	})

	return hooks
}

func clientSession(ctx context.Context) string {
	if s := server.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}

// toolError lifts the text of an error result for logging.
func toolError(res *mcp.CallToolResult) error {
	for _, c := range res.Content {
		if t, ok := c.(mcp.TextContent); ok {
			return errors.New(t.Text)
		}
	}
	return errors.New("tool error")
}
