// Command sheetmind runs the SheetMind spreadsheet assistant as an MCP server
// and offers one-shot commands for formula checks, pattern lookup and asking
// a question against a workbook.
//
// Usage:
//
//	sheetmind serve --config sheetmind.yaml
//	sheetmind validate '=SUM(A2:A10'
//	sheetmind repair --last-row 200 '=SUM(A:A)'
//	sheetmind patterns 'sum sales by region'
//	sheetmind ask --path data.xlsx 'which region sold most?'
//
// Environment variables override the YAML file: SHEETMIND_LOG_LEVEL,
// SHEETMIND_ALLOWED_DIRS, SHEETMIND_METRICS_ADDR, SHEETMIND_ENABLE_ADMIN_TOOLS
// and the provider keys GEMINI_API_KEY, OPENROUTER_API_KEY, OPENAI_API_KEY,
// ANTHROPIC_API_KEY.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	pretty     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		// Use stderr so stdio clients never read errors as protocol output.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "sheetmind",
		Short:         "Spreadsheet assistant: formula repair, pattern lookup and a reasoning agent over MCP",
		Version:       version.Build().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("SHEETMIND_CONFIG"), "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&g.pretty, "pretty", false, "Human readable console logs on stderr")

	root.AddCommand(
		buildServeCmd(g),
		buildValidateCmd(),
		buildRepairCmd(),
		buildPatternsCmd(),
		buildAskCmd(g),
	)
	return root
}

// loadConfig reads the configuration and builds the process logger. Logs go
// to stderr because stdout carries the MCP stream.
func (g *globalFlags) loadConfig() (config.Config, zerolog.Logger, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if g.logLevel != "" {
		cfg.LogLevel = strings.ToLower(g.logLevel)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	base := zlog.Output(os.Stderr)
	if g.pretty {
		base = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger := base.Level(level).With().Str("service", "sheetmind").Logger()
	return cfg, logger, nil
}
