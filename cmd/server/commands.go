package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/assistant"
	"github.com/vinodismyname/sheetmind/internal/formula"
	"github.com/vinodismyname/sheetmind/internal/patterns"
	"github.com/vinodismyname/sheetmind/pkg/mcperr"
)

// errInvalidFormula makes validate exit non-zero without printing usage.
var errInvalidFormula = errors.New("formula is invalid")

func buildValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FORMULA",
		Short: "Check a formula for syntax errors and suggest modern alternatives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := args[0]
			ok, errs := formula.Validate(f)
			out := cmd.OutOrStdout()
			if ok {
				fmt.Fprintln(out, "valid")
			}
			for _, e := range errs {
				fmt.Fprintln(out, "error: "+e)
			}
			for _, s := range formula.Suggest(f) {
				fmt.Fprintln(out, "suggestion: "+s)
			}
			if !ok {
				return errInvalidFormula
			}
			return nil
		},
	}
}

func buildRepairCmd() *cobra.Command {
	var lastRow int
	cmd := &cobra.Command{
		Use:   "repair FORMULA",
		Short: "Bound open ranges, fix SUMIF products and report what changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := formula.Repair(args[0], lastRow)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Formula)
			if res.Diff != "" {
				fmt.Fprintln(out, "diff: "+res.Diff)
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(out, "- "+w)
			}
			if res.Blocking() {
				return errInvalidFormula
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lastRow, "last-row", config.DefaultLastRow, "Last data row used to bound open ranges")
	return cmd
}

func buildPatternsCmd() *cobra.Command {
	var (
		sheetName string
		lastRow   int
		list      bool
	)
	cmd := &cobra.Command{
		Use:   "patterns [QUERY]",
		Short: "Look up formula patterns for a calculation goal",
		Example: `  sheetmind patterns 'lookup price by product id'
  sheetmind patterns --list`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := patterns.Default()
			out := cmd.OutOrStdout()
			if list || len(args) == 0 {
				fmt.Fprintln(out, catalog.Summary())
				return nil
			}
			rec := catalog.ForIntent(args[0], sheetName, lastRow)
			if !rec.Found {
				return errors.New(mcperr.Text(mcperr.PatternNotFound, ""))
			}
			fmt.Fprintf(out, "%s\n%s\n\nExample: %s\n", rec.FormulaName, rec.Description, rec.Example)
			if len(rec.Alternatives) > 0 {
				fmt.Fprintln(out, "Alternatives: "+strings.Join(rec.Alternatives, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet name substituted into the example")
	cmd.Flags().IntVar(&lastRow, "last-row", config.DefaultLastRow, "Last data row substituted into the example")
	cmd.Flags().BoolVar(&list, "list", false, "List every pattern")
	return cmd
}

func buildAskCmd(g *globalFlags) *cobra.Command {
	var (
		path      string
		sheetName string
		convID    string
		tier      string
		mode      string
	)
	cmd := &cobra.Command{
		Use:   "ask MESSAGE",
		Short: "Ask one question against a workbook or saved snapshot and print the JSON response",
		Example: `  sheetmind ask --path ./data/sales.xlsx 'total sales by region in a new sheet'
  sheetmind ask --path ./data/snapshot.json --mode chat 'what does column C hold?'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := g.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(ctx) }()

			req := assistant.Request{Message: args[0], ConversationID: convID, Tier: tier, Mode: mode}
			if path != "" {
				in, err := a.loader.Load(ctx, path, sheetName)
				if err != nil {
					return err
				}
				req.Sheet = &in
			}
			resp, err := a.assistant.Handle(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Workbook (.xlsx) or JSON snapshot inside the allowed directories")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Worksheet name (default: the active sheet)")
	cmd.Flags().StringVar(&convID, "conversation", "", "Conversation id to continue")
	cmd.Flags().StringVar(&tier, "tier", "", "Plan tier: free, pro or team")
	cmd.Flags().StringVar(&mode, "mode", "", "auto, chat or action")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
