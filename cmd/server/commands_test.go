package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	out, err := run(t, "validate", "=SUM(A2:A10)")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "valid\n"))

	out, err = run(t, "validate", "=SUM(A2:A10")
	require.ErrorIs(t, err, errInvalidFormula)
	require.Contains(t, out, "error: ")
}

func TestRepairCmd(t *testing.T) {
	out, err := run(t, "repair", "--last-row", "40", "=SUM(B2:B)")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, "=SUM(B2:B40)", lines[0])
	require.Contains(t, out, "- Fixed open-ended range B2:B to B2:B40")
}

func TestPatternsCmd(t *testing.T) {
	out, err := run(t, "patterns", "--list")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(out))

	out, err = run(t, "patterns", "--sheet", "Sales", "--last-row", "80", "sum sales by region")
	require.NoError(t, err)
	require.Contains(t, out, "Example: ")

	_, err = run(t, "patterns", "zzqx")
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "PATTERN_NOT_FOUND:"))
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := buildRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "validate", "repair", "patterns", "ask"} {
		require.True(t, names[want], want)
	}
}
