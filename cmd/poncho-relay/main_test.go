package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestChainsValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("- chain_id: a\n  nodes: [echo, ask, llm_chat]\n"), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- chain_id: a\n  nodes: [missing]\n"), 0o644))

	out, err := execute(t, "chains", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "OK: 1 chain(s)")

	_, err = execute(t, "chains", "validate", bad)
	assert.ErrorContains(t, err, "missing")
}

func TestChainsList(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
chains:
  source: inline
  inline:
    - chain_id: greet
      sort_order: 3
      nodes: [echo]
`), 0o644))

	out, err := execute(t, "chains", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1. greet [on] sort=3 nodes=echo")
	assert.Contains(t, out, "2. default [on]")
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "console")
	assert.Contains(t, out, "group-bot")
}
