package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/warmcontext/internal/session"
)

// run executes the CLI against a data dir and returns stdout and stderr
func run(t *testing.T, dataDir string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("WARMCTX_DATA_DIR", dataDir)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func seedBase(t *testing.T, dataDir string) {
	t.Helper()
	dir := filepath.Join(dataDir, "contexts", "base-context", "Default", "Cache")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_1"), make([]byte, 1536), 0644))
}

func TestHelp(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"init", "-h"}, {"copy-and-run", "--help"}} {
		out, _, err := run(t, t.TempDir(), args...)
		require.NoError(t, err)
		assert.Contains(t, out, "Usage:")
	}
}

func TestCopyAndRun_MissingBase(t *testing.T) {
	_, stderr, err := run(t, t.TempDir(), "copy-and-run")
	assert.ErrorIs(t, err, session.ErrBaseContextMissing)
	assert.Contains(t, stderr, "Run `warmctx init` first")
}

func TestInit_RequiresURL(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "init")
	assert.ErrorContains(t, err, "no target URL")
}

func TestExportImport(t *testing.T) {
	dataDir := t.TempDir()
	archive := filepath.Join(t.TempDir(), "base.tar.gz")

	_, _, err := run(t, dataDir, "export", archive)
	assert.Error(t, err)
	_, statErr := os.Stat(archive)
	assert.True(t, os.IsNotExist(statErr), "failed export must not leave a file behind")

	seedBase(t, dataDir)
	out, _, err := run(t, dataDir, "export", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported")

	other := t.TempDir()
	out, _, err = run(t, other, "import", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "1.50 KB")

	data, err := os.ReadFile(filepath.Join(other, "contexts", "base-context", "Default", "Cache", "data_1"))
	require.NoError(t, err)
	assert.Len(t, data, 1536)
}

func TestClean(t *testing.T) {
	dataDir := t.TempDir()
	seedBase(t, dataDir)
	for _, id := range []string{"a", "b"} {
		dir := filepath.Join(dataDir, "contexts", "session-"+id)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Cookies"), []byte("x"), 0644))
	}

	out, _, err := run(t, dataDir, "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 session context(s)")

	entries, err := os.ReadDir(filepath.Join(dataDir, "contexts"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "base-context", entries[0].Name())

	_, _, err = run(t, dataDir, "clean", "--base")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dataDir, "contexts", "base-context"))
	assert.True(t, os.IsNotExist(err))
}

func TestArgs(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "export")
	assert.Error(t, err)

	_, _, err = run(t, t.TempDir(), "clean", "extra")
	assert.Error(t, err)
}
