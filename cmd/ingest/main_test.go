package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"studygraph/internal/config"
	"studygraph/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Store:         storage.BackendMemory,
		DataInRoot:    t.TempDir(),
		DataOutRoot:   t.TempDir(),
		IngestWorkers: 1,
		LogMode:       "dev",
		LogLevel:      "error",
	}
}

func TestRunCommandWritesSummary(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataInRoot, "study.kv"),
		[]byte("study_id: 1\n\nstudy_id: 2\n\nstudy_name: no key\n"), 0o644))
	out := filepath.Join(t.TempDir(), "report")

	var stdout bytes.Buffer
	cmd := rootCmd(cfg)
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"run", "--kinds", "study", "--workers", "2", "--summary-out", out})
	require.NoError(t, cmd.Execute())

	var got runTotals
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, 2, got.NodesCreated)
	assert.Equal(t, 1, got.RecordsSkipped)
	assert.FileExists(t, filepath.Join(out, "summary.json"))
	assert.FileExists(t, filepath.Join(out, "unresolved.jsonl"))
}

func TestRunCommandRejectsUnknownKind(t *testing.T) {
	cfg := testConfig(t)
	cmd := rootCmd(cfg)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"resolve", "--kinds", "protocol", "--summary-out", t.TempDir()})
	require.Error(t, cmd.Execute())
}

func TestRunCommandRejectsBadStore(t *testing.T) {
	cmd := rootCmd(testConfig(t))
	cmd.SetArgs([]string{"run", "--store", "sqlite"})
	require.ErrorContains(t, cmd.Execute(), "STUDYGRAPH_STORE")
}

func TestVersionCommand(t *testing.T) {
	var stdout bytes.Buffer
	cmd := rootCmd(testConfig(t))
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), Version)
}
