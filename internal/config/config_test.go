package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STUDYGRAPH_STORE", "")
	t.Setenv("STUDYGRAPH_INGEST_WORKERS", "not-a-number")
	cfg := Load()
	require.Equal(t, "neo4j", cfg.Store)
	require.Equal(t, 1, cfg.IngestWorkers)
	require.Equal(t, "studygraph", cfg.TemporalTaskQueue)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STUDYGRAPH_STORE", "Postgres")
	t.Setenv("STUDYGRAPH_POSTGRES_URL", "postgres://g:g@localhost:5432/g")
	t.Setenv("STUDYGRAPH_NEO4J_TIMEOUT_SECONDS", "3")
	t.Setenv("STUDYGRAPH_INGEST_WORKERS", "4")
	cfg := Load()
	require.Equal(t, "postgres", cfg.Store)
	require.Equal(t, 4, cfg.IngestWorkers)
	require.NoError(t, cfg.Validate())

	opts := cfg.StoreOptions()
	require.Equal(t, "postgres", opts.Backend)
	require.Equal(t, 3*time.Second, opts.Neo4j.Timeout)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Store = "postgres"
	cfg.PostgresURL = ""
	require.Error(t, cfg.Validate())

	cfg.Store = "sqlite"
	require.Error(t, cfg.Validate())

	cfg.Store = "memory"
	cfg.IngestWorkers = 0
	require.Error(t, cfg.Validate())

	cfg.IngestWorkers = 2
	require.NoError(t, cfg.Validate())
}
