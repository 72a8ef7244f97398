package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"neo4j_password", "hunter2",
		"postgres_url", "postgres://graph:s3cret@db:5432/graph",
		"kind", "Organism",
		"dangling",
	})
	require.Equal(t, "[REDACTED]", out[1])
	require.Equal(t, "postgres://graph:xxxxx@db:5432/graph", out[3])
	require.Equal(t, "Organism", out[5])
	require.Equal(t, "dangling", out[6])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("dev", "loud")
	require.Error(t, err)

	l, err := New("prod", "debug")
	require.NoError(t, err)
	l.With("component", "test").Debug("ok")
}
