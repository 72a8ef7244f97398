package storage

import (
	"context"
	"fmt"
	"strings"

	"studygraph/internal/logger"
)

const (
	BackendNeo4j    = "neo4j"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Options struct {
	Backend          string
	Neo4j            Neo4jConfig
	PostgresURL      string
	PostgresMaxConns int32
}

// Open connects the configured backend. The caller owns the returned store
// and must Close it.
func Open(ctx context.Context, opts Options, log *logger.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendNeo4j, "":
		return NewNeo4jStore(ctx, opts.Neo4j, log)
	case BackendPostgres:
		db, err := NewDB(ctx, opts.PostgresURL, opts.PostgresMaxConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
