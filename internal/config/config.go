package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"studygraph/internal/storage"
)

type Config struct {
	Store             string
	Neo4jURI          string
	Neo4jUser         string
	Neo4jPassword     string
	Neo4jDatabase     string
	Neo4jMaxPoolSize  int
	Neo4jTimeoutSecs  int
	PostgresURL       string
	PostgresMaxConns  int
	DataInRoot        string
	DataOutRoot       string
	IngestWorkers     int
	LogMode           string
	LogLevel          string
	APIAddr           string
	MetricsAddr       string
	TemporalAddress   string
	TemporalTaskQueue string
	TemporalNamespace string
}

func Load() Config {
	return Config{
		Store:             strings.ToLower(getenv("STUDYGRAPH_STORE", storage.BackendNeo4j)),
		Neo4jURI:          getenv("STUDYGRAPH_NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:         getenv("STUDYGRAPH_NEO4J_USER", "neo4j"),
		Neo4jPassword:     getenv("STUDYGRAPH_NEO4J_PASSWORD", ""),
		Neo4jDatabase:     getenv("STUDYGRAPH_NEO4J_DATABASE", ""),
		Neo4jMaxPoolSize:  getenvInt("STUDYGRAPH_NEO4J_MAX_POOL_SIZE", 50),
		Neo4jTimeoutSecs:  getenvInt("STUDYGRAPH_NEO4J_TIMEOUT_SECONDS", 10),
		PostgresURL:       getenv("STUDYGRAPH_POSTGRES_URL", ""),
		PostgresMaxConns:  getenvInt("STUDYGRAPH_POSTGRES_MAX_CONNS", 8),
		DataInRoot:        getenv("STUDYGRAPH_DATA_IN", "./data/in"),
		DataOutRoot:       getenv("STUDYGRAPH_DATA_OUT", "./data/out"),
		IngestWorkers:     getenvInt("STUDYGRAPH_INGEST_WORKERS", 1),
		LogMode:           getenv("STUDYGRAPH_LOG_MODE", "dev"),
		LogLevel:          getenv("STUDYGRAPH_LOG_LEVEL", "info"),
		APIAddr:           getenv("STUDYGRAPH_API_ADDR", ":8080"),
		MetricsAddr:       getenv("STUDYGRAPH_METRICS_ADDR", ":9464"),
		TemporalAddress:   getenv("STUDYGRAPH_TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getenv("STUDYGRAPH_TEMPORAL_TASK_QUEUE", "studygraph"),
		TemporalNamespace: getenv("STUDYGRAPH_TEMPORAL_NAMESPACE", "default"),
	}
}

// Validate checks the selected backend has what it needs to connect.
func (c Config) Validate() error {
	switch c.Store {
	case storage.BackendNeo4j:
		if strings.TrimSpace(c.Neo4jURI) == "" {
			return fmt.Errorf("STUDYGRAPH_NEO4J_URI is required for the neo4j store")
		}
	case storage.BackendPostgres:
		if strings.TrimSpace(c.PostgresURL) == "" {
			return fmt.Errorf("STUDYGRAPH_POSTGRES_URL is required for the postgres store")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("STUDYGRAPH_STORE must be neo4j, postgres or memory, got %q", c.Store)
	}
	if c.IngestWorkers < 1 {
		return fmt.Errorf("STUDYGRAPH_INGEST_WORKERS must be at least 1, got %d", c.IngestWorkers)
	}
	return nil
}

func (c Config) StoreOptions() storage.Options {
	return storage.Options{
		Backend: c.Store,
		Neo4j: storage.Neo4jConfig{
			URI:         c.Neo4jURI,
			User:        c.Neo4jUser,
			Password:    c.Neo4jPassword,
			Database:    c.Neo4jDatabase,
			MaxPoolSize: c.Neo4jMaxPoolSize,
			Timeout:     time.Duration(c.Neo4jTimeoutSecs) * time.Second,
		},
		PostgresURL:      c.PostgresURL,
		PostgresMaxConns: int32(c.PostgresMaxConns),
	}
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
