package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"studygraph/internal/ids"

	"github.com/jackc/pgx/v5"
)

// PostgresStore keeps the graph in two tables: one row per (label, key) with
// a jsonb property bag, and one row per (from, type, to) edge.
type PostgresStore struct {
	db *DB

	schemaMu       sync.Mutex
	schemaPrepared bool
}

func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const postgresDDL = `
CREATE TABLE IF NOT EXISTS studygraph_nodes (
  label TEXT NOT NULL,
  node_key TEXT NOT NULL,
  props JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (label, node_key)
);

CREATE TABLE IF NOT EXISTS studygraph_edges (
  from_label TEXT NOT NULL,
  from_key TEXT NOT NULL,
  rel_type TEXT NOT NULL,
  to_label TEXT NOT NULL,
  to_key TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (from_label, from_key, rel_type, to_label, to_key)
);

CREATE INDEX IF NOT EXISTS idx_studygraph_edges_to ON studygraph_edges(to_label, to_key);
`

// EnsureSchema creates the tables; the primary keys already enforce one row
// per label and key, so keys is only validated.
func (s *PostgresStore) EnsureSchema(ctx context.Context, keys []KeySpec) error {
	for _, k := range keys {
		if err := validIdentifier(k.Label, k.Field); err != nil {
			return err
		}
	}
	return s.ensureSchema(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaPrepared {
		return nil
	}
	if _, err := s.db.Pool.Exec(ctx, postgresDDL); err != nil {
		return unavailable("ensure graph schema", err)
	}
	s.schemaPrepared = true
	return nil
}

const upsertNodeSQL = `
INSERT INTO studygraph_nodes(label, node_key, props, updated_at)
VALUES ($1, $2, $3::jsonb, NOW())
ON CONFLICT (label, node_key)
DO UPDATE SET props = studygraph_nodes.props || EXCLUDED.props, updated_at = NOW()
RETURNING (xmax = 0)`

func (s *PostgresStore) UpsertNode(ctx context.Context, label, keyField, key string, props map[string]any) (bool, error) {
	if err := validIdentifier(label, keyField); err != nil {
		return false, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}
	p := nonNil(props)
	p[keyField] = key
	b, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("encode %s %s props: %w", label, key, err)
	}
	var created bool
	if err := s.db.Pool.QueryRow(ctx, upsertNodeSQL, label, key, string(b)).Scan(&created); err != nil {
		return false, unavailable(fmt.Sprintf("upsert %s %s", label, key), err)
	}
	return created, nil
}

const mergeEdgeSQL = `
WITH endpoints AS (
  SELECT
    EXISTS (SELECT 1 FROM studygraph_nodes WHERE label = $1 AND node_key = $2) AS has_from,
    EXISTS (SELECT 1 FROM studygraph_nodes WHERE label = $4 AND node_key = $5) AS has_to
), ins AS (
  INSERT INTO studygraph_edges(from_label, from_key, rel_type, to_label, to_key)
  SELECT $1, $2, $3, $4, $5 FROM endpoints WHERE has_from AND has_to
  ON CONFLICT DO NOTHING
  RETURNING 1
)
SELECT (SELECT count(*) FROM ins), (SELECT has_from AND has_to FROM endpoints)`

func (s *PostgresStore) MergeRelationship(ctx context.Context, from NodeRef, relType string, to NodeRef) (RelOutcome, error) {
	if err := validIdentifier(from.Label, to.Label, relType); err != nil {
		return RelMissingEndpoint, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return RelMissingEndpoint, err
	}
	var (
		inserted  int64
		endpoints bool
	)
	err := s.db.Pool.QueryRow(ctx, mergeEdgeSQL, from.Label, from.Key, relType, to.Label, to.Key).Scan(&inserted, &endpoints)
	if err != nil {
		return RelMissingEndpoint, unavailable(fmt.Sprintf("merge %s -[%s]-> %s", from, relType, to), err)
	}
	switch {
	case inserted > 0:
		return RelCreated, nil
	case !endpoints:
		return RelMissingEndpoint, nil
	default:
		return RelExisting, nil
	}
}

const findResourceSQL = `
SELECT node_key, props FROM studygraph_nodes
WHERE label = 'Resource' AND node_key LIKE '%' || $1 ESCAPE '\'
ORDER BY node_key`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresStore) FindResource(ctx context.Context, token string) (Resource, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Resource{}, false, err
	}
	rows, err := s.db.Pool.Query(ctx, findResourceSQL, likeEscaper.Replace(ids.URISuffix(token)))
	if err != nil {
		return Resource{}, false, unavailable("find resource "+token, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			uri string
			raw []byte
		)
		if err := rows.Scan(&uri, &raw); err != nil {
			return Resource{}, false, unavailable("scan resource", err)
		}
		if !ids.MatchesResourceURI(uri, token) {
			continue
		}
		props, err := decodeProps(raw)
		if err != nil {
			return Resource{}, false, fmt.Errorf("decode resource %s: %w", uri, err)
		}
		return Resource{URI: uri, Props: props}, true, nil
	}
	if err := rows.Err(); err != nil {
		return Resource{}, false, unavailable("find resource "+token, err)
	}
	return Resource{}, false, nil
}

func (s *PostgresStore) ListNodes(ctx context.Context, label, keyField string) ([]Node, error) {
	if err := validIdentifier(label, keyField); err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.Pool.Query(ctx, `SELECT node_key, props FROM studygraph_nodes WHERE label = $1 ORDER BY node_key`, label)
	if err != nil {
		return nil, unavailable("list "+label, err)
	}
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Node, error) {
		var (
			n   = Node{Label: label}
			raw []byte
		)
		if err := row.Scan(&n.Key, &raw); err != nil {
			return Node{}, err
		}
		props, err := decodeProps(raw)
		if err != nil {
			return Node{}, err
		}
		n.Props = props
		return n, nil
	})
	if err != nil {
		return nil, unavailable("list "+label, err)
	}
	return nodes, nil
}

// splitProps separates values to merge from keys to remove.
func splitProps(props map[string]any) (map[string]any, []string) {
	set := map[string]any{}
	remove := make([]string, 0)
	for k, v := range props {
		if v == nil {
			remove = append(remove, k)
			continue
		}
		set[k] = v
	}
	return set, remove
}

func (s *PostgresStore) SetProperties(ctx context.Context, ref NodeRef, props map[string]any) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	set, remove := splitProps(props)
	b, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode %s props: %w", ref, err)
	}
	_, err = s.db.Pool.Exec(ctx, `
UPDATE studygraph_nodes
SET props = (props || $3::jsonb) - $4::text[], updated_at = NOW()
WHERE label = $1 AND node_key = $2`, ref.Label, ref.Key, string(b), remove)
	if err != nil {
		return unavailable("set properties on "+ref.String(), err)
	}
	return nil
}

func (s *PostgresStore) Close(context.Context) error {
	s.db.Close()
	return nil
}

func decodeProps(raw []byte) (map[string]any, error) {
	props := map[string]any{}
	if len(raw) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, err
	}
	return props, nil
}
