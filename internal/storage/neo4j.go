package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"studygraph/internal/ids"
	"studygraph/internal/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Neo4jConfig struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
	Timeout     time.Duration
}

type Neo4jStore struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig, log *logger.Logger) (*Neo4jStore, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4j store: logger required")
	}
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4j store: uri required")
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, unavailable("neo4j init driver", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, unavailable("neo4j verify connectivity", err)
	}

	return &Neo4jStore{
		Driver:   driver,
		Database: cfg.Database,
		log:      log.With("store", "neo4j"),
	}, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	if s == nil || s.Driver == nil {
		return nil
	}
	err := s.Driver.Close(ctx)
	s.Driver = nil
	return err
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.Database})
}

func constraintQuery(k KeySpec) string {
	name := "studygraph_" + strings.ToLower(k.Label) + "_" + k.Field
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:`%s`) REQUIRE n.`%s` IS UNIQUE", name, k.Label, k.Field)
}

// EnsureSchema creates one uniqueness constraint per label. Failures are
// logged and skipped; MERGE stays correct without them, only slower.
func (s *Neo4jStore) EnsureSchema(ctx context.Context, keys []KeySpec) error {
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)
	for _, k := range keys {
		if err := validIdentifier(k.Label, k.Field); err != nil {
			return err
		}
		res, err := sess.Run(ctx, constraintQuery(k), nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "label", k.Label, "error", err)
			continue
		}
		if _, err := res.Consume(ctx); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "label", k.Label, "error", err)
		}
	}
	return nil
}

// createdMarker is set only by the writer whose MERGE created the node, and
// removed in the same statement.
const createdMarker = "__studygraph_created"

func upsertNodeQuery(label, keyField string) string {
	return fmt.Sprintf("MERGE (n:`%[1]s` {`%[2]s`: $key})\n"+
		"ON CREATE SET n.`%[3]s` = true\n"+
		"WITH n, coalesce(n.`%[3]s`, false) AS created\n"+
		"REMOVE n.`%[3]s`\n"+
		"SET n += $props\n"+
		"RETURN created", label, keyField, createdMarker)
}

func (s *Neo4jStore) UpsertNode(ctx context.Context, label, keyField, key string, props map[string]any) (bool, error) {
	if err := validIdentifier(label, keyField); err != nil {
		return false, err
	}
	params := map[string]any{"key": key, "props": nonNil(props)}
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)

	out, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, upsertNodeQuery(label, keyField), params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		created, _ := rec.Get("created")
		b, _ := created.(bool)
		return b, nil
	})
	if err != nil {
		return false, unavailable(fmt.Sprintf("upsert %s %s", label, key), err)
	}
	return out.(bool), nil
}

func mergeRelationshipQuery(from NodeRef, relType string, to NodeRef) string {
	return fmt.Sprintf("MATCH (a:`%s` {`%s`: $from})\n"+
		"MATCH (b:`%s` {`%s`: $to})\n"+
		"OPTIONAL MATCH (a)-[existing:`%[5]s`]->(b)\n"+
		"WITH a, b, count(existing) = 0 AS created\n"+
		"MERGE (a)-[:`%[5]s`]->(b)\n"+
		"RETURN created", from.Label, from.KeyField, to.Label, to.KeyField, relType)
}

func (s *Neo4jStore) MergeRelationship(ctx context.Context, from NodeRef, relType string, to NodeRef) (RelOutcome, error) {
	if err := validIdentifier(from.Label, from.KeyField, to.Label, to.KeyField, relType); err != nil {
		return RelMissingEndpoint, err
	}
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)

	out, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, mergeRelationshipQuery(from, relType, to), map[string]any{"from": from.Key, "to": to.Key})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return RelMissingEndpoint, nil
		}
		created, _ := res.Record().Get("created")
		if b, _ := created.(bool); b {
			return RelCreated, nil
		}
		return RelExisting, nil
	})
	if err != nil {
		return RelMissingEndpoint, unavailable(fmt.Sprintf("merge %s -[%s]-> %s", from, relType, to), err)
	}
	return out.(RelOutcome), nil
}

const findResourceQuery = "MATCH (r:`Resource`) WHERE r.uri ENDS WITH $suffix\n" +
	"RETURN r.uri AS uri, properties(r) AS props\n" +
	"ORDER BY r.uri"

func (s *Neo4jStore) FindResource(ctx context.Context, token string) (Resource, bool, error) {
	sess := s.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, findResourceQuery, map[string]any{"suffix": ids.URISuffix(token)})
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			uri, _ := rec.Get("uri")
			u, _ := uri.(string)
			if !ids.MatchesResourceURI(u, token) {
				continue
			}
			props, _ := rec.Get("props")
			p, _ := props.(map[string]any)
			return &Resource{URI: u, Props: p}, nil
		}
		return (*Resource)(nil), res.Err()
	})
	if err != nil {
		return Resource{}, false, unavailable("find resource "+token, err)
	}
	r, _ := out.(*Resource)
	if r == nil {
		return Resource{}, false, nil
	}
	return *r, true, nil
}

func listNodesQuery(label, keyField string) string {
	return fmt.Sprintf("MATCH (n:`%s`) RETURN n.`%s` AS key, properties(n) AS props ORDER BY key", label, keyField)
}

func (s *Neo4jStore) ListNodes(ctx context.Context, label, keyField string) ([]Node, error) {
	if err := validIdentifier(label, keyField); err != nil {
		return nil, err
	}
	sess := s.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, listNodesQuery(label, keyField), nil)
		if err != nil {
			return nil, err
		}
		nodes := make([]Node, 0)
		for res.Next(ctx) {
			rec := res.Record()
			key, _ := rec.Get("key")
			props, _ := rec.Get("props")
			p, _ := props.(map[string]any)
			k, ok := scalarString(key)
			if !ok {
				continue
			}
			nodes = append(nodes, Node{Label: label, Key: k, Props: p})
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, unavailable("list "+label, err)
	}
	nodes := out.([]Node)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	return nodes, nil
}

func setPropertiesQuery(ref NodeRef) string {
	return fmt.Sprintf("MATCH (n:`%s` {`%s`: $key}) SET n += $props", ref.Label, ref.KeyField)
}

// SetProperties relies on Cypher removing a property assigned null.
func (s *Neo4jStore) SetProperties(ctx context.Context, ref NodeRef, props map[string]any) error {
	if err := validIdentifier(ref.Label, ref.KeyField); err != nil {
		return err
	}
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)
	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, setPropertiesQuery(ref), map[string]any{"key": ref.Key, "props": props})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return unavailable("set properties on "+ref.String(), err)
	}
	return nil
}

func nonNil(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
