package ontology

import (
	"context"
	"sync"

	"studygraph/internal/ids"
	"studygraph/internal/logger"
	"studygraph/internal/metrics"
	"studygraph/internal/schema"
	"studygraph/internal/storage"
	"studygraph/internal/util"
)

// Miss is one reference value with no matching resource.
type Miss struct {
	Key   string `json:"key"`
	Field string `json:"field"`
	Value string `json:"value"`
}

type Stats struct {
	Nodes      int    `json:"nodes"`
	Created    int    `json:"created"`
	Existing   int    `json:"existing"`
	Unresolved int    `json:"unresolved"`
	Invalid    int    `json:"invalid"`
	Copied     int    `json:"copied"`
	Misses     []Miss `json:"misses,omitempty"`
}

func (s *Stats) Add(o Stats) {
	s.Nodes += o.Nodes
	s.Created += o.Created
	s.Existing += o.Existing
	s.Unresolved += o.Unresolved
	s.Invalid += o.Invalid
	s.Copied += o.Copied
	s.Misses = append(s.Misses, o.Misses...)
}

type lookup struct {
	res   storage.Resource
	found bool
}

// Resolver links data nodes to ontology resources. Lookups are cached until
// Reset, which callers run at the start of every build.
type Resolver struct {
	store   storage.Store
	metrics *metrics.Recorder
	log     *logger.Logger

	mu    sync.Mutex
	cache map[string]lookup
}

func NewResolver(store storage.Store, rec *metrics.Recorder, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{
		store:   store,
		metrics: rec,
		log:     log.With("component", "ontology"),
		cache:   map[string]lookup{},
	}
}

// Reset drops every cached lookup so the next Resolve sees current resources.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = map[string]lookup{}
	r.mu.Unlock()
}

func (r *Resolver) find(ctx context.Context, token string) (storage.Resource, bool, error) {
	r.mu.Lock()
	hit, ok := r.cache[token]
	r.mu.Unlock()
	if ok {
		return hit.res, hit.found, nil
	}
	res, found, err := r.store.FindResource(ctx, token)
	if err != nil {
		return storage.Resource{}, false, err
	}
	r.mu.Lock()
	r.cache[token] = lookup{res: res, found: found}
	r.mu.Unlock()
	return res, found, nil
}

// Resolve walks every node of kind and links each present reference field
// to its resource. Missing resources are counted, never returned as errors.
func (r *Resolver) Resolve(ctx context.Context, kind schema.Kind) (Stats, error) {
	var stats Stats
	if len(kind.References) == 0 {
		return stats, nil
	}
	nodes, err := r.store.ListNodes(ctx, kind.Label(), kind.PrimaryKey)
	if err != nil {
		return stats, err
	}
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Nodes++
		if err := r.resolveNode(ctx, kind, n, &stats); err != nil {
			return stats, err
		}
	}
	r.log.Info("ontology references resolved",
		"kind", kind.Label(),
		"nodes", stats.Nodes,
		"created", stats.Created,
		"existing", stats.Existing,
		"unresolved", stats.Unresolved,
		"invalid", stats.Invalid,
	)
	return stats, nil
}

func (r *Resolver) resolveNode(ctx context.Context, kind schema.Kind, n storage.Node, stats *Stats) error {
	self := storage.NodeRef{Label: kind.Label(), KeyField: kind.PrimaryKey, Key: n.Key}
	for _, ref := range kind.References {
		raw, ok := storage.StringProp(n.Props, ref.Field)
		if !ok || raw == "" {
			continue
		}
		token, err := ids.ReferenceToken(ref, raw)
		if err != nil {
			stats.Invalid++
			r.log.Warn("invalid ontology reference", "kind", kind.Label(), "key", n.Key, "field", ref.Field, "value", raw, "error", err)
			continue
		}
		res, found, err := r.find(ctx, token)
		if err != nil {
			return err
		}
		if !found {
			r.miss(kind, n.Key, ref.Field, raw, stats)
			continue
		}

		to := storage.NodeRef{Label: schema.ResourceLabel, KeyField: schema.ResourceKey, Key: res.URI}
		out, err := r.store.MergeRelationship(ctx, self, string(ref.Relation), to)
		if err != nil {
			return err
		}
		r.metrics.Relationship(kind.Label(), string(ref.Relation), out.String())
		switch out {
		case storage.RelCreated:
			stats.Created++
		case storage.RelExisting:
			stats.Existing++
		case storage.RelMissingEndpoint:
			r.miss(kind, n.Key, ref.Field, raw, stats)
			continue
		}

		if !kind.CopiesProperties() {
			continue
		}
		if err := r.store.SetProperties(ctx, self, CopiedProperties(kind.CopyPrefix, res)); err != nil {
			return err
		}
		stats.Copied++
	}
	return nil
}

func (r *Resolver) miss(kind schema.Kind, key, field, value string, stats *Stats) {
	stats.Unresolved++
	stats.Misses = append(stats.Misses, Miss{Key: key, Field: field, Value: value})
	r.metrics.Unresolved(kind.Label(), field)
	r.log.Warn(util.ErrUnresolvedReference.Error(), "kind", kind.Label(), "key", key, "field", field, "value", value)
}
