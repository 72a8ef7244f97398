package linker

import (
	"context"
	"fmt"

	"studygraph/internal/ids"
	"studygraph/internal/logger"
	"studygraph/internal/metrics"
	"studygraph/internal/schema"
	"studygraph/internal/storage"
)

type Stats struct {
	Nodes    int `json:"nodes"`
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Dangling int `json:"dangling"`
	Invalid  int `json:"invalid"`
}

func (s *Stats) Add(o Stats) {
	s.Nodes += o.Nodes
	s.Created += o.Created
	s.Existing += o.Existing
	s.Dangling += o.Dangling
	s.Invalid += o.Invalid
}

// Linker connects data nodes to each other through their foreign keys.
type Linker struct {
	store   storage.Store
	metrics *metrics.Recorder
	log     *logger.Logger
}

func New(store storage.Store, rec *metrics.Recorder, log *logger.Logger) *Linker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Linker{store: store, metrics: rec, log: log.With("component", "linker")}
}

func (l *Linker) Link(ctx context.Context, kind schema.Kind) (Stats, error) {
	var stats Stats
	if len(kind.ForeignKeys) == 0 {
		return stats, nil
	}
	nodes, err := l.store.ListNodes(ctx, kind.Label(), kind.PrimaryKey)
	if err != nil {
		return stats, err
	}
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Nodes++
		self := storage.NodeRef{Label: kind.Label(), KeyField: kind.PrimaryKey, Key: n.Key}
		for _, fk := range kind.ForeignKeys {
			raw, ok := storage.StringProp(n.Props, fk.Field)
			if !ok {
				continue
			}
			target, ok := schema.Lookup(fk.Target)
			if !ok {
				return stats, fmt.Errorf("foreign key %s.%s targets unknown kind %s", kind.Name, fk.Field, fk.Target)
			}
			key, err := ids.PrimaryKey(target, raw)
			if err != nil {
				stats.Invalid++
				l.log.Warn("invalid foreign key", "kind", kind.Label(), "key", n.Key, "field", fk.Field, "value", raw, "error", err)
				continue
			}
			other := storage.NodeRef{Label: target.Label(), KeyField: target.PrimaryKey, Key: key}
			from, to := other, self
			if fk.Outgoing {
				from, to = self, other
			}
			out, err := l.store.MergeRelationship(ctx, from, string(fk.Relation), to)
			if err != nil {
				return stats, err
			}
			l.metrics.Relationship(kind.Label(), string(fk.Relation), out.String())
			switch out {
			case storage.RelCreated:
				stats.Created++
			case storage.RelExisting:
				stats.Existing++
			case storage.RelMissingEndpoint:
				stats.Dangling++
				l.log.Warn("dangling foreign key", "kind", kind.Label(), "key", n.Key, "field", fk.Field, "target", key)
			}
		}
	}
	l.log.Info("entity links merged", "kind", kind.Label(), "nodes", stats.Nodes, "created", stats.Created, "dangling", stats.Dangling)
	return stats, nil
}
