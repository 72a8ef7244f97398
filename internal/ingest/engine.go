package ingest

import (
	"context"
	"errors"
	"fmt"

	"studygraph/internal/logger"
	"studygraph/internal/metrics"
	"studygraph/internal/record"
	"studygraph/internal/schema"
	"studygraph/internal/storage"
	"studygraph/internal/util"
)

type Outcome struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// Engine writes canonicalized records as graph nodes, one per (label, key).
type Engine struct {
	store   storage.Store
	metrics *metrics.Recorder
	log     *logger.Logger
	locks   *keyLocks
}

func NewEngine(store storage.Store, rec *metrics.Recorder, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		store:   store,
		metrics: rec,
		log:     log.With("component", "ingest"),
		locks:   newKeyLocks(),
	}
}

// Upsert creates the node or merges rec's properties into it. Properties not
// in rec are left alone; a property in rec overwrites the stored value.
func (e *Engine) Upsert(ctx context.Context, kind schema.Kind, rec record.Record) (Outcome, error) {
	key, ok := rec.Get(kind.PrimaryKey)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s has no %s", util.ErrMissingKey, kind.Name, kind.PrimaryKey)
	}
	props := make(map[string]any, rec.Len())
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		props[k] = v
	}

	unlock := e.locks.lock(kind.Label() + "\x00" + key)
	created, err := e.store.UpsertNode(ctx, kind.Label(), kind.PrimaryKey, key, props)
	unlock()
	switch {
	case err == nil:
	case errors.Is(err, util.ErrInvalidGraphName):
		return Outcome{}, fmt.Errorf("upsert %s: %w", kind.Name, err)
	case errors.Is(err, util.ErrStoreUnavailable):
		return Outcome{}, err
	default:
		return Outcome{}, fmt.Errorf("%w: %w", util.ErrStoreUnavailable, err)
	}
	e.metrics.NodeUpserted(kind.Label(), created)
	e.log.Debug("node upserted", "kind", kind.Label(), "key", key, "created", created)
	return Outcome{ID: key, Created: created}, nil
}
