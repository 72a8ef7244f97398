package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studygraph/internal/ids"
	"studygraph/internal/ingest"
	"studygraph/internal/linker"
	"studygraph/internal/logger"
	"studygraph/internal/metrics"
	"studygraph/internal/ontology"
	"studygraph/internal/record"
	"studygraph/internal/schema"
	"studygraph/internal/source"
	"studygraph/internal/storage"
	"studygraph/internal/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Workers above 1 upserts records of one kind concurrently.
	Workers int
	// Kinds restricts the run; empty means every kind.
	Kinds       []string
	ResolveOnly bool
}

// Driver sequences a graph build: every kind is ingested before any kind is
// linked or resolved.
type Driver struct {
	store    storage.Store
	engine   *ingest.Engine
	linker   *linker.Linker
	resolver *ontology.Resolver
	metrics  *metrics.Recorder
	log      *logger.Logger
	opts     Options
	now      func() time.Time
}

func NewDriver(store storage.Store, rec *metrics.Recorder, log *logger.Logger, opts Options) *Driver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Driver{
		store:    store,
		engine:   ingest.NewEngine(store, rec, log),
		linker:   linker.New(store, rec, log),
		resolver: ontology.NewResolver(store, rec, log),
		metrics:  rec,
		log:      log.With("component", "pipeline"),
		opts:     opts,
		now:      time.Now,
	}
}

// SchemaKeys lists the unique key of every data label plus the resource label.
func SchemaKeys() []storage.KeySpec {
	out := []storage.KeySpec{{Label: schema.ResourceLabel, Field: schema.ResourceKey}}
	for _, k := range schema.Kinds() {
		out = append(out, storage.KeySpec{Label: k.Label(), Field: k.PrimaryKey})
	}
	return out
}

func (d *Driver) EnsureSchema(ctx context.Context) error {
	return d.store.EnsureSchema(ctx, SchemaKeys())
}

type recordResult struct {
	done      bool
	skip      *Skip
	created   bool
	fieldErrs int
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, util.ErrMissingKey):
		return ReasonMissingKey
	case errors.Is(err, util.ErrInvalidIdentifier):
		return ReasonInvalidIdentifier
	default:
		return ReasonParseError
	}
}

// processRecord returns an error only when the store failed; record-level
// problems come back as a skip.
func (d *Driver) processRecord(ctx context.Context, kind schema.Kind, raw record.Raw) (recordResult, error) {
	skip := func(err error) (recordResult, error) {
		reason := skipReason(err)
		d.metrics.RecordSkipped(kind.Label(), reason)
		d.log.Warn("record skipped", "kind", kind.Label(), "ref", raw.Ref, "reason", reason, "error", err)
		return recordResult{done: true, skip: &Skip{Ref: raw.Ref, Reason: reason, Error: err.Error()}}, nil
	}

	rec, err := record.Parse(raw, kind)
	if err != nil {
		return skip(err)
	}
	canon, fieldErrs, err := ids.CanonicalizeRecord(kind, rec)
	if err != nil {
		return skip(err)
	}
	for _, fe := range fieldErrs {
		d.log.Warn("field skipped", "kind", kind.Label(), "ref", raw.Ref, "field", fe.Field, "value", fe.Value, "error", fe.Err)
	}
	out, err := d.engine.Upsert(ctx, kind, canon)
	if err != nil {
		if util.IsRecordError(err) {
			return skip(err)
		}
		return recordResult{}, err
	}
	return recordResult{done: true, created: out.Created, fieldErrs: len(fieldErrs)}, nil
}

// IngestKind parses, canonicalizes and upserts every raw record of kind.
func (d *Driver) IngestKind(ctx context.Context, kind schema.Kind, src source.Source) (KindSummary, error) {
	ks := KindSummary{Kind: kind.Label()}
	raws, err := src.Records(ctx, kind)
	if err != nil {
		return ks, fmt.Errorf("read %s records: %w", kind.Name, err)
	}
	ks.Records = len(raws)

	results := make([]recordResult, len(raws))
	if d.opts.Workers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.opts.Workers)
		for i, raw := range raws {
			g.Go(func() error {
				res, err := d.processRecord(gctx, kind, raw)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		err = g.Wait()
	} else {
		for i, raw := range raws {
			if err = ctx.Err(); err != nil {
				break
			}
			if results[i], err = d.processRecord(ctx, kind, raw); err != nil {
				break
			}
		}
	}

	for _, r := range results {
		switch {
		case !r.done:
			continue
		case r.skip != nil:
			ks.RecordsSkipped++
			ks.Skipped = append(ks.Skipped, *r.skip)
		case r.created:
			ks.NodesCreated++
		default:
			ks.NodesUpdated++
		}
		ks.FieldsSkipped += r.fieldErrs
	}
	if err != nil {
		return ks, err
	}
	d.log.Info("kind ingested",
		"kind", kind.Label(),
		"records", ks.Records,
		"created", ks.NodesCreated,
		"updated", ks.NodesUpdated,
		"skipped", ks.RecordsSkipped,
	)
	return ks, nil
}

func (d *Driver) LinkKind(ctx context.Context, kind schema.Kind) (linker.Stats, error) {
	return d.linker.Link(ctx, kind)
}

func (d *Driver) ResolveKind(ctx context.Context, kind schema.Kind) (ontology.Stats, error) {
	return d.resolver.Resolve(ctx, kind)
}

// Run executes the whole build. On a store failure it stops and returns the
// partial summary with the error.
func (d *Driver) Run(ctx context.Context, src source.Source) (sum Summary, err error) {
	sum = Summary{RunID: uuid.NewString(), StartedAt: d.now().UTC()}
	defer func() { sum.Finish(d.now().UTC()) }()

	kinds, err := schema.Select(d.opts.Kinds)
	if err != nil {
		return sum, err
	}
	log := d.log.With("run_id", sum.RunID)
	d.resolver.Reset()
	if err := d.EnsureSchema(ctx); err != nil {
		return sum, err
	}

	if !d.opts.ResolveOnly {
		log.Info("phase started", "phase", "ingest", "kinds", len(kinds))
		for _, k := range kinds {
			ks, err := d.IngestKind(ctx, k, src)
			sum.AddIngest(ks)
			if err != nil {
				log.Error("ingest aborted", "kind", k.Label(), "error", err)
				return sum, err
			}
		}
	}

	log.Info("phase started", "phase", "link")
	for _, k := range kinds {
		st, err := d.LinkKind(ctx, k)
		sum.AddLinks(k.Label(), st)
		if err != nil {
			return sum, err
		}
	}

	log.Info("phase started", "phase", "resolve")
	for _, k := range kinds {
		st, err := d.ResolveKind(ctx, k)
		sum.AddResolution(k.Label(), st)
		if err != nil {
			return sum, err
		}
	}

	log.Info("run finished",
		"nodes_created", sum.NodesCreated,
		"nodes_updated", sum.NodesUpdated,
		"relationships_created", sum.RelationshipsCreated,
		"unresolved", sum.Unresolved,
		"records_skipped", sum.RecordsSkipped,
	)
	return sum, nil
}
