package activities

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"studygraph/internal/config"
	"studygraph/internal/linker"
	"studygraph/internal/logger"
	"studygraph/internal/metrics"
	"studygraph/internal/ontology"
	"studygraph/internal/pipeline"
	"studygraph/internal/schema"
	"studygraph/internal/source"
	"studygraph/internal/storage"
	"studygraph/internal/util"

	"go.temporal.io/sdk/temporal"
)

// Activities run one pipeline step each against a shared store. Every step
// is an idempotent merge, so Temporal may retry any of them.
type Activities struct {
	cfg     config.Config
	store   storage.Store
	metrics *metrics.Recorder
	log     *logger.Logger
}

func New(cfg config.Config, store storage.Store, rec *metrics.Recorder, log *logger.Logger) *Activities {
	if log == nil {
		log = logger.NewNop()
	}
	return &Activities{cfg: cfg, store: store, metrics: rec, log: log.With("component", "activities")}
}

func (a *Activities) driver(workers int) *pipeline.Driver {
	if workers <= 0 {
		workers = a.cfg.IngestWorkers
	}
	return pipeline.NewDriver(a.store, a.metrics, a.log, pipeline.Options{Workers: workers})
}

// nonRetryable marks input errors that no retry can fix.
func nonRetryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, util.ErrUnknownKind) || errors.Is(err, util.ErrUnsupportedFormat) || errors.Is(err, util.ErrInvalidGraphName) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
	}
	return err
}

func (a *Activities) EnsureSchemaActivity(ctx context.Context, in EnsureSchemaInput) error {
	a.log.Info("ensuring graph schema", "run_id", in.RunID)
	return a.driver(1).EnsureSchema(ctx)
}

func (a *Activities) inputDir(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return a.cfg.DataInRoot
	}
	return dir
}

func (a *Activities) IngestKindActivity(ctx context.Context, in IngestKindInput) (pipeline.KindSummary, error) {
	kind, err := schema.Parse(in.Kind)
	if err != nil {
		return pipeline.KindSummary{}, nonRetryable(err)
	}
	ks, err := a.driver(in.Workers).IngestKind(ctx, kind, source.Dir{Root: a.inputDir(in.InputDir)})
	return ks, nonRetryable(err)
}

func (a *Activities) LinkKindActivity(ctx context.Context, in LinkKindInput) (linker.Stats, error) {
	kind, err := schema.Parse(in.Kind)
	if err != nil {
		return linker.Stats{}, nonRetryable(err)
	}
	return a.driver(1).LinkKind(ctx, kind)
}

func (a *Activities) ResolveKindActivity(ctx context.Context, in ResolveKindInput) (ontology.Stats, error) {
	kind, err := schema.Parse(in.Kind)
	if err != nil {
		return ontology.Stats{}, nonRetryable(err)
	}
	return a.driver(1).ResolveKind(ctx, kind)
}

func (a *Activities) WriteRunSummaryActivity(ctx context.Context, in WriteRunSummaryInput) (WriteRunSummaryOutput, error) {
	_ = ctx
	dir := util.SafeJoin(filepath.Join(a.cfg.DataOutRoot, "runs"), in.RunID)
	path, err := in.Summary.WriteReport(dir)
	if err != nil {
		return WriteRunSummaryOutput{}, err
	}
	a.log.Info("run summary written", "run_id", in.RunID, "path", path)
	return WriteRunSummaryOutput{Path: path}, nil
}
