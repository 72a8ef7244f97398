package workflows

import (
	"strings"
	"time"

	"studygraph/internal/activities"
	"studygraph/internal/linker"
	"studygraph/internal/ontology"
	"studygraph/internal/pipeline"
	"studygraph/internal/schema"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetGraphBuildProgress = "GetGraphBuildProgress"

// GraphBuildWorkflow ingests every kind, then links and resolves every kind.
// A failed activity is retried by Temporal; once retries run out the build
// stops without starting later phases.
func GraphBuildWorkflow(ctx workflow.Context, input GraphBuildInput) (pipeline.Summary, error) {
	runID := input.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	progress := GraphBuildProgress{
		RunID:   runID,
		Phase:   PhaseSchema,
		PerKind: map[string]string{},
		Summary: pipeline.Summary{RunID: runID, StartedAt: workflow.Now(ctx).UTC()},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetGraphBuildProgress, func() (GraphBuildProgress, error) {
		return progress, nil
	}); err != nil {
		return pipeline.Summary{}, err
	}
	fail := func(kind string, err error) (pipeline.Summary, error) {
		if kind != "" {
			progress.PerKind[kind] = progress.Phase + " failed"
		}
		progress.FailReason = err.Error()
		progress.Phase = PhaseFailed
		progress.Summary.Finish(workflow.Now(ctx).UTC())
		return progress.Summary, err
	}

	kinds, err := schema.Select(input.Kinds)
	if err != nil {
		return fail("", temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err))
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	if err := workflow.ExecuteActivity(ctx, "EnsureSchemaActivity", activities.EnsureSchemaInput{RunID: runID}).Get(ctx, nil); err != nil {
		return fail("", err)
	}

	if !input.ResolveOnly {
		progress.Phase = PhaseIngest
		for _, k := range kinds {
			name := k.Label()
			progress.PerKind[name] = "ingesting"
			var ks pipeline.KindSummary
			if err := workflow.ExecuteActivity(ctx, "IngestKindActivity", activities.IngestKindInput{
				RunID:    runID,
				InputDir: input.InputDir,
				Kind:     name,
				Workers:  input.Workers,
			}).Get(ctx, &ks); err != nil {
				return fail(name, err)
			}
			progress.Summary.AddIngest(ks)
			progress.PerKind[name] = "ingested"
		}
	}

	progress.Phase = PhaseLink
	for _, k := range kinds {
		name := k.Label()
		var st linker.Stats
		if err := workflow.ExecuteActivity(ctx, "LinkKindActivity", activities.LinkKindInput{RunID: runID, Kind: name}).Get(ctx, &st); err != nil {
			return fail(name, err)
		}
		progress.Summary.AddLinks(name, st)
		progress.PerKind[name] = "linked"
	}

	progress.Phase = PhaseResolve
	for _, k := range kinds {
		name := k.Label()
		var st ontology.Stats
		if err := workflow.ExecuteActivity(ctx, "ResolveKindActivity", activities.ResolveKindInput{RunID: runID, Kind: name}).Get(ctx, &st); err != nil {
			return fail(name, err)
		}
		progress.Summary.AddResolution(name, st)
		progress.PerKind[name] = "resolved"
	}

	progress.Phase = PhaseReport
	progress.Summary.Finish(workflow.Now(ctx).UTC())
	var out activities.WriteRunSummaryOutput
	if err := workflow.ExecuteActivity(ctx, "WriteRunSummaryActivity", activities.WriteRunSummaryInput{
		RunID:   runID,
		Summary: progress.Summary,
	}).Get(ctx, &out); err != nil {
		// the graph is complete; a missing report file does not undo it
		workflow.GetLogger(ctx).Warn("write run summary failed", "run_id", runID, "error", err)
	}
	progress.SummaryPath = out.Path
	progress.Phase = PhaseDone
	return progress.Summary, nil
}

// WorkflowID derives a stable execution ID from a caller supplied run name.
func WorkflowID(runID string) string {
	return "graph-build-" + sanitizeID(runID)
}

func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(" ", "-", "/", "-", "\\", "-", ":", "-", ".", "-")
	return r.Replace(s)
}
