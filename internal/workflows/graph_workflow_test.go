package workflows

import (
	"context"
	"errors"
	"testing"

	"studygraph/internal/activities"
	"studygraph/internal/linker"
	"studygraph/internal/ontology"
	"studygraph/internal/pipeline"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerGraphActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "EnsureSchemaActivity", func(context.Context, activities.EnsureSchemaInput) error { return nil })
	registerActivityName(env, "IngestKindActivity", func(context.Context, activities.IngestKindInput) (pipeline.KindSummary, error) {
		return pipeline.KindSummary{}, nil
	})
	registerActivityName(env, "LinkKindActivity", func(context.Context, activities.LinkKindInput) (linker.Stats, error) {
		return linker.Stats{}, nil
	})
	registerActivityName(env, "ResolveKindActivity", func(context.Context, activities.ResolveKindInput) (ontology.Stats, error) {
		return ontology.Stats{}, nil
	})
	registerActivityName(env, "WriteRunSummaryActivity", func(context.Context, activities.WriteRunSummaryInput) (activities.WriteRunSummaryOutput, error) {
		return activities.WriteRunSummaryOutput{}, nil
	})
}

func TestGraphBuildWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GraphBuildWorkflow)
	registerGraphActivities(env)

	env.OnActivity("EnsureSchemaActivity", mock.Anything, activities.EnsureSchemaInput{RunID: "r1"}).Return(nil).Once()
	env.OnActivity("IngestKindActivity", mock.Anything, activities.IngestKindInput{RunID: "r1", InputDir: "/data", Kind: "Organism"}).
		Return(pipeline.KindSummary{Kind: "Organism", Records: 3, NodesCreated: 1, RecordsSkipped: 2}, nil).Once()
	env.OnActivity("IngestKindActivity", mock.Anything, activities.IngestKindInput{RunID: "r1", InputDir: "/data", Kind: "Sample"}).
		Return(pipeline.KindSummary{Kind: "Sample", Records: 2, NodesCreated: 2}, nil).Once()
	env.OnActivity("LinkKindActivity", mock.Anything, activities.LinkKindInput{RunID: "r1", Kind: "Organism"}).Return(linker.Stats{Nodes: 1, Dangling: 1}, nil).Once()
	env.OnActivity("LinkKindActivity", mock.Anything, activities.LinkKindInput{RunID: "r1", Kind: "Sample"}).Return(linker.Stats{Nodes: 2, Created: 1, Dangling: 1}, nil).Once()
	env.OnActivity("ResolveKindActivity", mock.Anything, activities.ResolveKindInput{RunID: "r1", Kind: "Organism"}).Return(ontology.Stats{Nodes: 1, Created: 1}, nil).Once()
	env.OnActivity("ResolveKindActivity", mock.Anything, activities.ResolveKindInput{RunID: "r1", Kind: "Sample"}).
		Return(ontology.Stats{Nodes: 2, Created: 1, Unresolved: 1, Misses: []ontology.Miss{{Key: "smp_4", Field: "biosample_type_id", Value: "x"}}}, nil).Once()
	env.OnActivity("WriteRunSummaryActivity", mock.Anything, mock.Anything).Return(activities.WriteRunSummaryOutput{Path: "/out/runs/r1/summary.json"}, nil).Once()

	// order of the input kinds does not matter; ingestion order is fixed
	env.ExecuteWorkflow(GraphBuildWorkflow, GraphBuildInput{RunID: "r1", InputDir: "/data", Kinds: []string{"sample", "organism"}})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var sum pipeline.Summary
	require.NoError(t, env.GetWorkflowResult(&sum))
	require.Equal(t, "r1", sum.RunID)
	require.Equal(t, 3, sum.NodesCreated)
	require.Equal(t, 2, sum.RecordsSkipped)
	require.Equal(t, 3, sum.RelationshipsCreated)
	require.Equal(t, 2, sum.DanglingLinks)
	require.Equal(t, 1, sum.Unresolved)
	require.Equal(t, []string{"Organism", "Sample"}, []string{sum.Kinds[0].Kind, sum.Kinds[1].Kind})

	res, err := env.QueryWorkflow(QueryGetGraphBuildProgress)
	require.NoError(t, err)
	var progress GraphBuildProgress
	require.NoError(t, res.Get(&progress))
	require.Equal(t, PhaseDone, progress.Phase)
	require.Equal(t, "/out/runs/r1/summary.json", progress.SummaryPath)
	require.Equal(t, map[string]string{"Organism": "resolved", "Sample": "resolved"}, progress.PerKind)
	env.AssertExpectations(t)
}

func TestGraphBuildWorkflowRetriesStoreFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GraphBuildWorkflow)
	registerGraphActivities(env)

	env.OnActivity("EnsureSchemaActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("IngestKindActivity", mock.Anything, mock.Anything).Return(pipeline.KindSummary{}, errors.New("graph store unavailable: connection reset")).Once()
	env.OnActivity("IngestKindActivity", mock.Anything, mock.Anything).Return(pipeline.KindSummary{Kind: "Study", Records: 1, NodesCreated: 1}, nil).Once()
	env.OnActivity("LinkKindActivity", mock.Anything, mock.Anything).Return(linker.Stats{}, nil)
	env.OnActivity("ResolveKindActivity", mock.Anything, mock.Anything).Return(ontology.Stats{}, nil)
	env.OnActivity("WriteRunSummaryActivity", mock.Anything, mock.Anything).Return(activities.WriteRunSummaryOutput{}, nil)

	env.ExecuteWorkflow(GraphBuildWorkflow, GraphBuildInput{RunID: "r2", Kinds: []string{"study"}})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var sum pipeline.Summary
	require.NoError(t, env.GetWorkflowResult(&sum))
	require.Equal(t, 1, sum.NodesCreated)
}

func TestGraphBuildWorkflowStopsBeforeLinking(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GraphBuildWorkflow)
	registerGraphActivities(env)

	linked := 0
	env.OnActivity("EnsureSchemaActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("IngestKindActivity", mock.Anything, mock.Anything).
		Return(pipeline.KindSummary{}, temporal.NewNonRetryableApplicationError("store gone", "StoreUnavailable", nil))
	env.OnActivity("LinkKindActivity", mock.Anything, mock.Anything).Return(func(context.Context, activities.LinkKindInput) (linker.Stats, error) {
		linked++
		return linker.Stats{}, nil
	})

	env.ExecuteWorkflow(GraphBuildWorkflow, GraphBuildInput{RunID: "r3"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.Zero(t, linked)

	res, err := env.QueryWorkflow(QueryGetGraphBuildProgress)
	require.NoError(t, err)
	var progress GraphBuildProgress
	require.NoError(t, res.Get(&progress))
	require.Equal(t, PhaseFailed, progress.Phase)
	require.Equal(t, "ingest failed", progress.PerKind["Study"])
}

func TestGraphBuildWorkflowRejectsUnknownKind(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GraphBuildWorkflow)
	registerGraphActivities(env)

	env.ExecuteWorkflow(GraphBuildWorkflow, GraphBuildInput{RunID: "r4", Kinds: []string{"protocol"}})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestWorkflowID(t *testing.T) {
	require.Equal(t, "graph-build-nightly-2026-10-14", WorkflowID("Nightly 2026.10.14"))
}
