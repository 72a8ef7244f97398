package linker

import (
	"context"
	"testing"

	"studygraph/internal/schema"
	"studygraph/internal/storage"

	"github.com/stretchr/testify/require"
)

func kind(t *testing.T, k schema.EntityKind) schema.Kind {
	t.Helper()
	out, ok := schema.Lookup(k)
	require.True(t, ok)
	return out
}

func seed(t *testing.T, s *storage.MemoryStore, label, keyField, key string, props map[string]any) {
	t.Helper()
	_, err := s.UpsertNode(context.Background(), label, keyField, key, props)
	require.NoError(t, err)
}

func TestLinkInterventionForeignKeys(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seed(t, s, "Experiment", "experiment_id", "exp_785", nil)
	seed(t, s, "Organism", "organism_id", "org_13", nil)
	seed(t, s, "Material", "material_id", "mat_5", nil)
	seed(t, s, "Intervention", "intervention_id", "int_1", map[string]any{
		"experiment_id": "exp_785",
		"organism_id":   "org_13",
		"material_id":   "5",
	})

	l := New(s, nil, nil)
	stats, err := l.Link(ctx, kind(t, schema.KindIntervention))
	require.NoError(t, err)
	require.Equal(t, Stats{Nodes: 1, Created: 3}, stats)

	intervention := storage.NodeRef{Label: "Intervention", KeyField: "intervention_id", Key: "int_1"}
	rels := s.Relationships()
	require.Contains(t, rels, storage.Relationship{
		From: storage.NodeRef{Label: "Experiment", KeyField: "experiment_id", Key: "exp_785"},
		Type: "HAS_INTERVENTION",
		To:   intervention,
	})
	require.Contains(t, rels, storage.Relationship{
		From: storage.NodeRef{Label: "Organism", KeyField: "organism_id", Key: "org_13"},
		Type: "UNDERGOES",
		To:   intervention,
	})
	require.Contains(t, rels, storage.Relationship{
		From: intervention,
		Type: "APPLIES_MATERIAL",
		To:   storage.NodeRef{Label: "Material", KeyField: "material_id", Key: "mat_5"},
	})

	again, err := l.Link(ctx, kind(t, schema.KindIntervention))
	require.NoError(t, err)
	require.Equal(t, Stats{Nodes: 1, Existing: 3}, again)
	require.Len(t, s.Relationships(), 3)
}

func TestLinkCountsDanglingAndInvalid(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seed(t, s, "Sample", "sample_id", "smp_1", map[string]any{"organism_id": "org_99"})
	seed(t, s, "Sample", "sample_id", "smp_2", map[string]any{"organism_id": "n/a"})
	seed(t, s, "Sample", "sample_id", "smp_3", nil)

	stats, err := New(s, nil, nil).Link(ctx, kind(t, schema.KindSample))
	require.NoError(t, err)
	require.Equal(t, Stats{Nodes: 3, Dangling: 1, Invalid: 1}, stats)
	require.Empty(t, s.Relationships())
}

func TestLinkKindWithoutForeignKeys(t *testing.T) {
	s := storage.NewMemoryStore()
	seed(t, s, "Study", "study_id", "stu_1", nil)
	stats, err := New(s, nil, nil).Link(context.Background(), kind(t, schema.KindStudy))
	require.NoError(t, err)
	require.Zero(t, stats)
}
