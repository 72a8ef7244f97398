package storage

import (
	"context"
	"errors"
	"testing"

	"studygraph/internal/util"

	"github.com/stretchr/testify/require"
)

func TestMemoryUpsertMergesProperties(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.UpsertNode(ctx, "Organism", "organism_id", "org_13", map[string]any{"species_id": "9606", "sex": "F"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.UpsertNode(ctx, "Organism", "organism_id", "org_13", map[string]any{"sex": "M", "age": "6"})
	require.NoError(t, err)
	require.False(t, created)

	n, ok := s.Node("Organism", "org_13")
	require.True(t, ok)
	require.Equal(t, map[string]any{"organism_id": "org_13", "species_id": "9606", "sex": "M", "age": "6"}, n)
	require.Equal(t, 1, s.Count("Organism"))
}

func TestMemoryMergeRelationship(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutResource("http://purl.obolibrary.org/obo/NCBITaxon_9606", nil)
	_, err := s.UpsertNode(ctx, "Organism", "organism_id", "org_13", nil)
	require.NoError(t, err)

	from := NodeRef{Label: "Organism", KeyField: "organism_id", Key: "org_13"}
	to := NodeRef{Label: "Resource", KeyField: "uri", Key: "http://purl.obolibrary.org/obo/NCBITaxon_9606"}

	out, err := s.MergeRelationship(ctx, from, "IS_SPECIES", to)
	require.NoError(t, err)
	require.Equal(t, RelCreated, out)

	out, err = s.MergeRelationship(ctx, from, "IS_SPECIES", to)
	require.NoError(t, err)
	require.Equal(t, RelExisting, out)

	out, err = s.MergeRelationship(ctx, from, "IS_SPECIES", NodeRef{Label: "Resource", KeyField: "uri", Key: "missing"})
	require.NoError(t, err)
	require.Equal(t, RelMissingEndpoint, out)

	require.Len(t, s.Relationships(), 1)
	require.Len(t, s.RelationshipsFrom("Organism", "org_13"), 1)

	_, err = s.MergeRelationship(ctx, from, "IS SPECIES", to)
	require.Error(t, err)
}

func TestMemoryFindResourceFirstByURI(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutResource("http://purl.obolibrary.org/obo/VO_42", map[string]any{"label": "b"})
	s.PutResource("http://example.org/VO_42", map[string]any{"label": "a"})
	s.PutResource("http://purl.obolibrary.org/obo/VO_142", nil)

	r, ok, err := s.FindResource(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "http://example.org/VO_42", r.URI)
	require.Equal(t, "a", r.Props["label"])

	_, ok, err = s.FindResource(ctx, "43")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemorySetPropertiesRemovesNil(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.UpsertNode(ctx, "Experiment", "experiment_id", "exp_1", map[string]any{"vo_definition": "x"})
	require.NoError(t, err)

	ref := NodeRef{Label: "Experiment", KeyField: "experiment_id", Key: "exp_1"}
	require.NoError(t, s.SetProperties(ctx, ref, map[string]any{"vo_definition": nil, "vo_preferred_label": "y"}))
	n, _ := s.Node("Experiment", "exp_1")
	require.NotContains(t, n, "vo_definition")
	require.Equal(t, "y", n["vo_preferred_label"])
}

func TestMemoryClosedIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Close(ctx))
	_, err := s.UpsertNode(ctx, "Study", "study_id", "stu_1", nil)
	require.True(t, errors.Is(err, util.ErrStoreUnavailable))
}

func TestStringProp(t *testing.T) {
	props := map[string]any{"a": "x", "b": int64(9606), "c": float64(42), "d": nil}
	v, ok := StringProp(props, "b")
	require.True(t, ok)
	require.Equal(t, "9606", v)
	v, _ = StringProp(props, "c")
	require.Equal(t, "42", v)
	_, ok = StringProp(props, "d")
	require.False(t, ok)
}
