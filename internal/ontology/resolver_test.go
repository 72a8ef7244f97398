package ontology

import (
	"context"
	"testing"

	"studygraph/internal/schema"
	"studygraph/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const obo = "http://purl.obolibrary.org/obo/"

func kind(t *testing.T, k schema.EntityKind) schema.Kind {
	t.Helper()
	out, ok := schema.Lookup(k)
	require.True(t, ok)
	return out
}

func seed(t *testing.T, s *storage.MemoryStore, k schema.Kind, key string, props map[string]any) {
	t.Helper()
	_, err := s.UpsertNode(context.Background(), k.Label(), k.PrimaryKey, key, props)
	require.NoError(t, err)
}

type countingStore struct {
	*storage.MemoryStore
	finds int
}

func (c *countingStore) FindResource(ctx context.Context, token string) (storage.Resource, bool, error) {
	c.finds++
	return c.MemoryStore.FindResource(ctx, token)
}

func TestResolveOrganismSpeciesWithoutCopy(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	s.PutResource(obo+"NCBITaxon_9606", map[string]any{"label": "Homo sapiens"})
	org := kind(t, schema.KindOrganism)
	seed(t, s, org, "org_13", map[string]any{"species_id": "9606"})

	stats, err := NewResolver(s, nil, nil).Resolve(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Zero(t, stats.Copied)

	rels := s.RelationshipsFrom("Organism", "org_13")
	require.Len(t, rels, 1)
	assert.Equal(t, "IS_SPECIES", rels[0].Type)
	assert.Equal(t, obo+"NCBITaxon_9606", rels[0].To.Key)

	n, _ := s.Node("Organism", "org_13")
	for k := range n {
		assert.NotContains(t, k, "preferred_label")
	}
}

func TestResolveExperimentCopiesVOProperties(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	s.PutResource(obo+"VO_42", map[string]any{
		"IAO_0000115":            "a vaccine related experiment",
		"editor_preferred_label": "vaccine experiment",
		"label":                  "ignored",
		"alternative_term":       "VE",
	})
	exp := kind(t, schema.KindExperiment)
	seed(t, s, exp, "exp_785", map[string]any{"experiment_type_id": "42"})

	stats, err := NewResolver(s, nil, nil).Resolve(ctx, exp)
	require.NoError(t, err)
	assert.Equal(t, Stats{Nodes: 1, Created: 1, Copied: 1}, stats)

	rels := s.RelationshipsFrom("Experiment", "exp_785")
	require.Len(t, rels, 1)
	assert.Equal(t, "VO_REPRESENTATION", rels[0].Type)

	n, _ := s.Node("Experiment", "exp_785")
	assert.Equal(t, obo+"VO_42", n["vo_representation_uri"])
	assert.Equal(t, "a vaccine related experiment", n["vo_definition"])
	assert.Equal(t, "vaccine experiment", n["vo_preferred_label"])
	assert.Equal(t, "VE", n["vo_synonyms"])
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	s.PutResource(obo+"VO_42", map[string]any{"label": "x"})
	exp := kind(t, schema.KindExperiment)
	seed(t, s, exp, "exp_785", map[string]any{"experiment_type_id": "42"})

	_, err := NewResolver(s, nil, nil).Resolve(ctx, exp)
	require.NoError(t, err)
	before, _ := s.Node("Experiment", "exp_785")

	stats, err := NewResolver(s, nil, nil).Resolve(ctx, exp)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 1, stats.Existing)
	assert.Len(t, s.Relationships(), 1)
	after, _ := s.Node("Experiment", "exp_785")
	assert.Equal(t, before, after)
}

func TestResolveRefreshesCopiedProperties(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	mat := kind(t, schema.KindMaterial)
	s.PutResource(obo+"VO_7", map[string]any{"definition": "old", "label": "adjuvant"})
	seed(t, s, mat, "mat_1", map[string]any{"material_name_id": "mat_name_7"})

	_, err := NewResolver(s, nil, nil).Resolve(ctx, mat)
	require.NoError(t, err)

	// the ontology changed underneath
	s.PutResource(obo+"VO_7", map[string]any{"label": "alum adjuvant"})
	_, err = NewResolver(s, nil, nil).Resolve(ctx, mat)
	require.NoError(t, err)

	n, _ := s.Node("Material", "mat_1")
	assert.Equal(t, "alum adjuvant", n["vo_preferred_label"])
	assert.NotContains(t, n, "vo_definition")
}

func TestResolveToleratesUnresolved(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	org := kind(t, schema.KindOrganism)
	seed(t, s, org, "org_1", map[string]any{"species_id": "123456"})
	seed(t, s, org, "org_2", map[string]any{"species_id": "not an id"})
	seed(t, s, org, "org_3", nil)
	before, _ := s.Node("Organism", "org_1")

	stats, err := NewResolver(s, nil, nil).Resolve(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, []Miss{{Key: "org_1", Field: "species_id", Value: "123456"}}, stats.Misses)
	assert.Empty(t, s.Relationships())

	after, _ := s.Node("Organism", "org_1")
	assert.Equal(t, before, after)
}

func TestResolveInterventionFieldsIndependently(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	s.PutResource(obo+"VO_0000001", nil)
	s.PutResource(obo+"VO_5", nil)
	s.PutResource(obo+"VO_0000002", nil)
	in := kind(t, schema.KindIntervention)
	seed(t, s, in, "int_1", map[string]any{
		"intervention_type_id":  "int_type_0000001",
		"material_id":           "mat_5",
		"intervention_route_id": "route_0000002",
		"dosage_unit_id":        "UO:0000022",
	})

	stats, err := NewResolver(s, nil, nil).Resolve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Created)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Zero(t, stats.Copied)

	types := map[string]string{}
	for _, r := range s.RelationshipsFrom("Intervention", "int_1") {
		types[r.Type] = r.To.Key
		assert.NotEqual(t, "VO_REPRESENTATION", r.Type)
	}
	assert.Equal(t, map[string]string{
		"HAS_TYPE":      obo + "VO_0000001",
		"USES_MATERIAL": obo + "VO_5",
		"HAS_ROUTE":     obo + "VO_0000002",
	}, types)

	s.PutResource(obo+"UO_0000022", nil)
	stats, err = NewResolver(s, nil, nil).Resolve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 3, stats.Existing)
	assert.Len(t, s.RelationshipsFrom("Intervention", "int_1"), 4)
}

func TestResolveCachesLookups(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{MemoryStore: storage.NewMemoryStore()}
	s.PutResource(obo+"NCBITaxon_10090", nil)
	org := kind(t, schema.KindOrganism)
	for _, key := range []string{"org_1", "org_2", "org_3"} {
		seed(t, s.MemoryStore, org, key, map[string]any{"species_id": "10090"})
	}

	stats, err := NewResolver(s, nil, nil).Resolve(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Created)
	assert.Equal(t, 1, s.finds)
}

func TestResetDropsCachedLookups(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{MemoryStore: storage.NewMemoryStore()}
	s.PutResource(obo+"VO_7", map[string]any{"label": "old"})
	mat := kind(t, schema.KindMaterial)
	seed(t, s.MemoryStore, mat, "mat_1", map[string]any{"material_name_id": "mat_name_7"})

	r := NewResolver(s, nil, nil)
	_, err := r.Resolve(ctx, mat)
	require.NoError(t, err)

	s.PutResource(obo+"VO_7", map[string]any{"label": "new"})
	r.Reset()
	_, err = r.Resolve(ctx, mat)
	require.NoError(t, err)
	assert.Equal(t, 2, s.finds)
	n, _ := s.Node("Material", "mat_1")
	assert.Equal(t, "new", n["vo_preferred_label"])
}

func TestCopiedPropertiesFallbacks(t *testing.T) {
	got := CopiedProperties("ontology_", storage.Resource{URI: "u", Props: map[string]any{
		"IAO_0000111": "",
		"rdfs__label": "fallback label",
		"IAO_0000118": []any{"a", "b"},
	}})
	assert.Equal(t, map[string]any{
		"ontology_representation_uri": "u",
		"ontology_definition":         nil,
		"ontology_preferred_label":    "fallback label",
		"ontology_synonyms":           []any{"a", "b"},
	}, got)
}
