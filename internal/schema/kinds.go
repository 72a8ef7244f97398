package schema

import (
	"fmt"
	"strings"

	"studygraph/internal/util"
)

type EntityKind string

const (
	KindStudy        EntityKind = "Study"
	KindExperiment   EntityKind = "Experiment"
	KindIntervention EntityKind = "Intervention"
	KindMaterial     EntityKind = "Material"
	KindOrganism     EntityKind = "Organism"
	KindSample       EntityKind = "Sample"
)

type RelationType string

const (
	RelHasType          RelationType = "HAS_TYPE"
	RelVORepresentation RelationType = "VO_REPRESENTATION"
	RelUsesMaterial     RelationType = "USES_MATERIAL"
	RelHasRoute         RelationType = "HAS_ROUTE"
	RelHasDosageUnit    RelationType = "HAS_DOSAGE_UNIT"
	RelIsSpecies        RelationType = "IS_SPECIES"

	RelHasExperiment    RelationType = "HAS_EXPERIMENT"
	RelHasIntervention  RelationType = "HAS_INTERVENTION"
	RelInvolvesOrganism RelationType = "INVOLVES_ORGANISM"
	RelUndergoes        RelationType = "UNDERGOES"
	RelAppliesMaterial  RelationType = "APPLIES_MATERIAL"
	RelIsSourceOf       RelationType = "IS_SOURCE_OF"
)

const (
	ResourceLabel = "Resource"
	ResourceKey   = "uri"

	CopyPrefixVO       = "vo_"
	CopyPrefixOntology = "ontology_"
)

// Reference is an ontology-linked attribute resolved against Resource nodes.
type Reference struct {
	Field       string
	Relation    RelationType
	StripPrefix string
}

// ForeignKey links a node to another data node. When Outgoing is false the
// relationship points from the target to the node holding the field.
type ForeignKey struct {
	Field    string
	Target   EntityKind
	Relation RelationType
	Outgoing bool
}

type Kind struct {
	Name        EntityKind
	PrimaryKey  string
	Prefix      string
	References  []Reference
	ForeignKeys []ForeignKey
	// CopyPrefix is empty when resolved ontology properties are not copied.
	CopyPrefix string
}

var kinds = []Kind{
	{
		Name:       KindStudy,
		PrimaryKey: "study_id",
		Prefix:     "stu_",
		References: []Reference{
			{Field: "study_type_id", Relation: RelHasType, StripPrefix: "stu_type_"},
		},
		CopyPrefix: CopyPrefixOntology,
	},
	{
		Name:       KindExperiment,
		PrimaryKey: "experiment_id",
		Prefix:     "exp_",
		References: []Reference{
			{Field: "experiment_type_id", Relation: RelVORepresentation, StripPrefix: "exp_type_"},
		},
		ForeignKeys: []ForeignKey{
			{Field: "study_id", Target: KindStudy, Relation: RelHasExperiment},
		},
		CopyPrefix: CopyPrefixVO,
	},
	{
		Name:       KindMaterial,
		PrimaryKey: "material_id",
		Prefix:     "mat_",
		References: []Reference{
			{Field: "material_name_id", Relation: RelVORepresentation, StripPrefix: "mat_name_"},
		},
		CopyPrefix: CopyPrefixVO,
	},
	{
		Name:       KindIntervention,
		PrimaryKey: "intervention_id",
		Prefix:     "int_",
		References: []Reference{
			{Field: "intervention_type_id", Relation: RelHasType, StripPrefix: "int_type_"},
			{Field: "material_id", Relation: RelUsesMaterial, StripPrefix: "mat_"},
			{Field: "intervention_route_id", Relation: RelHasRoute, StripPrefix: "route_"},
			{Field: "dosage_unit_id", Relation: RelHasDosageUnit, StripPrefix: "dosage_"},
		},
		ForeignKeys: []ForeignKey{
			{Field: "experiment_id", Target: KindExperiment, Relation: RelHasIntervention},
			{Field: "organism_id", Target: KindOrganism, Relation: RelUndergoes},
			{Field: "material_id", Target: KindMaterial, Relation: RelAppliesMaterial, Outgoing: true},
		},
	},
	{
		Name:       KindOrganism,
		PrimaryKey: "organism_id",
		Prefix:     "org_",
		References: []Reference{
			{Field: "species_id", Relation: RelIsSpecies, StripPrefix: "species_"},
		},
		ForeignKeys: []ForeignKey{
			{Field: "experiment_id", Target: KindExperiment, Relation: RelInvolvesOrganism},
		},
	},
	{
		Name:       KindSample,
		PrimaryKey: "sample_id",
		Prefix:     "smp_",
		References: []Reference{
			{Field: "biosample_type_id", Relation: RelHasType, StripPrefix: "smp_type_"},
		},
		ForeignKeys: []ForeignKey{
			{Field: "organism_id", Target: KindOrganism, Relation: RelIsSourceOf},
		},
		CopyPrefix: CopyPrefixOntology,
	},
}

var byName = func() map[EntityKind]Kind {
	m := make(map[EntityKind]Kind, len(kinds))
	for _, k := range kinds {
		m[k.Name] = k
	}
	return m
}()

// Kinds returns every kind in ingestion order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func Lookup(name EntityKind) (Kind, bool) {
	k, ok := byName[name]
	return k, ok
}

// Parse resolves a kind name case-insensitively ("organism", "Organism").
func Parse(name string) (Kind, error) {
	n := strings.TrimSpace(name)
	for _, k := range kinds {
		if strings.EqualFold(string(k.Name), n) {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("%w: %q", util.ErrUnknownKind, name)
}

// Select returns the named kinds in ingestion order. An empty list selects all.
func Select(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return Kinds(), nil
	}
	want := map[EntityKind]bool{}
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		k, err := Parse(n)
		if err != nil {
			return nil, err
		}
		want[k.Name] = true
	}
	out := make([]Kind, 0, len(want))
	for _, k := range kinds {
		if want[k.Name] {
			out = append(out, k)
		}
	}
	return out, nil
}

func (k Kind) Label() string { return string(k.Name) }

// FileStem is the base file name used by directory sources.
func (k Kind) FileStem() string { return strings.ToLower(string(k.Name)) }

func (k Kind) Reference(field string) (Reference, bool) {
	for _, r := range k.References {
		if r.Field == field {
			return r, true
		}
	}
	return Reference{}, false
}

func (k Kind) ForeignKey(field string) (ForeignKey, bool) {
	for _, fk := range k.ForeignKeys {
		if fk.Field == field {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

func (k Kind) CopiesProperties() bool { return k.CopyPrefix != "" }
