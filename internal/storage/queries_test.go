package storage

import (
	"strings"
	"testing"

	"studygraph/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeo4jQueries(t *testing.T) {
	q := upsertNodeQuery("Organism", "organism_id")
	assert.Contains(t, q, "MERGE (n:`Organism` {`organism_id`: $key})")
	assert.Contains(t, q, "SET n += $props")
	assert.Contains(t, q, "ON CREATE SET n.`__studygraph_created` = true")
	assert.Contains(t, q, "REMOVE n.`__studygraph_created`")
	assert.NotContains(t, q, "OPTIONAL MATCH")
	assert.Less(t, strings.Index(q, "MERGE"), strings.Index(q, "coalesce"))

	from := NodeRef{Label: "Organism", KeyField: "organism_id", Key: "org_13"}
	to := NodeRef{Label: "Resource", KeyField: "uri", Key: "u"}
	q = mergeRelationshipQuery(from, "IS_SPECIES", to)
	assert.Contains(t, q, "MATCH (a:`Organism` {`organism_id`: $from})")
	assert.Contains(t, q, "MATCH (b:`Resource` {`uri`: $to})")
	assert.Equal(t, 2, strings.Count(q, "`IS_SPECIES`"))

	assert.Equal(t,
		"CREATE CONSTRAINT studygraph_sample_sample_id IF NOT EXISTS FOR (n:`Sample`) REQUIRE n.`sample_id` IS UNIQUE",
		constraintQuery(KeySpec{Label: "Sample", Field: "sample_id"}))
}

func TestValidIdentifier(t *testing.T) {
	require.NoError(t, validIdentifier("Organism", "HAS_DOSAGE_UNIT", "organism_id"))
	require.Error(t, validIdentifier("Organism`) DETACH DELETE n //"))
	require.Error(t, validIdentifier(""))
	require.ErrorIs(t, validIdentifier("bad label"), util.ErrInvalidGraphName)
}

func TestSplitProps(t *testing.T) {
	set, remove := splitProps(map[string]any{"a": "1", "b": nil})
	require.Equal(t, map[string]any{"a": "1"}, set)
	require.Equal(t, []string{"b"}, remove)
}

func TestLikeEscaper(t *testing.T) {
	require.Equal(t, `9606`, likeEscaper.Replace("9606"))
	require.Equal(t, `a\_b\%`, likeEscaper.Replace("a_b%"))
}
