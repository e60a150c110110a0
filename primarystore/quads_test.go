package primarystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"vitalgraph.io/model"
)

func TestDistinctTerms_DeduplicatesAcrossQuads(t *testing.T) {
	shared := model.NewIRI("http://example.org/shared")
	quads := []model.Quad{
		{Subject: shared, Predicate: model.NewIRI("p1"), Object: model.NewLiteral("a", ""), Graph: model.NewIRI("g")},
		{Subject: shared, Predicate: model.NewIRI("p2"), Object: model.NewLiteral("b", ""), Graph: model.NewIRI("g")},
	}
	terms := distinctTerms(quads)
	// shared subject + g + 2 predicates + 2 objects = 6 distinct terms
	assert.Len(t, terms, 6)
	assert.Contains(t, terms, shared.ID().String())
}

func TestDistinctTermValues_PreservesFirstSeenOrder(t *testing.T) {
	quads := []model.Quad{
		{Subject: model.NewIRI("a"), Predicate: model.NewIRI("p"), Object: model.NewLiteral("1", ""), Graph: model.NewIRI("g")},
		{Subject: model.NewIRI("a"), Predicate: model.NewIRI("p"), Object: model.NewLiteral("2", ""), Graph: model.NewIRI("g")},
	}
	values := distinctTermValues(quads)
	assert.Equal(t, []string{"a", "p", "1", "g", "2"}, values)
}

func TestNullableString_EmptyBecomesNil(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "en", nullableString("en"))
}

func TestSpaceTableDDL_UsesSpacePrefixedNames(t *testing.T) {
	ddl := spaceTableDDL("s1")
	assert.Len(t, ddl, 4)
	assert.Contains(t, ddl[0], "s1_term")
	assert.Contains(t, ddl[1], "s1_rdf_quad")
}

func TestDropSpaceTableDDL_DropsQuadBeforeTerm(t *testing.T) {
	ddl := dropSpaceTableDDL("s1")
	assert.Contains(t, ddl[0], "s1_rdf_quad")
	assert.Contains(t, ddl[1], "s1_term")
}
