package sparqlupdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vitalgraph.io/model"
)

func TestParse_InsertDataWithGraphBlock(t *testing.T) {
	p := New()
	op, err := p.Parse(`
		PREFIX foaf: <http://xmlns.com/foaf/0.1/>
		INSERT DATA {
			GRAPH <http://example.org/g1> {
				<http://example.org/alice> foaf:name "Alice" .
				<http://example.org/alice> a <http://example.org/Person> .
			}
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, model.OpInsertData, op.Kind)
	require.Len(t, op.InsertQuads, 2)
	assert.Equal(t, "http://xmlns.com/foaf/0.1/name", op.InsertQuads[0].Predicate.Value)
	assert.Equal(t, "Alice", op.InsertQuads[0].Object.Value)
	assert.Equal(t, "http://www.w3.org/1999/02/22-rdf-syntax-ns#type", op.InsertQuads[1].Predicate.Value)
	assert.Equal(t, "http://example.org/g1", op.InsertQuads[0].Graph.Value)
}

func TestParse_DeleteDataTypedLiteral(t *testing.T) {
	p := New()
	op, err := p.Parse(`DELETE DATA { GRAPH <http://example.org/g1> { <http://example.org/a> <http://example.org/age> "42"^^<http://www.w3.org/2001/XMLSchema#integer> . } }`)
	require.NoError(t, err)
	assert.Equal(t, model.OpDeleteData, op.Kind)
	require.Len(t, op.DeleteQuads, 1)
	assert.Equal(t, "42", op.DeleteQuads[0].Object.Value)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", op.DeleteQuads[0].Object.DatatypeID)
}

func TestParse_InsertDataOutsideGraphBlockIsMalformed(t *testing.T) {
	p := New()
	_, err := p.Parse(`INSERT DATA { <http://example.org/a> <http://example.org/p> "v" . }`)
	assert.Error(t, err)
}

func TestParse_DeleteWhereShorthandRejected(t *testing.T) {
	p := New()
	_, err := p.Parse(`DELETE WHERE { GRAPH <http://example.org/g1> { ?s ?p ?o } }`)
	assert.Error(t, err)
}

func TestParse_ModifyCapturesTemplatesAndVariables(t *testing.T) {
	p := New()
	op, err := p.Parse(`
		DELETE { GRAPH <http://example.org/g1> { ?s <http://example.org/age> ?old } }
		INSERT { GRAPH <http://example.org/g1> { ?s <http://example.org/age> "43" } }
		WHERE { GRAPH <http://example.org/g1> { ?s <http://example.org/age> ?old } }
	`)
	require.NoError(t, err)
	assert.Equal(t, model.OpModify, op.Kind)
	assert.Contains(t, op.DeleteTemplate, "?old")
	assert.Contains(t, op.InsertTemplate, "\"43\"")
	assert.Contains(t, op.WhereClause, "?old")
	assert.ElementsMatch(t, []string{"s", "old"}, op.Variables)
}

func TestParse_DropClearCreateGraph(t *testing.T) {
	p := New()
	drop, err := p.Parse(`DROP GRAPH <http://example.org/g1>`)
	require.NoError(t, err)
	assert.Equal(t, model.OpDropGraph, drop.Kind)
	assert.Equal(t, "http://example.org/g1", drop.GraphURI)

	clear, err := p.Parse(`CLEAR SILENT GRAPH <http://example.org/g1>`)
	require.NoError(t, err)
	assert.Equal(t, model.OpClearGraph, clear.Kind)

	create, err := p.Parse(`CREATE GRAPH <http://example.org/g1>`)
	require.NoError(t, err)
	assert.Equal(t, model.OpCreateGraph, create.Kind)
}

func TestParse_UnrecognizedFormReturnsError(t *testing.T) {
	p := New()
	_, err := p.Parse(`SELECT * WHERE { ?s ?p ?o }`)
	assert.Error(t, err)
}

func TestParse_EmptyInputReturnsError(t *testing.T) {
	p := New()
	_, err := p.Parse("   ")
	assert.Error(t, err)
}
