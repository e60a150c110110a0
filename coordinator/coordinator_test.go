package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalgraph.io/indexclient"
	"vitalgraph.io/model"
)

func TestSelectValueToTerm_URI(t *testing.T) {
	term, err := selectValueToTerm(indexclient.SelectValue{Type: "uri", Value: "http://example.org/a"})
	require.NoError(t, err)
	assert.Equal(t, model.KindIRI, term.Kind)
	assert.Equal(t, "http://example.org/a", term.Value)
}

func TestSelectValueToTerm_TypedLiteral(t *testing.T) {
	term, err := selectValueToTerm(indexclient.SelectValue{Type: "literal", Value: "42", Datatype: "http://www.w3.org/2001/XMLSchema#integer"})
	require.NoError(t, err)
	assert.Equal(t, model.KindLiteral, term.Kind)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", term.DatatypeID)
}

func TestSelectValueToTerm_LangLiteral(t *testing.T) {
	term, err := selectValueToTerm(indexclient.SelectValue{Type: "literal", Value: "bonjour", Lang: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "fr", term.Lang)
}

func TestSelectValueToTerm_BlankNode(t *testing.T) {
	term, err := selectValueToTerm(indexclient.SelectValue{Type: "bnode", Value: "b0"})
	require.NoError(t, err)
	assert.Equal(t, model.KindBlankNode, term.Kind)
}

func TestSelectValueToTerm_UnrecognizedTypeErrors(t *testing.T) {
	_, err := selectValueToTerm(indexclient.SelectValue{Type: "triple", Value: "x"})
	assert.Error(t, err)
}

func TestGraphURIsOf_DeduplicatesAndPreservesFirstSeenOrder(t *testing.T) {
	quads := []model.Quad{
		{Subject: model.NewIRI("a"), Predicate: model.NewIRI("p"), Object: model.NewIRI("o"), Graph: model.NewIRI("g1")},
		{Subject: model.NewIRI("b"), Predicate: model.NewIRI("p"), Object: model.NewIRI("o"), Graph: model.NewIRI("g2")},
		{Subject: model.NewIRI("c"), Predicate: model.NewIRI("p"), Object: model.NewIRI("o"), Graph: model.NewIRI("g1")},
	}
	assert.Equal(t, []string{"g1", "g2"}, graphURIsOf(quads))
}

func TestResolveModify_SubstitutesBindingsIntoInsertTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{"results":{"bindings":[{"s":{"type":"uri","value":"http://example.org/s1"}}]}}`))
	}))
	defer server.Close()

	c := &Coordinator{index: indexclient.New(indexclient.Config{BaseURL: server.URL, MaxRetries: 1})}
	space := model.Space{ID: "sp1"}
	op := model.Operation{
		Kind:           model.OpModify,
		GraphURI:       "http://example.org/g1",
		InsertTemplate: `GRAPH <http://example.org/g1> { ?s <http://example.org/flag> "yes" . }`,
		WhereClause:    "?s a <http://example.org/Thing>",
	}

	err := c.resolveModify(context.Background(), space, &op)
	require.NoError(t, err)
	require.Len(t, op.InsertQuads, 1)
	assert.Equal(t, "http://example.org/s1", op.InsertQuads[0].Subject.Value)
	assert.Equal(t, "http://example.org/flag", op.InsertQuads[0].Predicate.Value)
}

func TestResolveModify_NoBindingsYieldsNoQuads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{"results":{"bindings":[]}}`))
	}))
	defer server.Close()

	c := &Coordinator{index: indexclient.New(indexclient.Config{BaseURL: server.URL, MaxRetries: 1})}
	space := model.Space{ID: "sp1"}
	op := model.Operation{
		Kind:           model.OpModify,
		InsertTemplate: `GRAPH <http://example.org/g1> { ?s <http://example.org/flag> "yes" . }`,
		WhereClause:    "?s a <http://example.org/Thing>",
	}

	err := c.resolveModify(context.Background(), space, &op)
	require.NoError(t, err)
	assert.Empty(t, op.InsertQuads)
}
