package indexclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vitalgraph.io/model"
)

func setup(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(Config{BaseURL: server.URL, MaxRetries: 3, RetryBaseDelay: 1})
	return client, server
}

func TestCreateDataset_TreatsConflictAsSuccess(t *testing.T) {
	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	err := client.CreateDataset(context.Background(), "vitalgraph_space_s1")
	require.NoError(t, err)
}

func TestDeleteDataset_TreatsNotFoundAsSuccess(t *testing.T) {
	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err := client.DeleteDataset(context.Background(), "vitalgraph_space_s1")
	require.NoError(t, err)
}

func TestUpdate_RetriesOnServiceUnavailableThenSucceeds(t *testing.T) {
	var calls int
	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	err := client.Update(context.Background(), "vitalgraph_space_s1", "INSERT DATA { GRAPH <g:1> { <a> <b> <c> . } }")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestListDatasets_ParsesFusekiShapedPayload(t *testing.T) {
	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"datasets":[{"ds.name":"/vitalgraph_space_s1"},{"ds.name":"/vitalgraph_space_s2"}]}`))
	})
	names, err := client.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vitalgraph_space_s1", "vitalgraph_space_s2"}, names)
}

func TestInsertData_GroupsQuadsByGraph(t *testing.T) {
	var receivedBody string
	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		receivedBody = string(body)
		w.WriteHeader(http.StatusOK)
	})
	quads := []model.Quad{
		{Subject: model.NewIRI("ex:a"), Predicate: model.NewIRI("ex:p"), Object: model.NewLiteral("v", ""), Graph: model.NewIRI("g:1")},
	}
	err := client.InsertData(context.Background(), "vitalgraph_space_s1", quads, false)
	require.NoError(t, err)
	assert.Contains(t, receivedBody, "GRAPH <g:1>")
	assert.Contains(t, receivedBody, `"v"`)
}

func TestInsertData_EmptyQuadsIsNoop(t *testing.T) {
	called := false
	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	err := client.InsertData(context.Background(), "vitalgraph_space_s1", nil, false)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestFormatTerm_EscapesAndTypes(t *testing.T) {
	lit := model.NewTypedLiteral("line1\nline2\t\"q\"", "http://www.w3.org/2001/XMLSchema#string")
	got := FormatTerm(lit, false)
	assert.Equal(t, `"line1\nline2\t\"q\""^^<http://www.w3.org/2001/XMLSchema#string>`, got)

	iri := model.NewIRI("http://example.org/a")
	assert.Equal(t, "<http://example.org/a>", FormatTerm(iri, false))

	bn := model.NewBlankNode("b0")
	assert.Equal(t, "_:b0", FormatTerm(bn, false))

	langLit := model.NewLiteral("bonjour", "fr")
	assert.Equal(t, `"bonjour"@fr`, FormatTerm(langLit, false))
}

func TestFormatTerm_PromotesFloatToDecimal(t *testing.T) {
	lit := model.NewTypedLiteral("1.5", "http://www.w3.org/2001/XMLSchema#float")
	got := FormatTerm(lit, true)
	assert.Equal(t, `"1.5"^^<http://www.w3.org/2001/XMLSchema#decimal>`, got)
}
