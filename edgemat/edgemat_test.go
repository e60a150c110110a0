package edgemat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vitalgraph.io/model"
)

type fakeIndex struct {
	lastDataset string
	lastSPARQL  string
	calls       int
	err         error
}

func (f *fakeIndex) Update(ctx context.Context, datasetName, sparql string) error {
	f.calls++
	f.lastDataset = datasetName
	f.lastSPARQL = sparql
	return f.err
}

func entityFrameEdgeQuads(edgeURI, source, dest, graph string) []model.Quad {
	g := model.NewIRI(graph)
	return []model.Quad{
		{Subject: model.NewIRI(edgeURI), Predicate: model.NewIRI(model.VitalType), Object: model.NewIRI(model.EdgeClassEntityFrame), Graph: g},
		{Subject: model.NewIRI(edgeURI), Predicate: model.NewIRI(model.EdgeSource), Object: model.NewIRI(source), Graph: g},
		{Subject: model.NewIRI(edgeURI), Predicate: model.NewIRI(model.EdgeDest), Object: model.NewIRI(dest), Graph: g},
	}
}

func TestFilterMaterialized_DropsShortcutPredicates(t *testing.T) {
	quads := []model.Quad{
		{Subject: model.NewIRI("s"), Predicate: model.NewIRI(model.ShortcutEntityFrame), Object: model.NewIRI("o"), Graph: model.NewIRI("g")},
		{Subject: model.NewIRI("s"), Predicate: model.NewIRI("http://example.org/other"), Object: model.NewIRI("o"), Graph: model.NewIRI("g")},
	}
	filtered, count := FilterMaterialized(quads)
	assert.Equal(t, 1, count)
	require.Len(t, filtered, 1)
	assert.Equal(t, "http://example.org/other", filtered[0].Predicate.Value)
}

func TestDetectEdges_FindsCompleteEntityFrameEdge(t *testing.T) {
	quads := entityFrameEdgeQuads("http://example.org/e1", "http://example.org/entity1", "http://example.org/frame1", "http://example.org/g1")
	edges := DetectEdges(quads)
	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgeClassEntityFrame, edges[0].Type)
	assert.True(t, edges[0].Complete())
	assert.Equal(t, model.ShortcutEntityFrame, edges[0].Shortcut())
}

func TestDetectEdges_SkipsIncompleteEdge(t *testing.T) {
	quads := []model.Quad{
		{Subject: model.NewIRI("e1"), Predicate: model.NewIRI(model.VitalType), Object: model.NewIRI(model.EdgeClassFrameFrame), Graph: model.NewIRI("g")},
		{Subject: model.NewIRI("e1"), Predicate: model.NewIRI(model.EdgeSource), Object: model.NewIRI("src"), Graph: model.NewIRI("g")},
	}
	assert.Empty(t, DetectEdges(quads))
}

func TestDetectEdges_IgnoresUnrecognizedVitalType(t *testing.T) {
	quads := []model.Quad{
		{Subject: model.NewIRI("e1"), Predicate: model.NewIRI(model.VitalType), Object: model.NewIRI("http://example.org/SomethingElse"), Graph: model.NewIRI("g")},
		{Subject: model.NewIRI("e1"), Predicate: model.NewIRI(model.EdgeSource), Object: model.NewIRI("src"), Graph: model.NewIRI("g")},
		{Subject: model.NewIRI("e1"), Predicate: model.NewIRI(model.EdgeDest), Object: model.NewIRI("dst"), Graph: model.NewIRI("g")},
	}
	assert.Empty(t, DetectEdges(quads))
}

func TestMaterializeFromQuads_NoEdgesIsNoop(t *testing.T) {
	idx := &fakeIndex{}
	m := New(idx)
	m.MaterializeFromQuads(context.Background(), "ds", nil, nil)
	assert.Equal(t, 0, idx.calls)
}

func TestMaterializeFromQuads_InsertEdgeEmitsInsertData(t *testing.T) {
	idx := &fakeIndex{}
	m := New(idx)
	insertQuads := entityFrameEdgeQuads("http://example.org/e1", "http://example.org/entity1", "http://example.org/frame1", "http://example.org/g1")
	m.MaterializeFromQuads(context.Background(), "ds", insertQuads, nil)
	require.Equal(t, 1, idx.calls)
	assert.Contains(t, idx.lastSPARQL, "INSERT DATA")
	assert.Contains(t, idx.lastSPARQL, "vg-direct:hasEntityFrame")
	assert.Contains(t, idx.lastSPARQL, "http://example.org/entity1")
}

func TestMaterializeFromQuads_DeletedGraphObjectEmitsCleanup(t *testing.T) {
	idx := &fakeIndex{}
	m := New(idx)
	deleteQuads := []model.Quad{
		{Subject: model.NewIRI("http://example.org/entity1"), Predicate: model.NewIRI(model.VitalType), Object: model.NewIRI("http://vital.ai/ontology/haley-ai-kg#KGEntity"), Graph: model.NewIRI("g")},
	}
	m.MaterializeFromQuads(context.Background(), "ds", nil, deleteQuads)
	require.Equal(t, 1, idx.calls)
	assert.Contains(t, idx.lastSPARQL, "DELETE {")
	assert.Contains(t, idx.lastSPARQL, "UNION")
	assert.Contains(t, idx.lastSPARQL, "http://example.org/entity1")
}

func TestMaterializeFromQuads_UpdateErrorIsSwallowed(t *testing.T) {
	idx := &fakeIndex{err: assert.AnError}
	m := New(idx)
	insertQuads := entityFrameEdgeQuads("http://example.org/e1", "http://example.org/entity1", "http://example.org/frame1", "http://example.org/g1")
	assert.NotPanics(t, func() {
		m.MaterializeFromQuads(context.Background(), "ds", insertQuads, nil)
	})
}
