// Package edgemat materializes reified "edge object" triples into direct
// shortcut predicates in the index, bypassing the edge object for
// hierarchical query performance. Materialized triples exist only in the
// index — they are never written to the primary store.
package edgemat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"vitalgraph.io/model"
)

var log = logrus.WithField("component", "edgemat")

// indexUpdater is the subset of indexclient.Client the materializer needs,
// kept as a local interface so tests can fake it without an HTTP server.
type indexUpdater interface {
	Update(ctx context.Context, datasetName, sparql string) error
}

// Materializer detects complete edge objects in a quad write and keeps
// the index's direct shortcut predicates in sync with them. Failures are
// logged and swallowed: materialization is a query-performance
// optimization, never a correctness requirement, so it must never fail
// the enclosing dual-write operation.
type Materializer struct {
	index indexUpdater
}

// New builds a Materializer over an index client.
func New(index indexUpdater) *Materializer {
	return &Materializer{index: index}
}

// FilterMaterialized removes shortcut-predicate quads from a quad list
// bound for the primary store. Materialized triples must never reach
// PostgreSQL — they exist only in the index.
func FilterMaterialized(quads []model.Quad) ([]model.Quad, int) {
	if len(quads) == 0 {
		return quads, 0
	}
	filtered := make([]model.Quad, 0, len(quads))
	for _, q := range quads {
		if model.MaterializedPredicates[q.Predicate.Value] {
			continue
		}
		filtered = append(filtered, q)
	}
	return filtered, len(quads) - len(filtered)
}

// DetectEdges groups quads by subject and reports which ones carry a
// recognized vitaltype plus both edge endpoints. Incomplete edges (a
// vitaltype match with one endpoint missing, typically because the write
// split across multiple operations) are silently skipped; the edge
// becomes visible once the remaining endpoint arrives.
func DetectEdges(quads []model.Quad) []model.EdgeInfo {
	var edges []model.EdgeInfo
	for subjectURI, props := range model.SubjectGroups(quads) {
		var edgeType, source, dest, graph string
		for _, q := range props {
			switch q.Predicate.Value {
			case model.VitalType:
				edgeType = q.Object.Value
			case model.EdgeSource:
				source = q.Object.Value
			case model.EdgeDest:
				dest = q.Object.Value
			}
			if graph == "" {
				graph = q.GraphURI()
			}
		}
		if _, recognized := model.EdgeClassToShortcut[edgeType]; !recognized {
			continue
		}
		edge := model.EdgeInfo{EdgeURI: subjectURI, Type: edgeType, Source: source, Dest: dest, Graph: graph}
		if edge.Complete() {
			edges = append(edges, edge)
		} else {
			log.WithField("edge", subjectURI).Debug("incomplete edge object, skipping materialization")
		}
	}
	return edges
}

// deletedGraphObjects returns the set of subject URIs whose vitaltype
// triple is being deleted with a relevant KG class as its value — i.e.
// the node itself is being fully removed, not just one of its
// properties.
func deletedGraphObjects(deleteQuads []model.Quad) map[string]bool {
	deleted := make(map[string]bool)
	for _, q := range deleteQuads {
		if q.Predicate.Value == model.VitalType && model.RelevantNodeTypes[q.Object.Value] {
			deleted[q.Subject.Value] = true
		}
	}
	return deleted
}

// MaterializeFromQuads inspects an insert/delete quad pair for edge
// objects and deleted graph objects, and applies the resulting shortcut
// triple changes to the index. It never returns an error to the
// coordinator: failures are logged and treated as a best-effort miss.
func (m *Materializer) MaterializeFromQuads(ctx context.Context, datasetName string, insertQuads, deleteQuads []model.Quad) {
	insertEdges := DetectEdges(insertQuads)
	deleteEdges := DetectEdges(deleteQuads)
	deletedObjects := deletedGraphObjects(deleteQuads)

	if len(insertEdges) == 0 && len(deleteEdges) == 0 && len(deletedObjects) == 0 {
		return
	}

	sparql := buildMaterializationSPARQL(insertEdges, deleteEdges)
	cleanup := buildCleanupSPARQL(deletedObjects)

	combined := combineSPARQL(sparql, cleanup)
	if combined == "" {
		return
	}

	log.WithFields(logrus.Fields{
		"dataset":        datasetName,
		"inserts":        len(insertEdges),
		"edge_deletes":   len(deleteEdges),
		"object_deletes": len(deletedObjects),
	}).Debug("materializing direct edge properties")

	if err := m.index.Update(ctx, datasetName, combined); err != nil {
		log.WithError(err).WithField("dataset", datasetName).Warn("edge materialization update failed, leaving index shortcuts stale")
	}
}

const directPrefix = "PREFIX vg-direct: <http://vital.ai/vitalgraph/direct#>"

func buildMaterializationSPARQL(insertEdges, deleteEdges []model.EdgeInfo) string {
	var insertTriples, deleteTriples []string
	for _, e := range insertEdges {
		insertTriples = append(insertTriples, shortcutTriple(e))
	}
	for _, e := range deleteEdges {
		deleteTriples = append(deleteTriples, shortcutTriple(e))
	}
	if len(insertTriples) == 0 && len(deleteTriples) == 0 {
		return ""
	}

	var parts []string
	parts = append(parts, directPrefix, "")
	if len(deleteTriples) > 0 {
		parts = append(parts, "DELETE DATA {")
		parts = append(parts, deleteTriples...)
		parts = append(parts, "}")
	}
	if len(insertTriples) > 0 {
		if len(deleteTriples) > 0 {
			parts = append(parts, ";")
		}
		parts = append(parts, "INSERT DATA {")
		parts = append(parts, insertTriples...)
		parts = append(parts, "}")
	}
	return strings.Join(parts, "\n")
}

func shortcutTriple(e model.EdgeInfo) string {
	return fmt.Sprintf("    GRAPH <%s> { <%s> %s <%s> . }", e.Graph, e.Source, shortcutQName(e.Type), e.Dest)
}

func shortcutQName(edgeType string) string {
	switch edgeType {
	case model.EdgeClassEntityFrame:
		return "vg-direct:hasEntityFrame"
	case model.EdgeClassFrameFrame:
		return "vg-direct:hasFrame"
	case model.EdgeClassFrameSlot:
		return "vg-direct:hasSlot"
	default:
		return ""
	}
}

// buildCleanupSPARQL removes every materialized shortcut pointing at a
// deleted node, covering the case where a node is deleted as the object
// of an edge rather than the subject.
func buildCleanupSPARQL(deletedObjects map[string]bool) string {
	if len(deletedObjects) == 0 {
		return ""
	}
	var patterns []string
	for nodeURI := range deletedObjects {
		patterns = append(patterns,
			fmt.Sprintf("    GRAPH ?g { ?s vg-direct:hasEntityFrame <%s> . }", nodeURI),
			fmt.Sprintf("    GRAPH ?g { ?s vg-direct:hasFrame <%s> . }", nodeURI),
			fmt.Sprintf("    GRAPH ?g { ?s vg-direct:hasSlot <%s> . }", nodeURI),
		)
	}

	var sb strings.Builder
	sb.WriteString(directPrefix)
	sb.WriteString("\n\nDELETE {\n")
	sb.WriteString(strings.Join(patterns, "\n"))
	sb.WriteString("\n}\nWHERE {\n")
	unions := make([]string, len(patterns))
	for i, p := range patterns {
		unions[i] = "  { " + strings.TrimSpace(p) + " }"
	}
	sb.WriteString(strings.Join(unions, "\n    UNION\n"))
	sb.WriteString("\n}")
	return sb.String()
}

func combineSPARQL(a, b string) string {
	switch {
	case a != "" && b != "":
		return a + "\n;\n" + b
	case a != "":
		return a
	default:
		return b
	}
}
