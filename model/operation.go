package model

// OperationKind classifies a parsed SPARQL UPDATE.
type OperationKind string

const (
	OpInsertData OperationKind = "insert_data"
	OpDeleteData OperationKind = "delete_data"
	OpModify     OperationKind = "modify" // combined DELETE/INSERT with WHERE
	OpDropGraph  OperationKind = "drop_graph"
	OpClearGraph OperationKind = "clear_graph"
	OpCreateGraph OperationKind = "create_graph"
)

// Operation is the typed output of the update parser: a classified
// SPARQL UPDATE with concrete insert/delete quad lists ready for
// dual-write. DeleteQuads is frozen at parse time — a coordinator retry
// must reuse the same Operation rather than re-resolving WHERE patterns.
type Operation struct {
	Kind        OperationKind
	InsertQuads []Quad
	DeleteQuads []Quad
	GraphURI    string // populated for DropGraph / ClearGraph / CreateGraph
	RawUpdate   string // the original SPARQL text, for re-submission to the index

	// Modify-only: the parser leaves these populated and InsertQuads /
	// DeleteQuads empty; the coordinator resolves WhereClause against the
	// index into concrete bindings, substitutes them into DeleteTemplate
	// and InsertTemplate, and fills InsertQuads / DeleteQuads exactly
	// once. A retry must reuse the resolved Operation rather than
	// re-running WhereClause, so a retried write never observes a
	// different answer than the one the caller was told succeeded.
	DeleteTemplate string
	InsertTemplate string
	WhereClause    string
	Variables      []string

	// Prefixes carries the original PREFIX declarations verbatim so the
	// coordinator can prepend them when it re-submits WhereClause as a
	// standalone SELECT against the index.
	Prefixes string
}

// GraphURIs returns the set of distinct graph URIs referenced by the
// operation's insert quads, for coordinator auto-registration.
func (op Operation) GraphURIs() []string {
	seen := make(map[string]bool)
	var uris []string
	for _, q := range op.InsertQuads {
		g := q.GraphURI()
		if g != "" && !seen[g] {
			seen[g] = true
			uris = append(uris, g)
		}
	}
	return uris
}
