// Package sparqlupdate classifies and decomposes SPARQL UPDATE strings
// into model.Operation values the dual-write coordinator can apply to
// both the primary store and the index. No SPARQL grammar library
// appears anywhere in the reference dependency surface this module was
// built from, so the grammar subset needed here — INSERT/DELETE DATA,
// DELETE/INSERT/WHERE (Modify), and the graph lifecycle verbs — is
// hand-tokenized with regexp, the way the corpus reaches for regexp when
// a full parser would be a dependency with no idiomatic home.
package sparqlupdate

import (
	"fmt"
	"regexp"
	"strings"

	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

// Parser parses SPARQL UPDATE strings. It is stateless and safe for
// concurrent use.
type Parser struct{}

// New builds a Parser.
func New() *Parser {
	return &Parser{}
}

var (
	rePrefixDecl  = regexp.MustCompile(`(?i)PREFIX\s+(\w*):\s*<([^>]*)>\s*`)
	reInsertData  = regexp.MustCompile(`(?is)^\s*INSERT\s+DATA\s*\{(.*)\}\s*$`)
	reDeleteData  = regexp.MustCompile(`(?is)^\s*DELETE\s+DATA\s*\{(.*)\}\s*$`)
	reDeleteWhere = regexp.MustCompile(`(?is)^\s*DELETE\s+WHERE\s*\{`)
	reModify      = regexp.MustCompile(`(?is)^\s*(?:WITH\s+<([^>]+)>\s+)?DELETE\s*\{(.*?)\}\s*(?:INSERT\s*\{(.*?)\}\s*)?WHERE\s*\{(.*)\}\s*$`)
	reInsertWhere = regexp.MustCompile(`(?is)^\s*(?:WITH\s+<([^>]+)>\s+)?INSERT\s*\{(.*?)\}\s*WHERE\s*\{(.*)\}\s*$`)
	reDropGraph   = regexp.MustCompile(`(?is)^\s*DROP\s+(?:SILENT\s+)?GRAPH\s+<([^>]+)>\s*$`)
	reClearGraph  = regexp.MustCompile(`(?is)^\s*CLEAR\s+(?:SILENT\s+)?GRAPH\s+<([^>]+)>\s*$`)
	reCreateGraph = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:SILENT\s+)?GRAPH\s+<([^>]+)>\s*$`)
	reVariable    = regexp.MustCompile(`[?$](\w+)`)
)

// Parse classifies raw and extracts either concrete quads (INSERT DATA /
// DELETE DATA) or unresolved templates (Modify), or a target graph URI
// (the DROP/CLEAR/CREATE GRAPH verbs). The legacy behavior of reporting
// success on a parse failure is rejected outright: any input this parser
// cannot classify returns a Malformed error, never a zero-value success.
func (p *Parser) Parse(raw string) (model.Operation, error) {
	original := strings.TrimSpace(raw)
	if original == "" {
		return model.Operation{}, vgerrors.New(vgerrors.Malformed, "empty SPARQL update")
	}

	prefixLines := strings.Join(rePrefixDecl.FindAllString(original, -1), "")
	prefixes := parsePrefixes(original)
	body := strings.TrimSpace(rePrefixDecl.ReplaceAllString(original, ""))

	if reDeleteWhere.MatchString(body) {
		return model.Operation{}, vgerrors.New(vgerrors.Malformed, "DELETE WHERE shorthand is not supported; use an explicit DELETE { ... } WHERE { ... }")
	}

	if m := reInsertData.FindStringSubmatch(body); m != nil {
		quads, err := extractDataQuads(m[1], prefixes)
		if err != nil {
			return model.Operation{}, err
		}
		return model.Operation{Kind: model.OpInsertData, InsertQuads: quads, RawUpdate: original, Prefixes: prefixLines}, nil
	}

	if m := reDeleteData.FindStringSubmatch(body); m != nil {
		quads, err := extractDataQuads(m[1], prefixes)
		if err != nil {
			return model.Operation{}, err
		}
		return model.Operation{Kind: model.OpDeleteData, DeleteQuads: quads, RawUpdate: original, Prefixes: prefixLines}, nil
	}

	if m := reModify.FindStringSubmatch(body); m != nil {
		op := model.Operation{
			Kind:           model.OpModify,
			GraphURI:       m[1],
			DeleteTemplate: strings.TrimSpace(m[2]),
			InsertTemplate: strings.TrimSpace(m[3]),
			WhereClause:    strings.TrimSpace(m[4]),
			RawUpdate:      original,
			Prefixes:       prefixLines,
		}
		op.Variables = collectVariables(op.DeleteTemplate, op.InsertTemplate, op.WhereClause)
		return op, nil
	}

	if m := reInsertWhere.FindStringSubmatch(body); m != nil {
		op := model.Operation{
			Kind:           model.OpModify,
			GraphURI:       m[1],
			InsertTemplate: strings.TrimSpace(m[2]),
			WhereClause:    strings.TrimSpace(m[3]),
			RawUpdate:      original,
			Prefixes:       prefixLines,
		}
		op.Variables = collectVariables(op.InsertTemplate, op.WhereClause)
		return op, nil
	}

	if m := reDropGraph.FindStringSubmatch(body); m != nil {
		return model.Operation{Kind: model.OpDropGraph, GraphURI: m[1], RawUpdate: original}, nil
	}
	if m := reClearGraph.FindStringSubmatch(body); m != nil {
		return model.Operation{Kind: model.OpClearGraph, GraphURI: m[1], RawUpdate: original}, nil
	}
	if m := reCreateGraph.FindStringSubmatch(body); m != nil {
		return model.Operation{Kind: model.OpCreateGraph, GraphURI: m[1], RawUpdate: original}, nil
	}

	return model.Operation{}, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("unrecognized or unsupported SPARQL UPDATE form: %.80s", body))
}

func parsePrefixes(raw string) map[string]string {
	prefixes := make(map[string]string)
	for _, m := range rePrefixDecl.FindAllStringSubmatch(raw, -1) {
		prefixes[m[1]] = m[2]
	}
	return prefixes
}

func collectVariables(blocks ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, block := range blocks {
		for _, m := range reVariable.FindAllStringSubmatch(block, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}
