package sparqlupdate

import (
	"regexp"
	"strings"

	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

// ParsePrefixMap extracts a prefix->IRI map from raw PREFIX declaration
// text (as captured verbatim in model.Operation.Prefixes).
func ParsePrefixMap(prefixLines string) map[string]string {
	return parsePrefixes(prefixLines)
}

var reVarToken = regexp.MustCompile(`[?$](\w+)`)

// SubstituteBindings replaces every ?var / $var occurrence in template
// with the SPARQL ground-term wire form of its bound value. A variable
// with no entry in bindings is left untouched, which surfaces as a
// parse error downstream rather than silently dropping a triple.
func SubstituteBindings(template string, bindings map[string]model.Term) string {
	return reVarToken.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1:]
		term, ok := bindings[name]
		if !ok {
			return tok
		}
		return termToToken(term)
	})
}

func termToToken(t model.Term) string {
	switch t.Kind {
	case model.KindIRI:
		return "<" + t.Value + ">"
	case model.KindBlankNode:
		return "_:" + t.Value
	default:
		escaped := escapeLiteralForToken(t.Value)
		switch {
		case t.DatatypeID != "":
			return `"` + escaped + `"^^<` + t.DatatypeID + ">"
		case t.Lang != "":
			return `"` + escaped + `"@` + t.Lang
		default:
			return `"` + escaped + `"`
		}
	}
}

func escapeLiteralForToken(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(s)
}

// ResolveTemplateQuads parses an already variable-substituted DELETE/
// INSERT template into ground quads. A template may scope its triples
// with explicit GRAPH <uri> { ... } blocks (honored if present) or, for
// the common single-graph WITH <uri> form, consist of bare triples that
// all belong to defaultGraph.
func ResolveTemplateQuads(template string, prefixes map[string]string, defaultGraph string) ([]model.Quad, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return nil, nil
	}
	if reGraphBlock.MatchString(template) {
		return extractDataQuads(template, prefixes)
	}
	if defaultGraph == "" {
		return nil, vgerrors.New(vgerrors.Malformed, "template has no GRAPH block and no WITH <graph> was given")
	}
	graphTerm := model.NewIRI(defaultGraph)
	var quads []model.Quad
	for _, stmt := range splitStatements(template) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		tokens, err := tokenizeWhitespace(stmt)
		if err != nil {
			return nil, err
		}
		if len(tokens) != 3 {
			return nil, vgerrors.New(vgerrors.Malformed, "expected subject predicate object triple in template, got: "+stmt)
		}
		s, err := parseTermToken(tokens[0], prefixes, false)
		if err != nil {
			return nil, err
		}
		p, err := parseTermToken(tokens[1], prefixes, false)
		if err != nil {
			return nil, err
		}
		o, err := parseTermToken(tokens[2], prefixes, false)
		if err != nil {
			return nil, err
		}
		quads = append(quads, model.Quad{Subject: s, Predicate: p, Object: o, Graph: graphTerm})
	}
	return quads, nil
}
