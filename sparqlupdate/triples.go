package sparqlupdate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

var (
	reGraphBlock = regexp.MustCompile(`(?is)GRAPH\s*<([^>]+)>\s*\{(.*?)\}`)
	reLangTag    = regexp.MustCompile(`(?s)^"((?:[^"\\]|\\.)*)"@(\S+)$`)
	reTypedLit   = regexp.MustCompile(`(?s)^"((?:[^"\\]|\\.)*)"\^\^(.+)$`)
	rePlainLit   = regexp.MustCompile(`(?s)^"((?:[^"\\]|\\.)*)"$`)
)

// extractDataQuads parses the body of an INSERT DATA / DELETE DATA block
// into concrete quads. VitalGraph never writes to the RDF default graph,
// so every triple must appear inside a GRAPH <uri> { ... } block; triple
// statements found outside any GRAPH block are rejected.
func extractDataQuads(body string, prefixes map[string]string) ([]model.Quad, error) {
	blocks := reGraphBlock.FindAllStringSubmatch(body, -1)
	if blocks == nil {
		return nil, vgerrors.New(vgerrors.Malformed, "INSERT/DELETE DATA must scope triples inside a GRAPH <uri> { ... } block")
	}
	if rest := strings.TrimSpace(reGraphBlock.ReplaceAllString(body, "")); rest != "" {
		return nil, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("triples outside any GRAPH <uri> { ... } block: %.80s", rest))
	}

	var quads []model.Quad
	for _, block := range blocks {
		graphURI := block[1]
		graphTerm := model.NewIRI(graphURI)
		for _, stmt := range splitStatements(block[2]) {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			tokens, err := tokenizeWhitespace(stmt)
			if err != nil {
				return nil, err
			}
			if len(tokens) != 3 {
				return nil, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("expected subject predicate object triple, got %q", stmt))
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
	}
	return quads, nil
}

// splitStatements splits a block of "." terminated triple statements,
// respecting quoted strings and angle-bracketed IRIs so an embedded
// period (a literal's decimal point, a URL's path segment) is never
// mistaken for a statement terminator.
func splitStatements(block string) []string {
	var stmts []string
	var cur strings.Builder
	inQuote := false
	inIRI := false
	escaped := false
	for _, r := range block {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
			continue
		case r == '\\' && inQuote:
			cur.WriteRune(r)
			escaped = true
			continue
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
			continue
		case r == '<' && !inQuote:
			inIRI = true
			cur.WriteRune(r)
			continue
		case r == '>' && !inQuote:
			inIRI = false
			cur.WriteRune(r)
			continue
		case r == '.' && !inQuote && !inIRI:
			stmts = append(stmts, cur.String())
			cur.Reset()
			continue
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}

// tokenizeWhitespace splits a triple statement into its three
// whitespace-separated tokens, treating quoted strings, lang/datatype
// suffixes, and angle-bracketed IRIs as atomic.
func tokenizeWhitespace(stmt string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	inIRI := false
	escaped := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(stmt)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == '<' && !inQuote:
			inIRI = true
			cur.WriteRune(r)
		case r == '>' && !inQuote:
			inIRI = false
			cur.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n' || r == '\r') && !inQuote && !inIRI:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	if inQuote {
		return nil, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("unterminated quoted literal in %q", stmt))
	}
	return tokens, nil
}

// parseTermToken converts one token of a triple statement into a
// concrete model.Term. A ?var / $var token is always rejected;
// allowVariable only selects the error message: false reports it as
// unexpected in a ground-term block (INSERT DATA / DELETE DATA), true as
// a variable that has to be substituted before quad construction.
func parseTermToken(token string, prefixes map[string]string, allowVariable bool) (model.Term, error) {
	switch {
	case token == "a":
		return model.NewIRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"), nil
	case strings.HasPrefix(token, "?") || strings.HasPrefix(token, "$"):
		if !allowVariable {
			return model.Term{}, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("unexpected variable %q in ground-term block", token))
		}
		return model.Term{}, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("variable %q must be resolved before quad construction", token))
	case strings.HasPrefix(token, "<") && strings.HasSuffix(token, ">"):
		return model.NewIRI(token[1 : len(token)-1]), nil
	case strings.HasPrefix(token, "_:"):
		return model.NewBlankNode(token[2:]), nil
	case strings.HasPrefix(token, "\""):
		return parseLiteralToken(token)
	default:
		iri, ok := expandPrefixedName(token, prefixes)
		if !ok {
			return model.Term{}, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("unrecognized term token %q", token))
		}
		return model.NewIRI(iri), nil
	}
}

func parseLiteralToken(token string) (model.Term, error) {
	if m := reLangTag.FindStringSubmatch(token); m != nil {
		return model.NewLiteral(unescapeLiteral(m[1]), m[2]), nil
	}
	if m := reTypedLit.FindStringSubmatch(token); m != nil {
		datatype := m[2]
		if strings.HasPrefix(datatype, "<") && strings.HasSuffix(datatype, ">") {
			datatype = datatype[1 : len(datatype)-1]
		} else if expanded, ok := expandPrefixedName(datatype, nil); ok {
			datatype = expanded
		}
		return model.NewTypedLiteral(unescapeLiteral(m[1]), datatype), nil
	}
	if m := rePlainLit.FindStringSubmatch(token); m != nil {
		return model.NewLiteral(unescapeLiteral(m[1]), ""), nil
	}
	return model.Term{}, vgerrors.New(vgerrors.Malformed, fmt.Sprintf("malformed literal token %q", token))
}

func unescapeLiteral(s string) string {
	unquoted, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return s
	}
	return unquoted
}

// expandPrefixedName resolves a "prefix:local" token against the
// declared PREFIX map. The well-known rdf/xsd prefixes are always
// available even without an explicit declaration, matching what every
// SPARQL engine in practice assumes.
func expandPrefixedName(token string, prefixes map[string]string) (string, bool) {
	idx := strings.Index(token, ":")
	if idx < 0 {
		return "", false
	}
	prefix, local := token[:idx], token[idx+1:]
	if iri, ok := prefixes[prefix]; ok {
		return iri + local, true
	}
	if iri, ok := wellKnownPrefixes[prefix]; ok {
		return iri + local, true
	}
	return "", false
}

var wellKnownPrefixes = map[string]string{
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
	"owl":  "http://www.w3.org/2002/07/owl#",
}
