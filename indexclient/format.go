package indexclient

import (
	"fmt"
	"strconv"
	"strings"

	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

// FormatTerm renders a term in SPARQL wire form: IRIs as <...>, literals
// backslash-escaped and quoted with optional @lang or ^^<datatype>, and
// blank nodes as _:id. convertFloatToDecimal promotes an xsd:double /
// xsd:float datatype to xsd:decimal on the way out, to avoid IEEE-754
// rounding artifacts in the index; it never applies to non-float terms.
func FormatTerm(t model.Term, convertFloatToDecimal bool) string {
	switch t.Kind {
	case model.KindIRI:
		return "<" + t.Value + ">"
	case model.KindBlankNode:
		return "_:" + t.Value
	case model.KindLiteral:
		lit := `"` + escapeLiteral(t.Value) + `"`
		if t.Lang != "" {
			return lit + "@" + t.Lang
		}
		if t.DatatypeID != "" {
			dt := t.DatatypeID
			if convertFloatToDecimal && isFloatDatatype(dt) {
				dt = "http://www.w3.org/2001/XMLSchema#decimal"
			}
			return lit + "^^<" + dt + ">"
		}
		return lit
	default:
		return `"` + escapeLiteral(t.Value) + `"`
	}
}

func isFloatDatatype(dt string) bool {
	return strings.HasSuffix(dt, "#float") || strings.HasSuffix(dt, "#double")
}

// escapeLiteral applies the SPARQL string escapes: backslash, double
// quote, newline, carriage return, and tab.
func escapeLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BuildInsertData groups quads by graph and renders a single INSERT DATA
// SPARQL string with one GRAPH <uri> { ... } block per distinct context.
func BuildInsertData(quads []model.Quad, convertFloatToDecimal bool) (string, error) {
	body, err := renderGraphBlocks(quads, convertFloatToDecimal)
	if err != nil {
		return "", err
	}
	if body == "" {
		return "", nil
	}
	return "INSERT DATA { " + body + " }", nil
}

// BuildDeleteData is the DELETE DATA analogue of BuildInsertData.
func BuildDeleteData(quads []model.Quad) (string, error) {
	body, err := renderGraphBlocks(quads, false)
	if err != nil {
		return "", err
	}
	if body == "" {
		return "", nil
	}
	return "DELETE DATA { " + body + " }", nil
}

func renderGraphBlocks(quads []model.Quad, convertFloatToDecimal bool) (string, error) {
	if len(quads) == 0 {
		return "", nil
	}
	groups := model.GroupByGraph(quads)
	var blocks []string
	for graphURI, gq := range groups {
		if graphURI == "" {
			return "", vgerrors.New(vgerrors.Malformed, "quad missing graph context")
		}
		var triples []string
		for _, q := range gq {
			triples = append(triples, fmt.Sprintf("%s %s %s .",
				FormatTerm(q.Subject, convertFloatToDecimal),
				FormatTerm(q.Predicate, convertFloatToDecimal),
				FormatTerm(q.Object, convertFloatToDecimal)))
		}
		blocks = append(blocks, fmt.Sprintf("GRAPH <%s> { %s }", graphURI, strings.Join(triples, " ")))
	}
	return strings.Join(blocks, " "), nil
}

// ParseSelectNumber extracts a float64 from a SELECT binding value,
// returning ok=false for non-numeric values.
func ParseSelectNumber(v SelectValue) (float64, bool) {
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
