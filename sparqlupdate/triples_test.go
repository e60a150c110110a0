package sparqlupdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements_IgnoresPeriodsInsideLiteralsAndIRIs(t *testing.T) {
	stmts := splitStatements(`<http://example.org/a> <http://example.org/p> "3.14" . <http://example.org/a> <http://example.org/q> <http://example.org/v1.0> .`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "3.14")
	assert.Contains(t, stmts[1], "v1.0")
}

func TestTokenizeWhitespace_TreatsQuotedLiteralAsOneToken(t *testing.T) {
	tokens, err := tokenizeWhitespace(`<http://example.org/a> <http://example.org/p> "hello world"`)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, `"hello world"`, tokens[2])
}

func TestTokenizeWhitespace_UnterminatedQuoteErrors(t *testing.T) {
	_, err := tokenizeWhitespace(`<http://example.org/a> <http://example.org/p> "unterminated`)
	assert.Error(t, err)
}

func TestParseTermToken_RdfTypeShorthand(t *testing.T) {
	term, err := parseTermToken("a", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "http://www.w3.org/1999/02/22-rdf-syntax-ns#type", term.Value)
}

func TestParseTermToken_ExpandsDeclaredPrefix(t *testing.T) {
	term, err := parseTermToken("foaf:name", map[string]string{"foaf": "http://xmlns.com/foaf/0.1/"}, false)
	require.NoError(t, err)
	assert.Equal(t, "http://xmlns.com/foaf/0.1/name", term.Value)
}

func TestParseTermToken_ExpandsWellKnownPrefixWithoutDeclaration(t *testing.T) {
	term, err := parseTermToken("xsd:integer", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", term.Value)
}

func TestParseTermToken_RejectsVariableInGroundTermBlock(t *testing.T) {
	_, err := parseTermToken("?s", nil, false)
	assert.Error(t, err)
}

func TestParseTermToken_BlankNode(t *testing.T) {
	term, err := parseTermToken("_:b1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "b1", term.Value)
}

func TestParseLiteralToken_LangTagged(t *testing.T) {
	term, err := parseLiteralToken(`"bonjour"@fr`)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", term.Value)
	assert.Equal(t, "fr", term.Lang)
}

func TestParseLiteralToken_EscapedQuoteInsideValue(t *testing.T) {
	term, err := parseLiteralToken(`"she said \"hi\""`)
	require.NoError(t, err)
	assert.Equal(t, `she said "hi"`, term.Value)
}

func TestExpandPrefixedName_UnknownPrefixFails(t *testing.T) {
	_, ok := expandPrefixedName("nope:thing", nil)
	assert.False(t, ok)
}
