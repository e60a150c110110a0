package restshell

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalgraph.io/model"
)

func TestLeadingKeyword_SkipsPrefixDeclarations(t *testing.T) {
	query := "PREFIX ex: <http://example.org/>\nPREFIX foo: <http://foo.org/>\nSELECT * WHERE { ?s ?p ?o }"
	assert.Equal(t, "SELECT", leadingKeyword(query))
}

func TestLeadingKeyword_NoPrefix(t *testing.T) {
	assert.Equal(t, "ASK", leadingKeyword("ASK { ?s ?p ?o }"))
}

func TestLeadingKeyword_Empty(t *testing.T) {
	assert.Equal(t, "", leadingKeyword("   "))
}

func TestToModelTerm_IRI(t *testing.T) {
	term, err := toModelTerm(wireTerm{Kind: "iri", Value: "http://example.org/a"})
	require.NoError(t, err)
	assert.Equal(t, model.KindIRI, term.Kind)
}

func TestToModelTerm_TypedLiteral(t *testing.T) {
	term, err := toModelTerm(wireTerm{Kind: "literal", Value: "1", Datatype: "http://www.w3.org/2001/XMLSchema#integer"})
	require.NoError(t, err)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", term.DatatypeID)
}

func TestToModelTerm_UnrecognizedKind(t *testing.T) {
	_, err := toModelTerm(wireTerm{Kind: "rdf-collection", Value: "x"})
	assert.Error(t, err)
}

func TestToModelQuads_RequiresGraph(t *testing.T) {
	_, err := toModelQuads([]wireQuad{{
		Subject:   wireTerm{Kind: "iri", Value: "http://example.org/s"},
		Predicate: wireTerm{Kind: "iri", Value: "http://example.org/p"},
		Object:    wireTerm{Kind: "iri", Value: "http://example.org/o"},
	}})
	assert.Error(t, err)
}

func TestToModelQuads_Succeeds(t *testing.T) {
	quads, err := toModelQuads([]wireQuad{{
		Subject:   wireTerm{Kind: "iri", Value: "http://example.org/s"},
		Predicate: wireTerm{Kind: "iri", Value: "http://example.org/p"},
		Object:    wireTerm{Kind: "literal", Value: "hi", Lang: "en"},
		Graph:     "http://example.org/g",
	}})
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, "en", quads[0].Object.Lang)
	assert.Equal(t, "http://example.org/g", quads[0].GraphURI())
}

func TestResultStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, resultStatus(model.OK("applied")))
	assert.Equal(t, http.StatusMultiStatus, resultStatus(model.Diverged("index sync failed")))
	assert.Equal(t, http.StatusUnprocessableEntity, resultStatus(model.Failed("primary rejected")))
}

func TestAPIKeyAuth_RejectsMissingKey(t *testing.T) {
	e := echo.New()
	e.Use(apiKeyAuth("secret"))
	e.GET("/spaces", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_AllowsPingWithoutKey(t *testing.T) {
	e := echo.New()
	e.Use(apiKeyAuth("secret"))
	e.GET("/$/ping", func(c echo.Context) error { return c.String(http.StatusOK, "OK!") })

	req := httptest.NewRequest(http.MethodGet, "/$/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerTokenAuth_RejectsMissingHeader(t *testing.T) {
	e := echo.New()
	e.Use(bearerTokenAuth(nil))
	e.GET("/spaces", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerTokenAuth_AllowsPingWithoutHeader(t *testing.T) {
	e := echo.New()
	e.Use(bearerTokenAuth(nil))
	e.GET("/$/ping", func(c echo.Context) error { return c.String(http.StatusOK, "OK!") })

	req := httptest.NewRequest(http.MethodGet, "/$/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_AllowsMatchingKey(t *testing.T) {
	e := echo.New()
	e.Use(apiKeyAuth("secret"))
	e.GET("/spaces", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
