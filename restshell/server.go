// Package restshell exposes the coordinator's dual-write operations and
// the admin registry's space/graph CRUD over HTTP, using the same
// echo-based API-key middleware pattern as the rest of this stack. With an
// OIDC provider configured, a request without a valid bearer token is
// rejected before it reaches any handler; otherwise, with an API key
// configured, a request without a valid X-API-Key is. With neither, the
// server runs unauthenticated, which is only appropriate behind a trusted
// network boundary.
package restshell

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"vitalgraph.io/coordinator"
	"vitalgraph.io/indexclient"
	"vitalgraph.io/model"
	"vitalgraph.io/security"
	"vitalgraph.io/vgerrors"
)

var log = logrus.WithField("component", "restshell")

// Server wires the coordinator, the admin registry, and a direct index
// client (for read-only SPARQL passthrough) into an echo HTTP surface.
// It does not own the underlying stores' lifecycle.
type Server struct {
	echo   *echo.Echo
	coord  *coordinator.Coordinator
	admin  AdminRegistry
	index  *indexclient.Client
	apiKey string
}

// AdminRegistry is the subset of adminstore.Store the server calls
// directly for space/graph metadata, distinct from the narrower
// adminGraphRegistrar interface the coordinator itself depends on.
type AdminRegistry interface {
	CreateSpace(ctx context.Context, space model.Space) error
	GetSpace(ctx context.Context, spaceID string) (model.Space, error)
	ListSpaces(ctx context.Context) ([]model.Space, error)
	DeleteSpace(ctx context.Context, spaceID string) error
	ListGraphs(ctx context.Context, spaceID string) ([]model.Graph, error)
}

// New builds a Server. apiKey empty disables X-API-Key authentication;
// if oidc is non-nil, requests instead authenticate via
// "Authorization: Bearer <id_token>" verified against that provider.
// If both are given, OIDC bearer-token auth is used and apiKey is
// ignored. index is used only for the read-only SPARQL passthrough
// endpoint; all writes go through coord so the dual-write ordering
// invariant is never bypassed.
func New(coord *coordinator.Coordinator, admin AdminRegistry, index *indexclient.Client, apiKey string, oidc *security.OIDCProvider) *Server {
	s := &Server{echo: echo.New(), coord: coord, admin: admin, index: index, apiKey: apiKey}
	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.Logger())
	switch {
	case oidc != nil:
		s.echo.Use(bearerTokenAuth(oidc))
	case apiKey != "":
		s.echo.Use(apiKeyAuth(apiKey))
	}
	s.routes()
	return s
}

// apiKeyAuth mirrors the X-API-Key middleware this stack's other HTTP
// surfaces use, exempting the health check so load balancers don't need
// a key.
func apiKeyAuth(validKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/$/ping" {
				return next(c)
			}
			key := c.Request().Header.Get("X-API-Key")
			if key == "" || key != validKey {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
			}
			return next(c)
		}
	}
}

// bearerTokenAuth verifies the "Authorization: Bearer <id_token>" header
// against an OIDC provider, the inbound-auth counterpart to the
// X-API-Key middleware for deployments fronted by an identity provider
// rather than a shared secret.
func bearerTokenAuth(provider *security.OIDCProvider) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/$/ping" {
				return next(c)
			}
			header := c.Request().Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			claims, err := provider.VerifyIDToken(c.Request().Context(), strings.TrimPrefix(header, prefix))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}
			c.Set("subject", claims.Subject)
			return next(c)
		}
	}
}

func (s *Server) routes() {
	s.echo.GET("/$/ping", s.handlePing)

	s.echo.POST("/spaces", s.handleCreateSpace)
	s.echo.GET("/spaces", s.handleListSpaces)
	s.echo.GET("/spaces/:id", s.handleGetSpace)
	s.echo.DELETE("/spaces/:id", s.handleDeleteSpace)
	s.echo.GET("/spaces/:id/graphs", s.handleListGraphs)

	s.echo.POST("/spaces/:id/update", s.handleSPARQLUpdate)
	s.echo.POST("/spaces/:id/sparql", s.handleSPARQLQuery)
	s.echo.POST("/spaces/:id/quads", s.handleAddQuads)
	s.echo.DELETE("/spaces/:id/quads", s.handleRemoveQuads)
	s.echo.GET("/spaces/:id/consistency", s.handleVerifyConsistency)
}

// Start blocks serving HTTP on address, in the style of the teacher's
// StartWithApiKey but returning the listen error instead of calling
// e.Logger.Fatal, so the caller controls process shutdown.
func (s *Server) Start(address string) error {
	log.WithField("address", address).Info("restshell listening")
	return s.echo.Start(address)
}

// Shutdown drains in-flight requests and stops accepting new ones,
// returning once ctx is done or the drain completes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handlePing(c echo.Context) error {
	return c.String(http.StatusOK, "OK!")
}

func writeError(c echo.Context, err error) error {
	var vgErr *vgerrors.Error
	status := http.StatusInternalServerError
	if errors.As(err, &vgErr) {
		switch vgErr.Kind {
		case vgerrors.Malformed:
			status = http.StatusBadRequest
		case vgerrors.Auth:
			status = http.StatusUnauthorized
		case vgerrors.Transient, vgerrors.IndexSyncFailure:
			status = http.StatusBadGateway
		case vgerrors.LockTimeout:
			status = http.StatusConflict
		}
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func spaceFromRequest(id string) model.Space {
	return model.Space{ID: id}
}

func (s *Server) handleCreateSpace(c echo.Context) error {
	var req struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Tenant      string `json:"tenant"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, vgerrors.Wrap(vgerrors.Malformed, "decoding request body", err))
	}
	if req.ID == "" {
		return writeError(c, vgerrors.New(vgerrors.Malformed, "id is required"))
	}
	space := model.Space{ID: req.ID, Name: req.Name, Description: req.Description, Tenant: req.Tenant}

	if err := s.admin.CreateSpace(c.Request().Context(), space); err != nil {
		return writeError(c, err)
	}
	if err := s.coord.CreateSpaceStorage(c.Request().Context(), space); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, space)
}

func (s *Server) handleListSpaces(c echo.Context) error {
	spaces, err := s.admin.ListSpaces(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, spaces)
}

func (s *Server) handleGetSpace(c echo.Context) error {
	space, err := s.admin.GetSpace(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, space)
}

func (s *Server) handleDeleteSpace(c echo.Context) error {
	id := c.Param("id")
	space, err := s.admin.GetSpace(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.coord.DeleteSpaceStorage(c.Request().Context(), space); err != nil {
		return writeError(c, err)
	}
	if err := s.admin.DeleteSpace(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListGraphs(c echo.Context) error {
	graphs, err := s.admin.ListGraphs(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, graphs)
}

func (s *Server) handleSPARQLUpdate(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return writeError(c, err)
	}
	space := spaceFromRequest(c.Param("id"))
	result, err := s.coord.ExecuteSPARQLUpdate(c.Request().Context(), space, string(body))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resultStatus(result), result)
}

// handleSPARQLQuery classifies the request body by its leading keyword
// and dispatches to the matching index read operation; VitalGraph never
// routes reads through the primary store, only through the index.
func (s *Server) handleSPARQLQuery(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return writeError(c, err)
	}
	dataset := spaceFromRequest(c.Param("id")).IndexDatasetName()
	query := string(body)
	kind := leadingKeyword(query)

	switch kind {
	case "SELECT":
		rows, err := s.index.Select(c.Request().Context(), dataset, query)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, rows)
	case "ASK":
		ok, err := s.index.Ask(c.Request().Context(), dataset, query)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"boolean": ok})
	case "CONSTRUCT", "DESCRIBE":
		ntriples, err := s.index.Construct(c.Request().Context(), dataset, query)
		if err != nil {
			return writeError(c, err)
		}
		return c.Blob(http.StatusOK, "application/n-triples", []byte(ntriples))
	default:
		return writeError(c, vgerrors.New(vgerrors.Malformed, "unrecognized query form, expected SELECT/ASK/CONSTRUCT/DESCRIBE"))
	}
}

func (s *Server) handleAddQuads(c echo.Context) error {
	var req struct {
		Quads []wireQuad `json:"quads"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, vgerrors.Wrap(vgerrors.Malformed, "decoding request body", err))
	}
	quads, err := toModelQuads(req.Quads)
	if err != nil {
		return writeError(c, err)
	}
	space := spaceFromRequest(c.Param("id"))
	result, err := s.coord.AddQuads(c.Request().Context(), space, quads)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resultStatus(result), result)
}

func (s *Server) handleRemoveQuads(c echo.Context) error {
	var req struct {
		Quads []wireQuad `json:"quads"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, vgerrors.Wrap(vgerrors.Malformed, "decoding request body", err))
	}
	quads, err := toModelQuads(req.Quads)
	if err != nil {
		return writeError(c, err)
	}
	space := spaceFromRequest(c.Param("id"))
	result, err := s.coord.RemoveQuads(c.Request().Context(), space, quads)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resultStatus(result), result)
}

func (s *Server) handleVerifyConsistency(c echo.Context) error {
	graphURI := c.QueryParam("graph")
	if graphURI == "" {
		return writeError(c, vgerrors.New(vgerrors.Malformed, "graph query parameter is required"))
	}
	space := spaceFromRequest(c.Param("id"))
	report, err := s.coord.VerifyConsistency(c.Request().Context(), space, graphURI)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func resultStatus(r model.Result) int {
	switch {
	case r.Failed():
		return http.StatusUnprocessableEntity
	case r.Diverged():
		return http.StatusMultiStatus
	default:
		return http.StatusOK
	}
}

func readBody(c echo.Context) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	body := c.Request().Body
	defer body.Close()
	chunk := make([]byte, 4096)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil, vgerrors.New(vgerrors.Malformed, "request body is empty")
	}
	return buf, nil
}

func leadingKeyword(query string) string {
	trimmed := strings.TrimSpace(query)
	for strings.HasPrefix(strings.ToUpper(trimmed), "PREFIX") {
		idx := strings.IndexByte(trimmed, '\n')
		if idx < 0 {
			break
		}
		trimmed = strings.TrimSpace(trimmed[idx+1:])
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// wireQuad is the JSON representation of model.Quad accepted on the
// quad-mutation endpoints.
type wireQuad struct {
	Subject   wireTerm `json:"subject"`
	Predicate wireTerm `json:"predicate"`
	Object    wireTerm `json:"object"`
	Graph     string   `json:"graph"`
}

type wireTerm struct {
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Lang     string `json:"lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

func toModelQuads(in []wireQuad) ([]model.Quad, error) {
	quads := make([]model.Quad, 0, len(in))
	for i, wq := range in {
		s, err := toModelTerm(wq.Subject)
		if err != nil {
			return nil, vgerrors.Wrap(vgerrors.Malformed, "quad["+strconv.Itoa(i)+"].subject", err)
		}
		p, err := toModelTerm(wq.Predicate)
		if err != nil {
			return nil, vgerrors.Wrap(vgerrors.Malformed, "quad["+strconv.Itoa(i)+"].predicate", err)
		}
		o, err := toModelTerm(wq.Object)
		if err != nil {
			return nil, vgerrors.Wrap(vgerrors.Malformed, "quad["+strconv.Itoa(i)+"].object", err)
		}
		if wq.Graph == "" {
			return nil, vgerrors.New(vgerrors.Malformed, "quad["+strconv.Itoa(i)+"].graph is required")
		}
		quads = append(quads, model.Quad{Subject: s, Predicate: p, Object: o, Graph: model.NewIRI(wq.Graph)})
	}
	return quads, nil
}

func toModelTerm(t wireTerm) (model.Term, error) {
	switch strings.ToLower(t.Kind) {
	case "iri", "uri", "":
		return model.NewIRI(t.Value), nil
	case "bnode", "blanknode":
		return model.NewBlankNode(t.Value), nil
	case "literal":
		if t.Datatype != "" {
			return model.NewTypedLiteral(t.Value, t.Datatype), nil
		}
		return model.NewLiteral(t.Value, t.Lang), nil
	default:
		return model.Term{}, vgerrors.New(vgerrors.Malformed, "unrecognized term kind: "+t.Kind)
	}
}
