// Package indexclient implements the outbound HTTP surface to the SPARQL
// index: dataset administration, INSERT/DELETE DATA and arbitrary UPDATE
// submission, SELECT/CONSTRUCT/ASK, connection pooling, bearer/basic
// auth, and retry with jitter — grounded on the same net/http client
// patterns the RDF4J and GraphDB admin clients in the reference corpus
// use, generalized to the Fuseki-style endpoint surface.
package indexclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

var log = logrus.WithField("component", "indexclient")

// Config configures a Client.
type Config struct {
	BaseURL         string
	Username        string
	Password        string
	BearerAuth      *TokenManager // nil disables bearer auth in favor of basic auth
	ConnectionLimit int
	KeepAlive       time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

// Client is the index's HTTP client.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client with a connection-pooled transport sized per
// cfg.ConnectionLimit and a keepalive kept strictly shorter than a
// typical load balancer idle timeout to avoid serving from a socket the
// LB has already torn down.
func New(cfg Config) *Client {
	if cfg.ConnectionLimit <= 0 {
		cfg.ConnectionLimit = 20
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionLimit,
		MaxIdleConnsPerHost: cfg.ConnectionLimit,
		IdleConnTimeout:     cfg.KeepAlive,
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport, Timeout: 60 * time.Second},
	}
}

// retryableStatus reports whether an HTTP status code should be retried.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// do executes req with up to cfg.MaxRetries attempts, exponential
// backoff plus jitter via cenkalti/backoff, recomputing auth headers on
// every attempt so a freshly refreshed bearer token is used. A 401 forces
// a token refresh and is retried like the other retryable statuses,
// counted against the budget: the retry waits the normal backoff delay
// rather than going out immediately, and repeated 401s keep being retried
// until the budget is spent.
func (c *Client) do(ctx context.Context, method, url string, contentType string, body []byte) (*http.Response, error) {
	var attempt int
	var lastResp *http.Response

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5 // each delay is drawn within ±50% of the exponential interval; no fixed 0-0.5s jitter is added
	bo.MaxElapsedTime = 0
	withCtx := backoff.WithContext(bo, ctx)

	op := func() error {
		attempt++
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(vgerrors.Wrap(vgerrors.Malformed, "building index request", err))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if err := c.applyAuth(ctx, req, attempt > 1); err != nil {
			return backoff.Permanent(vgerrors.Wrap(vgerrors.Auth, "computing auth header", err))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt >= c.cfg.MaxRetries {
				return backoff.Permanent(vgerrors.Wrap(vgerrors.Transient, "index request exhausted retries", err))
			}
			return vgerrors.Wrap(vgerrors.Transient, "index request transport error", err)
		}
		lastResp = resp

		if resp.StatusCode == http.StatusUnauthorized {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if c.cfg.BearerAuth != nil {
				c.cfg.BearerAuth.ForceRefresh()
			}
			if attempt >= c.cfg.MaxRetries {
				return backoff.Permanent(vgerrors.New(vgerrors.Auth, "index returned 401 after retry budget exhausted"))
			}
			return vgerrors.New(vgerrors.Auth, "index returned 401")
		}
		if retryableStatus(resp.StatusCode) {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if attempt >= c.cfg.MaxRetries {
				return backoff.Permanent(vgerrors.New(vgerrors.Transient, fmt.Sprintf("index returned %d after retry budget exhausted", resp.StatusCode)))
			}
			return vgerrors.New(vgerrors.Transient, fmt.Sprintf("index returned %d", resp.StatusCode))
		}
		return nil
	}

	if err := backoff.Retry(op, withCtx); err != nil {
		return nil, err
	}
	return lastResp, nil
}

// applyAuth attaches either basic or bearer credentials. do sets
// forceRefresh on every retry attempt, whatever the previous failure was,
// so a just-refreshed token is used.
func (c *Client) applyAuth(ctx context.Context, req *http.Request, forceRefresh bool) error {
	if c.cfg.BearerAuth != nil {
		if forceRefresh {
			c.cfg.BearerAuth.ForceRefresh()
		}
		token, err := c.cfg.BearerAuth.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", token)
		return nil
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
	return nil
}

// CreateDataset creates the dataset for a space. A 409 ("already
// exists") is treated as success.
func (c *Client) CreateDataset(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/$/datasets?dbName=%s&dbType=tdb2", c.cfg.BaseURL, name)
	resp, err := c.do(ctx, http.MethodPost, url, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return nil
	}
	return unexpectedStatus("create dataset", resp)
}

// DeleteDataset deletes the dataset for a space. A 404 ("not found") is
// treated as success, making delete idempotent.
func (c *Client) DeleteDataset(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/$/datasets/%s", c.cfg.BaseURL, name)
	resp, err := c.do(ctx, http.MethodDelete, url, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return unexpectedStatus("delete dataset", resp)
}

// ListDatasets returns the currently registered dataset names.
func (c *Client) ListDatasets(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/$/datasets", c.cfg.BaseURL)
	resp, err := c.do(ctx, http.MethodGet, url, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("list datasets", resp)
	}
	var payload struct {
		Datasets []struct {
			Name string `json:"ds.name"`
		} `json:"datasets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, vgerrors.Wrap(vgerrors.Transient, "decoding dataset list", err)
	}
	names := make([]string, 0, len(payload.Datasets))
	for _, d := range payload.Datasets {
		names = append(names, strings.TrimPrefix(d.Name, "/"))
	}
	return names, nil
}

// EnsureDatasetsRegistered lists existing datasets and creates any
// admin-registered space's dataset that is missing, tolerating 409
// races one at a time — the startup reconciliation step.
func (c *Client) EnsureDatasetsRegistered(ctx context.Context, spaceIDs []string) error {
	existing, err := c.ListDatasets(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}
	for _, id := range spaceIDs {
		name := (model.Space{ID: id}).IndexDatasetName()
		if have[name] {
			continue
		}
		if err := c.CreateDataset(ctx, name); err != nil {
			return fmt.Errorf("ensuring dataset registered for space %s: %w", id, err)
		}
	}
	return nil
}

// Update submits an arbitrary SPARQL UPDATE string to the named dataset.
func (c *Client) Update(ctx context.Context, datasetName, sparql string) error {
	url := fmt.Sprintf("%s/%s/update", c.cfg.BaseURL, datasetName)
	resp, err := c.do(ctx, http.MethodPost, url, "application/sparql-update", []byte(sparql))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return unexpectedStatus("update", resp)
}

// InsertData submits an INSERT DATA built from quads grouped by graph.
func (c *Client) InsertData(ctx context.Context, datasetName string, quads []model.Quad, convertFloatToDecimal bool) error {
	sparql, err := BuildInsertData(quads, convertFloatToDecimal)
	if err != nil {
		return err
	}
	if sparql == "" {
		return nil
	}
	return c.Update(ctx, datasetName, sparql)
}

// DeleteData submits a DELETE DATA built from quads grouped by graph.
func (c *Client) DeleteData(ctx context.Context, datasetName string, quads []model.Quad) error {
	sparql, err := BuildDeleteData(quads)
	if err != nil {
		return err
	}
	if sparql == "" {
		return nil
	}
	return c.Update(ctx, datasetName, sparql)
}

// SelectRow is one binding row from a SPARQL SELECT result.
type SelectRow map[string]SelectValue

// SelectValue is one bound term in a SELECT result, in sparql-results+json shape.
type SelectValue struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Select runs a SPARQL SELECT query and returns its bindings.
func (c *Client) Select(ctx context.Context, datasetName, sparql string) ([]SelectRow, error) {
	url := fmt.Sprintf("%s/%s/sparql", c.cfg.BaseURL, datasetName)
	resp, err := c.sendQuery(ctx, url, sparql, "application/sparql-results+json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("select", resp)
	}
	var payload struct {
		Results struct {
			Bindings []map[string]SelectValue `json:"bindings"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, vgerrors.Wrap(vgerrors.Transient, "decoding select results", err)
	}
	rows := make([]SelectRow, 0, len(payload.Results.Bindings))
	for _, b := range payload.Results.Bindings {
		rows = append(rows, SelectRow(b))
	}
	return rows, nil
}

// Ask runs a SPARQL ASK query.
func (c *Client) Ask(ctx context.Context, datasetName, sparql string) (bool, error) {
	url := fmt.Sprintf("%s/%s/sparql", c.cfg.BaseURL, datasetName)
	resp, err := c.sendQuery(ctx, url, sparql, "application/sparql-results+json")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, unexpectedStatus("ask", resp)
	}
	var payload struct {
		Boolean bool `json:"boolean"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, vgerrors.Wrap(vgerrors.Transient, "decoding ask result", err)
	}
	return payload.Boolean, nil
}

// Construct runs a SPARQL CONSTRUCT query and returns the raw N-Triples body.
func (c *Client) Construct(ctx context.Context, datasetName, sparql string) (string, error) {
	url := fmt.Sprintf("%s/%s/sparql", c.cfg.BaseURL, datasetName)
	resp, err := c.sendQuery(ctx, url, sparql, "application/n-triples")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", unexpectedStatus("construct", resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", vgerrors.Wrap(vgerrors.Transient, "reading construct body", err)
	}
	return string(body), nil
}

// Count returns the number of quads in a dataset, optionally scoped to a graph.
func (c *Client) Count(ctx context.Context, datasetName string, graphURI string) (int64, error) {
	var sparql string
	if graphURI != "" {
		sparql = fmt.Sprintf("SELECT (COUNT(*) AS ?c) WHERE { GRAPH <%s> { ?s ?p ?o } }", graphURI)
	} else {
		sparql = "SELECT (COUNT(*) AS ?c) WHERE { GRAPH ?g { ?s ?p ?o } }"
	}
	rows, err := c.Select(ctx, datasetName, sparql)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	v, ok := rows[0]["c"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, vgerrors.Wrap(vgerrors.Transient, "parsing count result", err)
	}
	return n, nil
}

// sendQuery retries a SPARQL query POST, building a brand new *http.Request
// on every attempt — query bodies are small strings, and reusing one
// request object across retries would resend an already-drained body on
// the second and later attempts, silently turning every retry into an
// empty-bodied query.
func (c *Client) sendQuery(ctx context.Context, url, sparql, accept string) (*http.Response, error) {
	attempt := 0
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0
	withCtx := backoff.WithContext(bo, ctx)

	var lastResp *http.Response
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(sparql))
		if err != nil {
			return backoff.Permanent(vgerrors.Wrap(vgerrors.Malformed, "building query request", err))
		}
		req.Header.Set("Content-Type", "application/sparql-query")
		req.Header.Set("Accept", accept)
		if err := c.applyAuth(ctx, req, attempt > 1); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if attempt >= c.cfg.MaxRetries {
				return backoff.Permanent(vgerrors.Wrap(vgerrors.Transient, "query exhausted retries", err))
			}
			return vgerrors.Wrap(vgerrors.Transient, "query transport error", err)
		}
		lastResp = resp
		if resp.StatusCode == http.StatusUnauthorized && c.cfg.BearerAuth != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.cfg.BearerAuth.ForceRefresh()
			if attempt >= c.cfg.MaxRetries {
				return backoff.Permanent(vgerrors.New(vgerrors.Auth, "query got 401 after retry budget exhausted"))
			}
			return vgerrors.New(vgerrors.Auth, "query got 401")
		}
		if retryableStatus(resp.StatusCode) {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if attempt >= c.cfg.MaxRetries {
				return backoff.Permanent(vgerrors.New(vgerrors.Transient, "query exhausted retries on retryable status"))
			}
			return vgerrors.New(vgerrors.Transient, "query retryable status")
		}
		return nil
	}
	if err := backoff.Retry(op, withCtx); err != nil {
		return nil, err
	}
	return lastResp, nil
}

func unexpectedStatus(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return vgerrors.New(vgerrors.Transient, fmt.Sprintf("index %s: unexpected status %d: %s", op, resp.StatusCode, string(body)))
}
