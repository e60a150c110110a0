// Package coordinator implements the dual-write path: every quad mutation
// commits to the primary store first (authoritative), then is applied to
// the index (best-effort), then is handed to the edge materializer
// (best-effort cache maintenance). The primary store is never rolled back
// because the index disagreed — a primary commit with a failed index
// update is a reportable divergence, not a failure.
package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vitalgraph.io/edgemat"
	"vitalgraph.io/indexclient"
	"vitalgraph.io/lockmanager"
	"vitalgraph.io/model"
	"vitalgraph.io/primarystore"
	"vitalgraph.io/sparqlupdate"
	"vitalgraph.io/vgconfig"
	"vitalgraph.io/vgerrors"
)

var log = logrus.WithField("component", "coordinator")

// adminGraphRegistrar is the subset of adminstore.Store the coordinator
// needs, kept local so coordinator tests can fake it without gorm.
type adminGraphRegistrar interface {
	EnsureGraph(ctx context.Context, spaceID, graphURI string) error
}

// Coordinator wires the primary store, the index, the edge materializer,
// and the admin graph registry into the dual-write operations.
type Coordinator struct {
	primary               *primarystore.Store
	index                 *indexclient.Client
	admin                 adminGraphRegistrar
	mat                   *edgemat.Materializer
	parser                *sparqlupdate.Parser
	locks                 *lockmanager.Manager
	convertFloatToDecimal bool
}

// New builds a Coordinator.
func New(primary *primarystore.Store, index *indexclient.Client, admin adminGraphRegistrar, locks *lockmanager.Manager) *Coordinator {
	return &Coordinator{
		primary: primary,
		index:   index,
		admin:   admin,
		mat:     edgemat.New(index),
		parser:  sparqlupdate.New(),
		locks:   locks,
	}
}

// ExecuteSPARQLUpdate parses raw and applies it through the dual-write
// path. A Modify operation (DELETE/INSERT/WHERE) is resolved against the
// index before being applied, exactly once; the resolved Operation is not
// currently retried on transient failure, matching the "never re-run
// WHERE on retry" invariant documented on model.Operation.
func (c *Coordinator) ExecuteSPARQLUpdate(ctx context.Context, space model.Space, rawUpdate string) (model.Result, error) {
	op, err := c.parser.Parse(rawUpdate)
	if err != nil {
		return model.Result{}, err
	}

	switch op.Kind {
	case model.OpModify:
		if err := c.resolveModify(ctx, space, &op); err != nil {
			return model.Result{}, err
		}
		return c.applyQuadOperation(ctx, space, op.InsertQuads, op.DeleteQuads, nil)
	case model.OpInsertData:
		return c.applyQuadOperation(ctx, space, op.InsertQuads, nil, nil)
	case model.OpDeleteData:
		return c.applyQuadOperation(ctx, space, nil, op.DeleteQuads, nil)
	case model.OpDropGraph, model.OpClearGraph:
		return c.dropOrClearGraph(ctx, space, op.GraphURI)
	case model.OpCreateGraph:
		if err := c.admin.EnsureGraph(ctx, space.ID, op.GraphURI); err != nil {
			return model.Result{}, err
		}
		return model.OK("graph created: " + op.GraphURI), nil
	default:
		return model.Result{}, vgerrors.New(vgerrors.Malformed, "unsupported operation kind: "+string(op.Kind))
	}
}

// resolveModify executes op.WhereClause as a SELECT against the index and
// substitutes each resulting binding row into DeleteTemplate/
// InsertTemplate, filling op.DeleteQuads/op.InsertQuads exactly once.
func (c *Coordinator) resolveModify(ctx context.Context, space model.Space, op *model.Operation) error {
	prefixes := sparqlupdate.ParsePrefixMap(op.Prefixes)

	selectSPARQL := op.Prefixes + "\nSELECT * WHERE {\n" + op.WhereClause + "\n}"
	rows, err := c.index.Select(ctx, space.IndexDatasetName(), selectSPARQL)
	if err != nil {
		return vgerrors.Wrap(vgerrors.Transient, "resolving WHERE clause against index", err)
	}

	var insertQuads, deleteQuads []model.Quad
	for _, row := range rows {
		bindings := make(map[string]model.Term, len(row))
		for name, v := range row {
			term, err := selectValueToTerm(v)
			if err != nil {
				return err
			}
			bindings[name] = term
		}

		if op.InsertTemplate != "" {
			substituted := sparqlupdate.SubstituteBindings(op.InsertTemplate, bindings)
			quads, err := sparqlupdate.ResolveTemplateQuads(substituted, prefixes, op.GraphURI)
			if err != nil {
				return err
			}
			insertQuads = append(insertQuads, quads...)
		}
		if op.DeleteTemplate != "" {
			substituted := sparqlupdate.SubstituteBindings(op.DeleteTemplate, bindings)
			quads, err := sparqlupdate.ResolveTemplateQuads(substituted, prefixes, op.GraphURI)
			if err != nil {
				return err
			}
			deleteQuads = append(deleteQuads, quads...)
		}
	}

	op.InsertQuads = insertQuads
	op.DeleteQuads = deleteQuads
	return nil
}

func selectValueToTerm(v indexclient.SelectValue) (model.Term, error) {
	switch v.Type {
	case "uri":
		return model.NewIRI(v.Value), nil
	case "bnode":
		return model.NewBlankNode(v.Value), nil
	case "literal", "typed-literal":
		if v.Datatype != "" {
			return model.NewTypedLiteral(v.Value, v.Datatype), nil
		}
		return model.NewLiteral(v.Value, v.Lang), nil
	default:
		return model.Term{}, vgerrors.New(vgerrors.Malformed, "unrecognized SELECT binding type: "+v.Type)
	}
}

// AddQuads stores quads to the primary store, then the index, then
// triggers edge materialization. Materialized shortcut quads are stripped
// from the primary write — they live only in the index.
func (c *Coordinator) AddQuads(ctx context.Context, space model.Space, quads []model.Quad) (model.Result, error) {
	return c.applyQuadOperation(ctx, space, quads, nil, nil)
}

// RemoveQuads deletes quads from the primary store, then the index, then
// runs cleanup materialization for any deleted graph objects.
func (c *Coordinator) RemoveQuads(ctx context.Context, space model.Space, quads []model.Quad) (model.Result, error) {
	return c.applyQuadOperation(ctx, space, nil, quads, nil)
}

// UpdateQuads removes deleteQuads and adds insertQuads as a single
// primary-store transaction (no orphan sweep between them, since most of
// what's deleted is immediately reinserted), then a single index update.
func (c *Coordinator) UpdateQuads(ctx context.Context, space model.Space, deleteQuads, insertQuads []model.Quad) (model.Result, error) {
	return c.applyQuadOperation(ctx, space, insertQuads, deleteQuads, nil)
}

// AddQuadsTx runs the primary-side half of AddQuads inside a
// caller-managed transaction: it neither commits nor rolls back tx, and
// it skips the index write entirely. The caller is responsible for
// committing tx and then applying the equivalent index-side update
// itself — this exposes the same primary-then-index ordering contract
// the coordinator otherwise enforces internally, for callers that need
// to fold a quad write into a larger transaction of their own.
func (c *Coordinator) AddQuadsTx(ctx context.Context, tx *primarystore.Tx, space model.Space, quads []model.Quad) error {
	return c.applyQuadOperationTx(ctx, tx, space, quads, nil)
}

// RemoveQuadsTx is AddQuadsTx's delete-side counterpart.
func (c *Coordinator) RemoveQuadsTx(ctx context.Context, tx *primarystore.Tx, space model.Space, quads []model.Quad) error {
	return c.applyQuadOperationTx(ctx, tx, space, nil, quads)
}

// applyQuadOperationTx performs the primary-side write inside an
// already-open, caller-owned transaction and returns without touching
// the index or the materializer — see AddQuadsTx.
func (c *Coordinator) applyQuadOperationTx(ctx context.Context, tx *primarystore.Tx, space model.Space, insertQuads, deleteQuads []model.Quad) error {
	insertQuads, _ = edgemat.FilterMaterialized(insertQuads)
	deleteQuads, _ = edgemat.FilterMaterialized(deleteQuads)

	for _, uri := range graphURIsOf(insertQuads) {
		if err := c.admin.EnsureGraph(ctx, space.ID, uri); err != nil {
			return vgerrors.Wrap(vgerrors.PrimaryFailure, "auto-registering graph "+uri, err)
		}
	}

	skipOrphanSweep := len(insertQuads) > 0 && len(deleteQuads) > 0
	if len(deleteQuads) > 0 {
		if err := primarystore.RemoveQuads(ctx, tx, space.ID, deleteQuads, primarystore.RemoveOptions{SkipOrphanSweep: skipOrphanSweep}); err != nil {
			return err
		}
	}
	if len(insertQuads) > 0 {
		if err := primarystore.StoreQuads(ctx, tx, space.ID, insertQuads); err != nil {
			return err
		}
	}
	return nil
}

// applyQuadOperation is the single dual-write choke point for
// coordinator-managed transactions: every public mutation that doesn't
// pass its own transaction funnels through here so the
// commit-then-sync-then-materialize ordering is enforced in exactly one
// place.
func (c *Coordinator) applyQuadOperation(ctx context.Context, space model.Space, insertQuads, deleteQuads []model.Quad, callerTx *primarystore.Tx) (model.Result, error) {
	if callerTx != nil {
		if err := c.applyQuadOperationTx(ctx, callerTx, space, insertQuads, deleteQuads); err != nil {
			return model.Result{}, err
		}
		return model.OK("applied within caller-managed transaction; index write deferred to caller"), nil
	}

	insertQuads, _ = edgemat.FilterMaterialized(insertQuads)
	deleteQuads, _ = edgemat.FilterMaterialized(deleteQuads)

	for _, uri := range graphURIsOf(insertQuads) {
		if err := c.admin.EnsureGraph(ctx, space.ID, uri); err != nil {
			return model.Result{}, vgerrors.Wrap(vgerrors.PrimaryFailure, "auto-registering graph "+uri, err)
		}
	}

	skipOrphanSweep := len(insertQuads) > 0 && len(deleteQuads) > 0
	err := c.primary.WithTx(ctx, func(ctx context.Context, tx *primarystore.Tx) error {
		if len(deleteQuads) > 0 {
			if err := primarystore.RemoveQuads(ctx, tx, space.ID, deleteQuads, primarystore.RemoveOptions{SkipOrphanSweep: skipOrphanSweep}); err != nil {
				return err
			}
		}
		if len(insertQuads) > 0 {
			if err := primarystore.StoreQuads(ctx, tx, space.ID, insertQuads); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Result{}, err
	}

	if len(insertQuads) == 0 && len(deleteQuads) == 0 {
		return model.OK("no-op: only materialized predicates in operation"), nil
	}

	correlationID := uuid.NewString()
	fusekiSuccess := true
	if err := c.syncIndex(ctx, space, insertQuads, deleteQuads); err != nil {
		fusekiSuccess = false
		operation := "update"
		switch {
		case len(deleteQuads) == 0:
			operation = "insert"
		case len(insertQuads) == 0:
			operation = "delete"
		}
		log.WithError(err).WithFields(logrus.Fields{
			"event":          "FUSEKI_SYNC_FAILURE",
			"correlation_id": correlationID,
			"space":          space.ID,
			"operation":      operation,
		}).Error("index update failed after primary commit; primary is authoritative and is not rolled back")
	}

	if fusekiSuccess {
		c.mat.MaterializeFromQuads(ctx, space.IndexDatasetName(), insertQuads, deleteQuads)
	}

	if !fusekiSuccess {
		return model.Diverged(fmt.Sprintf("primary committed, index sync failed (correlation_id=%s)", correlationID)), nil
	}
	return model.OK("applied"), nil
}

// syncIndex applies insertQuads/deleteQuads to the index. When both sides
// are non-empty it combines them into a single DELETE DATA ; INSERT DATA
// SPARQL UPDATE and submits it as one request, so the index is never
// observed with the old value gone and the new value not yet landed.
// Single-sided operations still go through the plain DeleteData/InsertData
// calls.
func (c *Coordinator) syncIndex(ctx context.Context, space model.Space, insertQuads, deleteQuads []model.Quad) error {
	dataset := space.IndexDatasetName()

	if len(insertQuads) > 0 && len(deleteQuads) > 0 {
		deleteSPARQL, err := indexclient.BuildDeleteData(deleteQuads)
		if err != nil {
			return err
		}
		insertSPARQL, err := indexclient.BuildInsertData(insertQuads, c.convertFloatToDecimal)
		if err != nil {
			return err
		}
		combined := deleteSPARQL + " ;\n" + insertSPARQL
		return c.index.Update(ctx, dataset, combined)
	}

	if len(deleteQuads) > 0 {
		return c.index.DeleteData(ctx, dataset, deleteQuads)
	}
	if len(insertQuads) > 0 {
		return c.index.InsertData(ctx, dataset, insertQuads, c.convertFloatToDecimal)
	}
	return nil
}

func (c *Coordinator) dropOrClearGraph(ctx context.Context, space model.Space, graphURI string) (model.Result, error) {
	sparql := fmt.Sprintf("DROP GRAPH <%s>", graphURI)
	if err := c.primary.WithTx(ctx, func(ctx context.Context, tx *primarystore.Tx) error {
		return primarystore.DropGraph(ctx, tx, space.ID, graphURI)
	}); err != nil {
		return model.Result{}, err
	}

	correlationID := uuid.NewString()
	if err := c.index.Update(ctx, space.IndexDatasetName(), sparql); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event":          "FUSEKI_SYNC_FAILURE",
			"correlation_id": correlationID,
			"space":          space.ID,
			"operation":      "drop_graph",
		}).Error("index graph drop failed after primary commit")
		return model.Diverged(fmt.Sprintf("primary graph drop committed, index sync failed (correlation_id=%s)", correlationID)), nil
	}
	return model.OK("graph dropped: " + graphURI), nil
}

func graphURIsOf(quads []model.Quad) []string {
	seen := make(map[string]bool)
	var uris []string
	for _, q := range quads {
		g := q.GraphURI()
		if g != "" && !seen[g] {
			seen[g] = true
			uris = append(uris, g)
		}
	}
	return uris
}

// VerifyConsistency compares the primary store's quad count against the
// index's for a graph, flagging divergence for operator alerting.
func (c *Coordinator) VerifyConsistency(ctx context.Context, space model.Space, graphURI string) (model.ConsistencyReport, error) {
	primaryCount, err := primarystore.CountQuads(ctx, c.primary, space.ID, graphURI)
	if err != nil {
		return model.ConsistencyReport{}, err
	}
	indexCount, err := c.index.Count(ctx, space.IndexDatasetName(), graphURI)
	if err != nil {
		return model.ConsistencyReport{}, err
	}
	delta := primaryCount - indexCount
	return model.ConsistencyReport{
		PrimaryCount: primaryCount,
		IndexCount:   indexCount,
		Consistent:   delta == 0,
		Delta:        delta,
	}, nil
}

// CreateSpaceStorage provisions a space's primary-store schema and index
// dataset. Primary-store schema creation happens first; if the index
// dataset then fails to create, the primary schema is rolled back so a
// failed CreateSpaceStorage never leaves an orphaned primary-only space
// behind — unlike the steady-state dual write, space creation has no
// "primary is authoritative, index may lag" escape hatch, since nothing
// has been written yet for the index to lag behind.
func (c *Coordinator) CreateSpaceStorage(ctx context.Context, space model.Space) error {
	if err := c.primary.CreateSpaceSchema(ctx, space.ID); err != nil {
		return err
	}
	if err := c.index.CreateDataset(ctx, space.IndexDatasetName()); err != nil {
		if dropErr := c.primary.DropSpaceSchema(ctx, space.ID); dropErr != nil {
			log.WithError(dropErr).WithField("space", space.ID).Error("rolling back primary-store schema after index dataset creation failure")
		}
		return vgerrors.Wrap(vgerrors.IndexSyncFailure, "creating index dataset for space "+space.ID, err)
	}
	return nil
}

// DeleteSpaceStorage tears down a space's index dataset and primary-store
// schema, index first. If the primary drop then fails, the primary schema
// is left in place without its index dataset; calling DeleteSpaceStorage
// again completes the teardown, since DeleteDataset treats a 404 as
// success and DropSpaceSchema uses DROP TABLE IF EXISTS.
func (c *Coordinator) DeleteSpaceStorage(ctx context.Context, space model.Space) error {
	if err := c.index.DeleteDataset(ctx, space.IndexDatasetName()); err != nil {
		return vgerrors.Wrap(vgerrors.IndexSyncFailure, "deleting index dataset for space "+space.ID, err)
	}
	if err := c.primary.DropSpaceSchema(ctx, space.ID); err != nil {
		return err
	}
	return nil
}

// DefaultLockTimeout is the lock-acquisition timeout AddQuadsLocked uses
// when the caller doesn't need a tighter budget.
var DefaultLockTimeout = vgconfig.DefaultLockTimeout

// AddQuadsLocked serializes AddQuads for a single entity URI across both
// this process and every other VitalGraph instance sharing the primary
// store, via the two-layer lockmanager.
func (c *Coordinator) AddQuadsLocked(ctx context.Context, space model.Space, entityURI string, quads []model.Quad) (model.Result, error) {
	var result model.Result
	err := c.locks.WithLock(ctx, entityURI, DefaultLockTimeout, func(ctx context.Context) error {
		r, err := c.AddQuads(ctx, space, quads)
		result = r
		return err
	})
	return result, err
}
