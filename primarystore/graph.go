package primarystore

import (
	"context"
	"fmt"

	"vitalgraph.io/vgerrors"
)

// DropGraph deletes every quad whose context (graph) matches graphURI and
// sweeps any term left with no remaining quad reference, mirroring the
// index's DROP/CLEAR GRAPH semantics on the primary-store side.
func DropGraph(ctx context.Context, q querier, spaceID, graphURI string) error {
	prefix := tablePrefix(spaceID)

	var contextUUID string
	err := q.QueryRow(ctx, fmt.Sprintf(`SELECT term_uuid FROM %sterm WHERE term_text = $1 AND term_type = 'U' AND dataset = $2`, prefix), graphURI, datasetPrimary).Scan(&contextUUID)
	if err != nil {
		// Graph never had any quads recorded in this space; dropping it is
		// a no-op rather than an error, matching DROP GRAPH's idempotence.
		return nil
	}

	touchedSQL := fmt.Sprintf(`
		SELECT DISTINCT term_uuid FROM (
			SELECT subject_uuid AS term_uuid FROM %[1]srdf_quad WHERE context_uuid = $1 AND dataset = $2
			UNION
			SELECT predicate_uuid FROM %[1]srdf_quad WHERE context_uuid = $1 AND dataset = $2
			UNION
			SELECT object_uuid FROM %[1]srdf_quad WHERE context_uuid = $1 AND dataset = $2
		) touched`, prefix)
	rows, err := q.Query(ctx, touchedSQL, contextUUID, datasetPrimary)
	if err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("collecting touched terms before dropping graph %s", graphURI), err)
	}
	var touched []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return vgerrors.Wrap(vgerrors.PrimaryFailure, "scanning touched term row", err)
		}
		touched = append(touched, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "reading touched terms", err)
	}
	touched = append(touched, contextUUID)

	if _, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %srdf_quad WHERE context_uuid = $1 AND dataset = $2`, prefix), contextUUID, datasetPrimary); err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("deleting quads for graph %s", graphURI), err)
	}

	sweepSQL := fmt.Sprintf(`DELETE FROM %[1]sterm t WHERE t.dataset = $2 AND t.term_uuid = ANY($1::uuid[]) AND NOT EXISTS (
		SELECT 1 FROM %[1]srdf_quad q WHERE q.dataset = $2 AND (q.subject_uuid = t.term_uuid OR q.predicate_uuid = t.term_uuid OR q.object_uuid = t.term_uuid OR q.context_uuid = t.term_uuid)
	)`, prefix)
	if _, err := q.Exec(ctx, sweepSQL, touched, datasetPrimary); err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("sweeping orphaned terms after dropping graph %s", graphURI), err)
	}
	return nil
}
