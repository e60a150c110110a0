package primarystore

import (
	"context"
	"fmt"

	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

// Page is a generic paginated string result.
type Page struct {
	Items      []string
	TotalCount int64
}

// GetUniqueSubjects returns the sorted, paginated set of distinct subject
// URIs within a graph.
func GetUniqueSubjects(ctx context.Context, q querier, spaceID, graphURI string, limit, offset int) (Page, error) {
	return uniqueTermRole(ctx, q, spaceID, graphURI, "subject_uuid", limit, offset)
}

// GetUniquePredicates returns the sorted, paginated set of distinct
// predicate URIs within a graph.
func GetUniquePredicates(ctx context.Context, q querier, spaceID, graphURI string, limit, offset int) (Page, error) {
	return uniqueTermRole(ctx, q, spaceID, graphURI, "predicate_uuid", limit, offset)
}

func uniqueTermRole(ctx context.Context, q querier, spaceID, graphURI, role string, limit, offset int) (Page, error) {
	prefix := tablePrefix(spaceID)
	countSQL := fmt.Sprintf(`
		SELECT COUNT(DISTINCT r.term_text)
		FROM %[1]srdf_quad quad
		JOIN %[1]sterm r ON quad.%[2]s = r.term_uuid AND r.dataset = quad.dataset
		JOIN %[1]sterm c ON quad.context_uuid = c.term_uuid AND c.dataset = quad.dataset
		WHERE c.term_text = $1 AND quad.dataset = $2`, prefix, role)
	var total int64
	if err := q.QueryRow(ctx, countSQL, graphURI, datasetPrimary).Scan(&total); err != nil {
		return Page{}, vgerrors.Wrap(vgerrors.PrimaryFailure, "counting unique "+role, err)
	}

	listSQL := fmt.Sprintf(`
		SELECT DISTINCT r.term_text
		FROM %[1]srdf_quad quad
		JOIN %[1]sterm r ON quad.%[2]s = r.term_uuid AND r.dataset = quad.dataset
		JOIN %[1]sterm c ON quad.context_uuid = c.term_uuid AND c.dataset = quad.dataset
		WHERE c.term_text = $1 AND quad.dataset = $2
		ORDER BY r.term_text
		LIMIT $3 OFFSET $4`, prefix, role)
	rows, err := q.Query(ctx, listSQL, graphURI, datasetPrimary, limit, offset)
	if err != nil {
		return Page{}, vgerrors.Wrap(vgerrors.PrimaryFailure, "listing unique "+role, err)
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return Page{}, vgerrors.Wrap(vgerrors.PrimaryFailure, "scanning unique "+role, err)
		}
		items = append(items, v)
	}
	return Page{Items: items, TotalCount: total}, rows.Err()
}

// CountQuads counts quads in a space, optionally scoped to one graph.
func CountQuads(ctx context.Context, q querier, spaceID, graphURI string) (int64, error) {
	prefix := tablePrefix(spaceID)
	var count int64
	var err error
	if graphURI == "" {
		err = q.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %srdf_quad WHERE dataset = $1`, prefix), datasetPrimary).Scan(&count)
	} else {
		err = q.QueryRow(ctx, fmt.Sprintf(`
			SELECT COUNT(*) FROM %[1]srdf_quad quad
			JOIN %[1]sterm c ON quad.context_uuid = c.term_uuid AND c.dataset = quad.dataset
			WHERE c.term_text = $1 AND quad.dataset = $2`, prefix), graphURI, datasetPrimary).Scan(&count)
	}
	if err != nil {
		return 0, vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("counting quads for space %s", spaceID), err)
	}
	return count, nil
}

// GraphStats summarizes one graph within a space.
type GraphStats struct {
	GraphURI         string
	QuadCount        int64
	UniqueSubjects   int64
	UniquePredicates int64
}

// SpaceStats summarizes the whole space.
type SpaceStats struct {
	TotalQuadCount int64
	Graphs         []GraphStats
}

// GetSpaceStats aggregates per-graph counts for a space.
func GetSpaceStats(ctx context.Context, q querier, spaceID string) (SpaceStats, error) {
	prefix := tablePrefix(spaceID)
	total, err := CountQuads(ctx, q, spaceID, "")
	if err != nil {
		return SpaceStats{}, err
	}

	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT c.term_text,
		       COUNT(*) AS quad_count,
		       COUNT(DISTINCT quad.subject_uuid) AS unique_subjects,
		       COUNT(DISTINCT quad.predicate_uuid) AS unique_predicates
		FROM %[1]srdf_quad quad
		JOIN %[1]sterm c ON quad.context_uuid = c.term_uuid AND c.dataset = quad.dataset
		WHERE quad.dataset = $1
		GROUP BY c.term_text
		ORDER BY c.term_text`, prefix), datasetPrimary)
	if err != nil {
		return SpaceStats{}, vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("aggregating space stats for %s", spaceID), err)
	}
	defer rows.Close()

	var graphs []GraphStats
	for rows.Next() {
		var g GraphStats
		if err := rows.Scan(&g.GraphURI, &g.QuadCount, &g.UniqueSubjects, &g.UniquePredicates); err != nil {
			return SpaceStats{}, vgerrors.Wrap(vgerrors.PrimaryFailure, "scanning space stats row", err)
		}
		graphs = append(graphs, g)
	}
	return SpaceStats{TotalQuadCount: total, Graphs: graphs}, rows.Err()
}

// GetDataQuads returns a page of fully resolved quads from the primary
// store, optionally scoped to one graph.
func GetDataQuads(ctx context.Context, q querier, spaceID string, limit, offset int, graphURI string) ([]model.Quad, error) {
	prefix := tablePrefix(spaceID)
	args := []any{datasetPrimary}
	where := "quad.dataset = $1"
	if graphURI != "" {
		where += " AND c.term_text = $2"
		args = append(args, graphURI)
	}
	args = append(args, limit, offset)
	limitIdx := len(args) - 1
	offsetIdx := len(args)

	sql := fmt.Sprintf(`
		SELECT s.term_text, s.term_type, s.lang, s.datatype_id,
		       p.term_text, p.term_type, p.lang, p.datatype_id,
		       o.term_text, o.term_type, o.lang, o.datatype_id,
		       c.term_text, c.term_type, c.lang, c.datatype_id
		FROM %[1]srdf_quad quad
		JOIN %[1]sterm s ON quad.subject_uuid = s.term_uuid AND s.dataset = quad.dataset
		JOIN %[1]sterm p ON quad.predicate_uuid = p.term_uuid AND p.dataset = quad.dataset
		JOIN %[1]sterm o ON quad.object_uuid = o.term_uuid AND o.dataset = quad.dataset
		JOIN %[1]sterm c ON quad.context_uuid = c.term_uuid AND c.dataset = quad.dataset
		WHERE %[2]s
		ORDER BY quad.created_time
		LIMIT $%[3]d OFFSET $%[4]d`, prefix, where, limitIdx, offsetIdx)

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("reading data quads for space %s", spaceID), err)
	}
	defer rows.Close()

	var out []model.Quad
	for rows.Next() {
		var sv, sty, sl, sdt, pv, pty, pl, pdt, ov, oty, ol, odt, cv, cty, cl, cdt *string
		if err := rows.Scan(&sv, &sty, &sl, &sdt, &pv, &pty, &pl, &pdt, &ov, &oty, &ol, &odt, &cv, &cty, &cl, &cdt); err != nil {
			return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "scanning data quad row", err)
		}
		out = append(out, model.Quad{
			Subject:   termFromColumns(sv, sty, sl, sdt),
			Predicate: termFromColumns(pv, pty, pl, pdt),
			Object:    termFromColumns(ov, oty, ol, odt),
			Graph:     termFromColumns(cv, cty, cl, cdt),
		})
	}
	return out, rows.Err()
}

func termFromColumns(value, kind, lang, datatypeID *string) model.Term {
	t := model.Term{}
	if value != nil {
		t.Value = *value
	}
	if kind != nil && len(*kind) > 0 {
		t.Kind = model.TermKind((*kind)[0])
	}
	if lang != nil {
		t.Lang = *lang
	}
	if datatypeID != nil {
		t.DatatypeID = *datatypeID
	}
	return t
}
