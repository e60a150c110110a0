package primarystore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

// StoreQuads batches the insert of distinct terms (those not already
// present) followed by the insert of every quad row. q may be *Store (run
// standalone, its own implicit transaction per statement) or *Tx (run as
// part of the caller's transaction); the coordinator always passes a *Tx
// so the insert is atomic with the rest of the primary-store write.
func StoreQuads(ctx context.Context, q querier, spaceID string, quads []model.Quad) error {
	if len(quads) == 0 {
		return nil
	}
	prefix := tablePrefix(spaceID)

	terms := distinctTerms(quads)
	uuids := make([]string, 0, len(terms))
	for id := range terms {
		uuids = append(uuids, id)
	}

	existing, err := existingTermUUIDs(ctx, q, prefix, uuids)
	if err != nil {
		return err
	}

	insertBatch := &pgx.Batch{}
	var queued int
	for id, t := range terms {
		if existing[id] {
			continue
		}
		insertBatch.Queue(
			fmt.Sprintf(`INSERT INTO %sterm (term_uuid, term_text, term_type, lang, datatype_id, dataset) VALUES ($1, $2, $3, $4, $5, $6)`, prefix),
			id, t.Value, string(t.Kind), nullableString(t.Lang), nullableString(t.DatatypeID), datasetPrimary,
		)
		queued++
	}
	if queued > 0 {
		br := q.SendBatch(ctx, insertBatch)
		for i := 0; i < queued; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("inserting terms for space %s", spaceID), err)
			}
		}
		if err := br.Close(); err != nil {
			return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("closing term insert batch for space %s", spaceID), err)
		}
	}

	// ON CONFLICT targets idx_<prefix>quad_identity (the logical s/p/o/c
	// dedup key), not the quad_uuid-inclusive primary key: quad_uuid is
	// randomly generated per row, so without this the same quad inserted
	// twice would silently create two rows instead of being absorbed.
	quadBatch := &pgx.Batch{}
	for _, quad := range quads {
		quadBatch.Queue(
			fmt.Sprintf(`INSERT INTO %srdf_quad (subject_uuid, predicate_uuid, object_uuid, context_uuid, dataset) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (subject_uuid, predicate_uuid, object_uuid, context_uuid, dataset) DO NOTHING`, prefix),
			quad.Subject.ID().String(), quad.Predicate.ID().String(), quad.Object.ID().String(), quad.Graph.ID().String(), datasetPrimary,
		)
	}
	br := q.SendBatch(ctx, quadBatch)
	for range quads {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("inserting quads for space %s", spaceID), err)
		}
	}
	if err := br.Close(); err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("closing quad insert batch for space %s", spaceID), err)
	}
	return nil
}

// RemoveOptions controls RemoveQuads' post-delete cleanup.
type RemoveOptions struct {
	// SkipOrphanSweep leaves now-unreferenced term rows in place, for
	// callers that are about to insert the same terms again (e.g. an
	// UPDATE's DELETE+INSERT pair) and don't want to pay for a
	// delete-then-immediate-reinsert.
	SkipOrphanSweep bool
}

// RemoveQuads resolves each quad's four term UUIDs by looking up the
// term's unwrapped value, falling back to fuzzy numeric prefix matching
// when an exact lookup misses (the index's SPARQL engine can serialize a
// float with less precision than was stored), deletes the matching quad
// rows, and — unless told to skip it — deletes any term left with no
// remaining quad reference.
func RemoveQuads(ctx context.Context, q querier, spaceID string, quads []model.Quad, opts RemoveOptions) error {
	if len(quads) == 0 {
		return nil
	}
	prefix := tablePrefix(spaceID)

	values := distinctTermValues(quads)
	uuidByValue, err := lookupTermUUIDsByValue(ctx, q, prefix, values)
	if err != nil {
		return err
	}

	missing := make([]string, 0)
	for _, v := range values {
		if _, ok := uuidByValue[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		if err := fuzzyResolveNumericTerms(ctx, q, prefix, missing, uuidByValue); err != nil {
			return err
		}
	}

	var stillMissing []string
	for _, v := range values {
		if _, ok := uuidByValue[v]; !ok {
			stillMissing = append(stillMissing, v)
		}
	}
	if len(stillMissing) > 0 {
		sample := stillMissing
		if len(sample) > 5 {
			sample = sample[:5]
		}
		return vgerrors.New(vgerrors.Malformed, fmt.Sprintf("remove_quads: %d terms unresolved for space %s, e.g. %v", len(stillMissing), spaceID, sample))
	}

	touched := make(map[string]bool)
	batch := &pgx.Batch{}
	for _, quad := range quads {
		s := uuidByValue[quad.Subject.Value]
		p := uuidByValue[quad.Predicate.Value]
		o := uuidByValue[quad.Object.Value]
		c := uuidByValue[quad.Graph.Value]
		touched[s] = true
		touched[p] = true
		touched[o] = true
		touched[c] = true
		batch.Queue(
			fmt.Sprintf(`DELETE FROM %srdf_quad WHERE subject_uuid = $1 AND predicate_uuid = $2 AND object_uuid = $3 AND context_uuid = $4 AND dataset = $5`, prefix),
			s, p, o, c, datasetPrimary,
		)
	}
	br := q.SendBatch(ctx, batch)
	for range quads {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("deleting quads for space %s", spaceID), err)
		}
	}
	if err := br.Close(); err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("closing quad delete batch for space %s", spaceID), err)
	}

	if opts.SkipOrphanSweep || len(touched) == 0 {
		return nil
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sweepSQL := fmt.Sprintf(`DELETE FROM %[1]sterm t WHERE t.dataset = $2 AND t.term_uuid = ANY($1::uuid[]) AND NOT EXISTS (
		SELECT 1 FROM %[1]srdf_quad q WHERE q.dataset = $2 AND (q.subject_uuid = t.term_uuid OR q.predicate_uuid = t.term_uuid OR q.object_uuid = t.term_uuid OR q.context_uuid = t.term_uuid)
	)`, prefix)
	if _, err := q.Exec(ctx, sweepSQL, ids, datasetPrimary); err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("sweeping orphaned terms for space %s", spaceID), err)
	}
	return nil
}

func distinctTerms(quads []model.Quad) map[string]model.Term {
	out := make(map[string]model.Term)
	for _, quad := range quads {
		for _, t := range [4]model.Term{quad.Subject, quad.Predicate, quad.Object, quad.Graph} {
			out[t.ID().String()] = t
		}
	}
	return out
}

func distinctTermValues(quads []model.Quad) []string {
	seen := make(map[string]bool)
	var out []string
	for _, quad := range quads {
		for _, t := range [4]model.Term{quad.Subject, quad.Predicate, quad.Object, quad.Graph} {
			if !seen[t.Value] {
				seen[t.Value] = true
				out = append(out, t.Value)
			}
		}
	}
	return out
}

func existingTermUUIDs(ctx context.Context, q querier, prefix string, uuids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(uuids))
	if len(uuids) == 0 {
		return existing, nil
	}
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT term_uuid FROM %sterm WHERE term_uuid = ANY($1::uuid[]) AND dataset = $2`, prefix), uuids, datasetPrimary)
	if err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "checking existing terms", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "scanning existing term row", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

func lookupTermUUIDsByValue(ctx context.Context, q querier, prefix string, values []string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	if len(values) == 0 {
		return result, nil
	}
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT term_text, term_uuid FROM %sterm WHERE term_text = ANY($1) AND dataset = $2`, prefix), values, datasetPrimary)
	if err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "looking up term UUIDs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var text, id string
		if err := rows.Scan(&text, &id); err != nil {
			return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "scanning term lookup row", err)
		}
		result[text] = id
	}
	return result, rows.Err()
}

// fuzzyResolveNumericTerms handles the index's tendency to serialize a
// stored float with less precision than was written (e.g. a stored
// "32785.67923076924" coming back as "32785.68"). For each missing value
// that parses as a number and contains a decimal point, it prefix-matches
// stored term text against the value minus its last character and
// accepts the first candidate within 1% relative tolerance. Never applied
// to a value that doesn't parse as a float.
func fuzzyResolveNumericTerms(ctx context.Context, q querier, prefix string, missing []string, resolved map[string]string) error {
	for _, value := range missing {
		target, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		if !strings.Contains(value, ".") {
			continue
		}
		pattern := value[:len(value)-1] + "%"
		rows, err := q.Query(ctx, fmt.Sprintf(`SELECT term_text, term_uuid FROM %sterm WHERE term_text LIKE $1 AND dataset = $2`, prefix), pattern, datasetPrimary)
		if err != nil {
			return vgerrors.Wrap(vgerrors.PrimaryFailure, "fuzzy-matching numeric term", err)
		}
		func() {
			defer rows.Close()
			for rows.Next() {
				var text, id string
				if err := rows.Scan(&text, &id); err != nil {
					continue
				}
				candidate, err := strconv.ParseFloat(text, 64)
				if err != nil {
					continue
				}
				denom := math.Max(math.Max(math.Abs(candidate), math.Abs(target)), 1)
				if math.Abs(candidate-target)/denom < 0.01 {
					resolved[value] = id
					return
				}
			}
		}()
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
