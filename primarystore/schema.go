package primarystore

import "fmt"

// spaceTableDDL returns the CREATE TABLE statements for one space's term
// and quad tables. The schema matches the relational primary store's
// original column layout exactly: a six-column (s, p, o, c, quad_uuid,
// dataset) composite key on the quad table and a (term_uuid, dataset)
// composite key on terms, so a future
// multi-dataset-per-space extension (e.g. staging vs primary) never
// requires a migration.
func spaceTableDDL(spaceID string) []string {
	prefix := tablePrefix(spaceID)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]sterm (
			term_uuid UUID NOT NULL,
			term_text TEXT NOT NULL,
			term_type CHAR(1) NOT NULL CHECK (term_type IN ('U', 'L', 'B')),
			lang VARCHAR(20),
			datatype_id TEXT,
			created_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			dataset VARCHAR(50) NOT NULL DEFAULT 'primary',
			PRIMARY KEY (term_uuid, dataset)
		)`, prefix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]srdf_quad (
			subject_uuid UUID NOT NULL,
			predicate_uuid UUID NOT NULL,
			object_uuid UUID NOT NULL,
			context_uuid UUID NOT NULL,
			quad_uuid UUID NOT NULL DEFAULT gen_random_uuid(),
			created_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			dataset VARCHAR(50) NOT NULL DEFAULT 'primary',
			PRIMARY KEY (subject_uuid, predicate_uuid, object_uuid, context_uuid, quad_uuid, dataset),
			FOREIGN KEY (subject_uuid, dataset) REFERENCES %[1]sterm(term_uuid, dataset) ON DELETE CASCADE,
			FOREIGN KEY (predicate_uuid, dataset) REFERENCES %[1]sterm(term_uuid, dataset) ON DELETE CASCADE,
			FOREIGN KEY (object_uuid, dataset) REFERENCES %[1]sterm(term_uuid, dataset) ON DELETE CASCADE,
			FOREIGN KEY (context_uuid, dataset) REFERENCES %[1]sterm(term_uuid, dataset) ON DELETE CASCADE
		)`, prefix),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]squad_context ON %[1]srdf_quad(context_uuid, dataset)`, prefix),
		// quad_uuid is an internal disambiguator carried in the primary
		// key; it is never exposed outside this package. Logical quad
		// identity — what StoreQuads dedupes against — is the
		// (s, p, o, c, dataset) tuple, enforced here so storing the same
		// quad twice is absorbed instead of creating a second row under a
		// fresh random quad_uuid.
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]squad_identity ON %[1]srdf_quad(subject_uuid, predicate_uuid, object_uuid, context_uuid, dataset)`, prefix),
	}
}

func dropSpaceTableDDL(spaceID string) []string {
	prefix := tablePrefix(spaceID)
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %srdf_quad CASCADE", prefix),
		fmt.Sprintf("DROP TABLE IF EXISTS %sterm CASCADE", prefix),
	}
}

func tablePrefix(spaceID string) string {
	return spaceID + "_"
}

const datasetPrimary = "primary"
