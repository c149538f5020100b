// Package sourcetable implements the C5/C7 collaborator contract against
// the relational source table: cursor-ordered batch selection and the
// is_extracted/is_embedded marks, plus the append-only errors table.
// PostgresStore (production, lib/pq) and SQLiteStore (local/dev/test,
// mattn/go-sqlite3) both satisfy Store via sqlx, following the
// pkg/db.Store split between a production driver and a SQLite-backed one.
package sourcetable

import "context"

// Row is one source-table record consumed by the batch orchestrator.
type Row struct {
	ID          int64  `db:"id"`
	Platform    string `db:"platform"`
	Code        string `db:"code"`
	IsExtracted bool   `db:"is_extracted"`
	IsEmbedded  bool   `db:"is_embedded"`
}

// Store is the contract C5 and C7 need from the source table. Only the
// cursor/mark operations are exposed — the table's other columns are not
// this control plane's concern.
type Store interface {
	// NextBatch returns up to limit rows with id > cursorID and
	// is_extracted = false, ordered by id ascending, and whose video has
	// already been downloaded (spec.md's refined cursor predicate).
	NextBatch(ctx context.Context, cursorID int64, limit int) ([]Row, error)

	// MarkExtracted sets is_extracted = true for the given row IDs.
	// Idempotent: applying it twice to the same IDs is a no-op the
	// second time (P11).
	MarkExtracted(ctx context.Context, ids []int64) error

	// MarkEmbedded sets is_embedded = true for the given row IDs.
	MarkEmbedded(ctx context.Context, ids []int64) error

	// LookupIDsByCode resolves a set of codes to their source-row IDs,
	// for codes whose rows exist. Codes with no matching row are simply
	// absent from the result map.
	LookupIDsByCode(ctx context.Context, codes []string) (map[string]int64, error)

	// InsertError appends one record to the errors table.
	InsertError(ctx context.Context, code, errText string) error

	Close() error
}
