package sourcetable

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the local/dev/test Store, following pkg/db.Store's
// sqlite3 + sqlx wiring but scoped to this control plane's schema.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// pending migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating source database directory: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening source database: %w", err)
	}

	if err := RunMigrations(db.DB, "sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running source database migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) NextBatch(ctx context.Context, cursorID int64, limit int) ([]Row, error) {
	var rows []Row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, platform, code, is_extracted, is_embedded
		FROM insta_content
		WHERE id > ? AND is_extracted = 0 AND is_downloaded = 1
		ORDER BY id
		LIMIT ?
	`, cursorID, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting next batch: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) MarkExtracted(ctx context.Context, ids []int64) error {
	return s.markBool(ctx, "is_extracted", ids)
}

func (s *SQLiteStore) MarkEmbedded(ctx context.Context, ids []int64) error {
	return s.markBool(ctx, "is_embedded", ids)
}

func (s *SQLiteStore) markBool(ctx context.Context, column string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`UPDATE insta_content SET %s = 1 WHERE id IN (?)`, column), ids)
	if err != nil {
		return fmt.Errorf("building mark query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("marking %s: %w", column, err)
	}
	return nil
}

func (s *SQLiteStore) LookupIDsByCode(ctx context.Context, codes []string) (map[string]int64, error) {
	if len(codes) == 0 {
		return map[string]int64{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, code FROM insta_content WHERE code IN (?)`, codes)
	if err != nil {
		return nil, fmt.Errorf("building lookup query: %w", err)
	}

	var rows []struct {
		ID   int64  `db:"id"`
		Code string `db:"code"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("looking up ids by code: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Code] = r.ID
	}
	return out, nil
}

func (s *SQLiteStore) InsertError(ctx context.Context, code, errText string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO extraction_errors (code, error_text) VALUES (?, ?)`, code, errText)
	if err != nil {
		return fmt.Errorf("inserting extraction error: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
