package sourcetable

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore is the production Store backed by lib/pq.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens dsn, runs pending migrations, and returns a ready
// Store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to source database: %w", err)
	}

	if err := RunMigrations(db.DB, "postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running source database migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) NextBatch(ctx context.Context, cursorID int64, limit int) ([]Row, error) {
	var rows []Row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, platform, code, is_extracted, is_embedded
		FROM insta_content
		WHERE id > $1 AND NOT is_extracted AND is_downloaded
		ORDER BY id
		LIMIT $2
	`, cursorID, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting next batch: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) MarkExtracted(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE insta_content SET is_extracted = true WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("marking extracted: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkEmbedded(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE insta_content SET is_embedded = true WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("marking embedded: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupIDsByCode(ctx context.Context, codes []string) (map[string]int64, error) {
	if len(codes) == 0 {
		return map[string]int64{}, nil
	}
	var rows []struct {
		ID   int64  `db:"id"`
		Code string `db:"code"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT id, code FROM insta_content WHERE code = ANY($1)`, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("looking up ids by code: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Code] = r.ID
	}
	return out, nil
}

func (s *PostgresStore) InsertError(ctx context.Context, code, errText string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO extraction_errors (code, error_text) VALUES ($1, $2)`, code, errText)
	if err != nil {
		return fmt.Errorf("inserting extraction error: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
