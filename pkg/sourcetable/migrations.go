package sourcetable

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations applies any pending schema migrations, following
// pkg/db.RunMigrations's goose + embed.FS shape.
func RunMigrations(db *sql.DB, dialect string) error {
	goose.SetBaseFS(embedMigrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting goose dialect %q: %w", dialect, err)
	}
	return goose.Up(db, "migrations")
}
