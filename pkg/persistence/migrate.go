package persistence

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending migration in pkg/persistence/migrations to
// db, creating the sessions/story_executions/checkpoints tables described
// in SPEC_FULL.md §6.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set migration dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to apply migrations")
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration.
func MigrateDown(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set migration dialect")
	}
	if err := goose.Down(db, "migrations"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to roll back migration")
	}
	return nil
}
