package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateUp applies every pending schema migration to db, which must be a
// Postgres connection. It returns the schema version before and after.
func MigrateUp(db *sql.DB) (before, after uint, err error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, 0, fmt.Errorf("MigrateUp: postgres driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return 0, 0, fmt.Errorf("MigrateUp: open migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return 0, 0, fmt.Errorf("MigrateUp: %w", err)
	}

	before, _, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, 0, fmt.Errorf("MigrateUp: read version: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, 0, fmt.Errorf("MigrateUp: apply: %w", err)
	}

	after, _, err = m.Version()
	if err != nil {
		return before, 0, fmt.Errorf("MigrateUp: read version: %w", err)
	}
	return before, after, nil
}
