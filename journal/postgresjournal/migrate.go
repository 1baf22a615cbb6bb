package postgresjournal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable records the applied schema version of the journal.
const MigrationsTable = "circulation_schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the pending journal migrations. An up-to-date schema is not an error.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return ErrNilDatabaseConnection
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading journal migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring migration connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return errors.Join(fmt.Errorf("preparing migration driver: %w", err), conn.Close())
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return errors.Join(fmt.Errorf("preparing journal migrations: %w", err), conn.Close())
	}

	upErr := m.Up()
	if errors.Is(upErr, migrate.ErrNoChange) {
		upErr = nil
	}

	sourceErr, driverErr := m.Close()

	if upErr != nil {
		return fmt.Errorf("migrating journal schema: %w", upErr)
	}

	return errors.Join(sourceErr, driverErr)
}
