// Package pg is the Postgres-backed store.Store implementation.
// Connection setup and migrations follow the teacher's
// database/sql-plus-driver idiom (internal/store/pg/teams.go), with
// the driver swapped for jackc/pgx/v5's stdlib adapter; every
// repository method scans rows by hand, the same as the teacher.
package pg

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // registers the "postgres" migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open connects to dsn using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration under migrations/ to dsn.
// Safe to call on every startup; migrate.ErrNoChange is swallowed.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("pg: load migrations: %w", err)
	}
	driverDSN := dsn
	m, err := migrate.NewWithSourceInstance("iofs", src, toPostgresURL(driverDSN))
	if err != nil {
		return fmt.Errorf("pg: init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("pg: migrate up: %w", err)
	}
	return nil
}

// toPostgresURL returns dsn unchanged: golang-migrate's postgres
// driver accepts postgres:// and postgresql:// URLs directly. Other
// DSN forms pgx accepts (such as key=value strings) are not converted.
func toPostgresURL(dsn string) string {
	return dsn
}
