package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func newMigrate(connString string) (*migrate.Migrate, *sql.DB, error) {
	conn, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, nil, err
	}

	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return m, conn, nil
}

// MigrateUp applies every embedded migration that has not run yet
func MigrateUp(connString string) error {
	m, conn, err := newMigrate(connString)
	if err != nil {
		return fmt.Errorf("db.MigrateUp: %w", err)
	}
	defer conn.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db.MigrateUp: %w", err)
	}
	return nil
}

// MigrateDown reverts every embedded migration
func MigrateDown(connString string) error {
	m, conn, err := newMigrate(connString)
	if err != nil {
		return fmt.Errorf("db.MigrateDown: %w", err)
	}
	defer conn.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db.MigrateDown: %w", err)
	}
	return nil
}
