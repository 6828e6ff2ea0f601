package db

import (
	"errors"
	"fmt"

	"github.com/folio/contact-relay/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// source driver
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	// DefaultMigrationsPath points at the repository's migrations directory
	DefaultMigrationsPath = "file://./migrations"

	migrationsTable = "contact_relay_schema_migrations"
)

// RunMigrations brings contact_rate_limits up to the latest schema version
func RunMigrations(databaseURL, migrationsPath string) error {
	if migrationsPath == "" {
		migrationsPath = DefaultMigrationsPath
	}

	connCfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}
	tlsCfg, err := loadTLS(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to configure TLS: %w", err)
	}
	if tlsCfg != nil {
		connCfg.TLSConfig = tlsCfg
	}

	sqlDB := stdlib.OpenDB(*connCfg)
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Rate limit schema already up to date")
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr == nil {
		logger.Info("Rate limit schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
