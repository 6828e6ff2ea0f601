package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/pkg/db"
	"github.com/folio/contact-relay/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	migrationsPath := flag.String("path", db.DefaultMigrationsPath, "migrations source URL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: "contact-relay-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is required to run migrations")
		os.Exit(1)
	}

	logger.Info("Starting database migrations",
		zap.String("database", maskDatabaseURL(cfg.Database.URL)),
		zap.String("source", *migrationsPath))

	if err := db.RunMigrations(cfg.Database.URL, *migrationsPath); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Database migrations completed successfully")
}

// maskDatabaseURL hides the password of the privileged database credential
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
