package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/config"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/telemetry"
)

var (
	configPath = flag.String("config", "", "path to configuration file")
	action     = flag.String("action", "up", "migration action: up, down, steps, version, force")
	steps      = flag.Int("steps", 0, "number of migrations to apply (action=steps, negative rolls back)")
	forceTo    = flag.Int("force", -1, "version to force (action=force)")
	dir        = flag.String("dir", "migrations", "migrations directory")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+*dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch *action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		if *steps == 0 {
			return errors.New("steps action needs a non-zero -steps value")
		}
		err = m.Steps(*steps)
	case "version":
		return reportVersion(m, logger)
	case "force":
		if *forceTo < 0 {
			return errors.New("force action needs a -force version")
		}
		err = m.Force(*forceTo)
	default:
		return fmt.Errorf("unknown action %q", *action)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("schema already up to date")
		return nil
	}
	if err != nil {
		return err
	}

	return reportVersion(m, logger)
}

func reportVersion(m *migrate.Migrate, logger *zap.Logger) error {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("schema has no applied migrations")
	case err != nil:
		return err
	default:
		logger.Info("schema version",
			zap.Uint("version", version),
			zap.Bool("dirty", dirty))
	}
	return nil
}
