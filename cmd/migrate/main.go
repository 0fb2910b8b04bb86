package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/config"
)

const migrationsDir = "migrations"

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, status, create")
		name   = flag.String("name", "", "Migration name (for create action)")
		steps  = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
	)
	flag.Parse()

	if *action == "create" {
		if *name == "" {
			slog.Error("migration name is required for create action")
			os.Exit(1)
		}
		if err := createMigration(*name); err != nil {
			slog.Error("failed to create migration", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}

	switch *action {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no pending migrations")
			err = nil
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no migrations to rollback")
			err = nil
		}
	case "status":
		err = printStatus(m)
	default:
		slog.Error("unknown action", "action", *action)
		os.Exit(1)
	}

	if err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	slog.Info("migration action completed", "action", *action)
}

func printStatus(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("No migrations applied")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func createMigration(name string) error {
	if err := os.MkdirAll(migrationsDir, 0755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	// Next sequential version after the highest existing one.
	ups, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}
	version := len(ups) + 1

	header := fmt.Sprintf("-- Migration: %s\n-- Created at: %s\n\n", name, time.Now().Format(time.RFC3339))
	for _, suffix := range []string{"up", "down"} {
		path := filepath.Join(migrationsDir, fmt.Sprintf("%06d_%s.%s.sql", version, name, suffix))
		if err := os.WriteFile(path, []byte(header), 0644); err != nil {
			return fmt.Errorf("failed to create migration file: %w", err)
		}
		slog.Info("created migration", "file", path)
	}
	return nil
}
