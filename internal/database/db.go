// Package database owns the message store: connection lifecycle, schema
// migrations, validation and the data access layer.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/chatlog/internal/config"
	"github.com/edgard/chatlog/migrations"

	_ "github.com/lib/pq"  //revive:disable:blank-imports
	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// Supported driver names, as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// NewConnector returns a Connector that opens a pool for cfg, pings it and
// applies the embedded migrations. The pool is closed again if any step fails.
func NewConnector(cfg config.DatabaseConfig, logger *slog.Logger) Connector {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "database")

	return func(ctx context.Context) (*sqlx.DB, error) {
		db, err := sqlx.Open(cfg.Driver, cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
		}

		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			closeDB(db, log)
			return nil, fmt.Errorf("failed to reach %s database: %w", cfg.Driver, err)
		}

		if err := ApplyMigrations(db.DB, cfg.Driver, log); err != nil {
			closeDB(db, log)
			return nil, err
		}

		return db, nil
	}
}

// ApplyMigrations runs the embedded migrations for driver against db.
func ApplyMigrations(db *sql.DB, driver string, log *slog.Logger) error {
	if db == nil {
		return errors.New("database connection is nil, cannot apply migrations")
	}

	var (
		dbDriver migratedb.Driver
		err      error
	)
	switch driver {
	case DriverSQLite:
		dbDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case DriverPostgres:
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migration driver: %w", driver, err)
	}

	sourceDriver, err := iofs.New(migrations.FS, driver)
	if err != nil {
		return fmt.Errorf("failed to create embed source driver instance: %w", err)
	}

	// The migrator is not closed: closing it would close db.
	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("No database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("Database migrations applied", "driver", driver)
	return nil
}

func closeDB(db *sqlx.DB, log *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database connection", "error", err)
	}
}
