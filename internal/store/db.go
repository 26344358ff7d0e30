package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const _defaultConnectTimeout = 3 * time.Second

//go:embed migrations
var migrationFiles embed.FS

// OpenSQL connects to dsn with the driver for dialect and optionally applies
// the embedded migrations.
func OpenSQL(dialect, dsn string, automigrate bool, logger *zap.Logger) (*SQL, error) {
	driver, err := driverName(dialect)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), _defaultConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// one writer; avoids SQLITE_BUSY under concurrent check-ins
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	if automigrate {
		if err := migrateUp(db.DB, dialect); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return NewSQL(db, dialect, logger), nil
}

func driverName(dialect string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return "pgx", nil
	case DialectSQLite:
		return "sqlite3", nil
	}
	return "", fmt.Errorf("unsupported dialect %q", dialect)
}

func migrateUp(db *sql.DB, dialect string) error {
	src, err := iofs.New(migrationFiles, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}

	var drv database.Driver
	switch dialect {
	case DialectPostgres:
		drv, err = migratepg.WithInstance(db, &migratepg.Config{})
	case DialectSQLite:
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, drv)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
