// Package database opens the primary relational store. The hub runs on a
// single SQLite file by default and on PostgreSQL via the pgx stdlib driver
// when configured; both are reached through sqlx so queries stay portable.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/neuralhub/neuralhub/internal/common/config"
)

// DB wraps a sqlx.DB and provides helper methods for transactions.
type DB struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the configured primary store and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case "sqlite3":
		dsn := cfg.Path
		if dsn != ":memory:" {
			// WAL keeps readers unblocked during writes; busy_timeout covers
			// short writer contention instead of returning SQLITE_BUSY.
			dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)
		}
		db, err = sqlx.Open("sqlite3", dsn)
		if err == nil {
			// A single writer connection avoids SQLITE_BUSY under concurrency.
			db.SetMaxOpenConns(1)
		}
	case "postgres":
		db, err = sqlx.Open("pgx", cfg.DSN())
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxConns)
			db.SetConnMaxIdleTime(5 * time.Minute)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db, driver: cfg.Driver}, nil
}

// OpenMemory opens an in-memory SQLite database, used by tests.
func OpenMemory() (*DB, error) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &DB{db: db, driver: "sqlite3"}, nil
}

// DB returns the underlying sqlx.DB.
func (d *DB) DB() *sqlx.DB {
	return d.db
}

// Driver returns the active driver name ("sqlite3" or "postgres").
func (d *DB) Driver() string {
	return d.driver
}

// Rebind converts "?" bindvars to the driver's placeholder style.
func (d *DB) Rebind(query string) string {
	return d.db.Rebind(query)
}

// Ping verifies the database connection is still alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// WithTx executes the given function within a transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
