// Package sqlstore implements progress and catalog persistence on top of sqlx.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"    // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds connection settings.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Migrate      bool
}

// DB wraps an sqlx handle shared by the repositories.
type DB struct {
	*sqlx.DB
	driver string
}

// Open connects and optionally creates the schema.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	conn, err := sqlx.ConnectContext(ctx, driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	switch {
	case driver == DriverSQLite:
		// in-memory databases are per connection
		conn.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := &DB{DB: conn, driver: driver}
	if cfg.Migrate {
		if err := db.Migrate(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return db, nil
}

// Driver returns the driver name.
func (db *DB) Driver() string { return db.driver }

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id BIGINT PRIMARY KEY,
		word TEXT NOT NULL,
		definition TEXT NOT NULL DEFAULT '',
		part_of_speech TEXT NOT NULL DEFAULT '',
		frequency DOUBLE PRECISION NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		example TEXT,
		collocations TEXT,
		phrases TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS progress (
		user_id TEXT NOT NULL,
		item_id BIGINT NOT NULL REFERENCES items(id),
		track TEXT NOT NULL DEFAULT 'visual',
		stability DOUBLE PRECISION NOT NULL DEFAULT 0,
		difficulty DOUBLE PRECISION NOT NULL DEFAULT 0,
		state INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'NEW',
		reps INTEGER NOT NULL DEFAULT 0,
		lapses INTEGER NOT NULL DEFAULT 0,
		last_review_at TIMESTAMP,
		next_review_at TIMESTAMP,
		dim_visual INTEGER NOT NULL DEFAULT 50,
		dim_audio INTEGER NOT NULL DEFAULT 50,
		dim_context INTEGER NOT NULL DEFAULT 50,
		dim_meaning INTEGER NOT NULL DEFAULT 50,
		dim_logic INTEGER NOT NULL DEFAULT 50,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, item_id, track)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_due ON progress (user_id, track, next_review_at)`,
}

// Migrate creates tables and indexes when absent.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
