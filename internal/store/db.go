package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DB wraps the attendance database handle together with its dialect.
type DB struct {
	Client *sqlx.DB
	Driver string
}

// NormalizeDriver maps config spellings onto a registered database/sql driver name.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("unsupported db driver %q", name)
}

// NewDB opens and pings the database.
func NewDB(ctx context.Context, driver, dsn string) (*DB, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if driver == DriverSQLite {
		// single writer; attendance volume is one row per student per period
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{Client: db, Driver: driver}, nil
}

// Wrap adopts an existing handle, used by tests with sqlmock.
func Wrap(db *sqlx.DB, driver string) *DB {
	return &DB{Client: db, Driver: driver}
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "attendance.db"
	}
	if strings.Contains(path, "?") || strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file:") {
		return path
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS attendance (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			roll_number TEXT NOT NULL,
			email       TEXT NOT NULL,
			class_name  TEXT NOT NULL,
			timestamp   DATETIME NOT NULL,
			host        TEXT NOT NULL,
			status      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_email_ts ON attendance(email, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_ts ON attendance(timestamp)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS attendance (
			id          BIGSERIAL PRIMARY KEY,
			roll_number TEXT NOT NULL,
			email       TEXT NOT NULL,
			class_name  TEXT NOT NULL,
			timestamp   TIMESTAMPTZ NOT NULL,
			host        TEXT NOT NULL,
			status      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_email_ts ON attendance(email, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_ts ON attendance(timestamp)`,
	},
}

// Migrate creates the attendance table when missing.
func (d *DB) Migrate(ctx context.Context) error {
	stmts, ok := schemas[d.Driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", d.Driver)
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Healthy verifies the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
