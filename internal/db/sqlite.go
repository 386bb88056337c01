package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mini-rodalies-3d/tracker/internal/log"
)

// schemaSQL is the database schema, applied by EnsureSchema
//
//go:embed schema.sql
var schemaSQL string

// DB wraps a SQLite database connection with write serialization
type DB struct {
	conn    *sql.DB
	lg      *log.Logger
	writeMu sync.Mutex
}

// Connect opens a SQLite database with WAL mode enabled
func Connect(dbPath string, lg *log.Logger) (*DB, error) {
	dsn := dbPath + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer. One connection plus writeMu keeps the
	// stats recorder and selection updates from colliding.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			lg.Warn("Failed to set pragma", "pragma", pragma, "error", err)
		}
	}

	lg.Info("Connected to SQLite database", "path", dbPath)
	return &DB{conn: conn, lg: lg}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection for read-side repositories
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks the connection, used by health checks
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// EnsureSchema creates tables if they don't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	db.lg.Debug("Database schema ensured")
	return nil
}

// SchemaSQL returns the embedded schema for external use (e.g. init scripts)
func SchemaSQL() string {
	return schemaSQL
}
