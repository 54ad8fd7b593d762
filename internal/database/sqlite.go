package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	db   *sql.DB
	once sync.Once
)

// Config holds database configuration
type Config struct {
	Path string
	// Logger receives connection and migration messages; nil uses slog.Default
	Logger *slog.Logger
}

// Open connects to SQLite at cfg.Path and applies pending migrations
func Open(cfg Config) (*sql.DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Shared in-memory databases vanish when the last connection closes
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxIdleTime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	mm, err := NewMigrationManager(conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := mm.RunMigrations(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("database initialized", "component", "database", "path", cfg.Path)
	return conn, nil
}

// Init opens the process-wide database once
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		db, err = Open(cfg)
	})
	return err
}

// GetDB returns the process-wide database, nil before Init
func GetDB() *sql.DB {
	return db
}

// Close closes the process-wide database
func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// WithTx executes fn within a transaction, rolling back on error or panic
func WithTx(conn *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
