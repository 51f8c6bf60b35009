package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rentboard/internal/schedule"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection pool together with the occupancy calculator
// used for in-transaction conflict re-checks.
type DB struct {
	*sql.DB
	calc   schedule.Calculator
	logger *zerolog.Logger
}

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("booking conflict")
	ErrInvalidTransfer = errors.New("invalid status transition")
)

// NewDB opens (creating if needed) the sqlite database and ensures the schema.
func NewDB(path string, calc schedule.Calculator, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and a busy timeout keep concurrent readers from tripping over
	// the single writer. Immediate transactions take the write lock up front,
	// so concurrent bookings queue on the busy timeout and the loser's in-tx
	// conflict re-check sees the winner's row.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		calc:   calc,
		logger: logger,
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			serial_number TEXT UNIQUE,
			model TEXT NOT NULL,
			is_accessory BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'idle',
			location TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS rentals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id INTEGER NOT NULL,
			parent_rental_id INTEGER,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			ship_out_time DATETIME,
			ship_in_time DATETIME,
			logistics_days INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'not_shipped',
			customer_name TEXT NOT NULL,
			customer_phone TEXT,
			destination TEXT,
			tracking_no_out TEXT,
			tracking_no_in TEXT,
			order_ref TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (device_id) REFERENCES devices(id),
			FOREIGN KEY (parent_rental_id) REFERENCES rentals(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_devices_model ON devices(model, is_accessory)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status)`,

		`CREATE INDEX IF NOT EXISTS idx_rentals_device_status ON rentals(device_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_ship_window ON rentals(ship_out_time, ship_in_time)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_customer ON rentals(customer_name)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_parent ON rentals(parent_rental_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_dates ON rentals(start_date, end_date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
