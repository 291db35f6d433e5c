// Package storage is the client's local key-value store, the on-disk
// counterpart of a browser's localStorage. Values are opaque strings.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Local is a string key-value store
type Local interface {
	// GetItem returns the value and whether the key exists
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Close() error
}

// Database handles SQLite operations for local items
type Database struct {
	db *sql.DB
}

var _ Local = (*Database)(nil)

// NewDatabase creates a new database connection and initializes tables
func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY between them
	db.SetMaxOpenConns(1)

	database := &Database{db: db}
	if err := database.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

func (d *Database) createTables() error {
	itemsTable := `
	CREATE TABLE IF NOT EXISTS local_items (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	if _, err := d.db.Exec(itemsTable); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// GetItem loads a value by key
func (d *Database) GetItem(key string) (string, bool, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM local_items WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetItem saves or replaces a value
func (d *Database) SetItem(key, value string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO local_items (key, value, updated_at)
		VALUES (?, ?, ?)`,
		key, value, time.Now())
	return err
}

// RemoveItem deletes a key; missing keys are not an error
func (d *Database) RemoveItem(key string) error {
	_, err := d.db.Exec("DELETE FROM local_items WHERE key = ?", key)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
