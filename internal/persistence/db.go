// Package persistence syncs the hot store with the durable SQLite store:
// pending-driven saves, full loads, and integrity repair.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection used for long-term world persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates the database at the given path and applies the
// schema.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS people (
		id INTEGER PRIMARY KEY,
		tile_id INTEGER NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		sex INTEGER NOT NULL,
		born_year INTEGER NOT NULL,
		born_month INTEGER NOT NULL,
		born_day INTEGER NOT NULL,
		residency INTEGER,
		family_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS family (
		id INTEGER PRIMARY KEY,
		husband_id INTEGER NOT NULL,
		wife_id INTEGER NOT NULL,
		tile_id INTEGER NOT NULL,
		pregnancy INTEGER NOT NULL,
		delivery_year INTEGER,
		delivery_month INTEGER,
		delivery_day INTEGER,
		children_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS villages (
		id INTEGER PRIMARY KEY,
		tile_id INTEGER NOT NULL,
		land_chunk_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		housing_capacity INTEGER NOT NULL,
		housing_slots_json TEXT NOT NULL,
		food_stores INTEGER NOT NULL,
		food_capacity INTEGER NOT NULL,
		food_production_rate INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tiles (
		id INTEGER PRIMARY KEY,
		terrain_type TEXT NOT NULL,
		is_land INTEGER NOT NULL,
		is_habitable INTEGER NOT NULL,
		biome TEXT,
		fertility INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tiles_lands (
		tile_id INTEGER PRIMARY KEY,
		lands_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_people_tile ON people(tile_id);
	CREATE INDEX IF NOT EXISTS idx_people_residency ON people(residency);
	CREATE INDEX IF NOT EXISTS idx_villages_tile ON villages(tile_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SetMeta stores a key-value pair in world metadata.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// Meta retrieves a metadata value; ok is false when the key is absent.
func (db *DB) Meta(key string) (string, bool, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// HasWorldState reports whether a previous save exists.
func (db *DB) HasWorldState() bool {
	_, ok, err := db.Meta("calendar_date")
	return err == nil && ok
}
