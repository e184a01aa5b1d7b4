// Package sqlite persists reference tables in a single versioned SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/efebarandurmaz/bigsmall/internal/reference"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SchemaVersion is bumped whenever the table layout changes.
const SchemaVersion = 1

// ErrSchemaMismatch is returned when a database was written by an
// incompatible schema.
var ErrSchemaMismatch = errors.New("reference db: schema version mismatch")

var schema = []string{
	`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE enzyme_reactions (
		enzyme TEXT NOT NULL,
		position INTEGER NOT NULL,
		reaction TEXT NOT NULL,
		PRIMARY KEY (enzyme, position)
	)`,
	`CREATE TABLE reaction_equations (
		reaction TEXT NOT NULL,
		position INTEGER NOT NULL,
		equation TEXT NOT NULL,
		PRIMARY KEY (reaction, position)
	)`,
	`CREATE TABLE compounds (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
}

// Import writes t to a new database at path. An existing file is replaced.
func Import(ctx context.Context, path string, t *reference.Tables) (retErr error) {
	if t.Version == "" {
		return fmt.Errorf("reference db: version is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create dirs: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	meta := map[string]string{
		"version":        t.Version,
		"schema_version": strconv.Itoa(SchemaVersion),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	if err := insertPositional(ctx, tx, `INSERT INTO enzyme_reactions(enzyme, position, reaction) VALUES(?, ?, ?)`, t.EnzymeReactions); err != nil {
		return fmt.Errorf("insert enzyme reactions: %w", err)
	}
	if err := insertPositional(ctx, tx, `INSERT INTO reaction_equations(reaction, position, equation) VALUES(?, ?, ?)`, t.ReactionEquations); err != nil {
		return fmt.Errorf("insert reaction equations: %w", err)
	}
	for _, id := range sortedKeys(t.CompoundNames) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO compounds(id, name) VALUES(?, ?)`, id, t.CompoundNames[id]); err != nil {
			return fmt.Errorf("insert compound %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func insertPositional(ctx context.Context, tx *sql.Tx, query string, m map[string][]string) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, key := range sortedKeys(m) {
		for i, v := range m[key] {
			if _, err := stmt.ExecContext(ctx, key, i, v); err != nil {
				return fmt.Errorf("%s[%d]: %w", key, i, err)
			}
		}
	}
	return nil
}

// Load reads every table from the database at path.
func Load(ctx context.Context, path string) (*reference.Tables, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reference db: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	if meta["schema_version"] != strconv.Itoa(SchemaVersion) {
		return nil, fmt.Errorf("%w: got %q, want %d", ErrSchemaMismatch, meta["schema_version"], SchemaVersion)
	}

	t := reference.NewTables(meta["version"])
	if err := readPositional(ctx, db, `SELECT enzyme, reaction FROM enzyme_reactions ORDER BY enzyme, position`, t.EnzymeReactions); err != nil {
		return nil, fmt.Errorf("select enzyme reactions: %w", err)
	}
	if err := readPositional(ctx, db, `SELECT reaction, equation FROM reaction_equations ORDER BY reaction, position`, t.ReactionEquations); err != nil {
		return nil, fmt.Errorf("select reaction equations: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM compounds`)
	if err != nil {
		return nil, fmt.Errorf("select compounds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan compound: %w", err)
		}
		t.CompoundNames[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open loads the database into an immutable in-memory store.
func Open(ctx context.Context, path string) (*reference.MemoryStore, error) {
	t, err := Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return reference.NewMemoryStore(t)
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("select meta: %w", err)
	}
	defer func() { _ = rows.Close() }()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func readPositional(ctx context.Context, db *sql.DB, query string, into map[string][]string) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		into[key] = append(into[key], value)
	}
	return rows.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
