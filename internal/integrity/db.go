package integrity

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (file_hashes table plus last_verified index)
const currentSchemaVersion = 1

// Entry is the audit record for a single tracked file.
type Entry struct {
	Hash         string
	Size         int64
	LastModified time.Time
	LastVerified time.Time
}

// MismatchError reports that a tracked file's content changed since its
// hash was recorded.
type MismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: recorded %.12s..., computed %.12s...", e.Path, e.Expected, e.Actual)
}

// IsMismatch returns true if the error is a hash mismatch.
// Uses errors.As to handle wrapped errors.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// DB is a persistent hash audit database backed by SQLite.
// Uses WAL mode so verification reads never block updates.
type DB struct {
	db *sql.DB
}

// Open creates or opens the audit database at the given path.
// Applies required pragmas and migrations automatically.
// This function is idempotent.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Get returns the audit entry for path, or false if none is recorded.
func (d *DB) Get(path string) (Entry, bool, error) {
	var e Entry
	var modified, verified int64
	err := d.db.QueryRow(
		`SELECT hash, size, last_modified, last_verified FROM file_hashes WHERE path = ?`,
		path,
	).Scan(&e.Hash, &e.Size, &modified, &verified)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("querying entry for %s: %w", path, err)
	}
	e.LastModified = time.Unix(modified, 0).UTC()
	e.LastVerified = time.Unix(verified, 0).UTC()
	return e, true, nil
}

// Put inserts or replaces the audit entry for path.
func (d *DB) Put(path string, e Entry) error {
	_, err := d.db.Exec(
		`INSERT INTO file_hashes (path, hash, size, last_modified, last_verified)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   hash = excluded.hash,
		   size = excluded.size,
		   last_modified = excluded.last_modified,
		   last_verified = excluded.last_verified`,
		path, e.Hash, e.Size, e.LastModified.Unix(), e.LastVerified.Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing entry for %s: %w", path, err)
	}
	return nil
}

// Remove deletes the audit entry for path. Removing an untracked path is not
// an error.
func (d *DB) Remove(path string) error {
	if _, err := d.db.Exec(`DELETE FROM file_hashes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("removing entry for %s: %w", path, err)
	}
	return nil
}

// Len reports the number of tracked files.
func (d *DB) Len() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM file_hashes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Paths returns every tracked path in lexical order.
func (d *DB) Paths() ([]string, error) {
	rows, err := d.db.Query(`SELECT path FROM file_hashes ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// VerifyAndUpdate checks the file at path against its recorded hash.
//
// An untracked file is recorded and reported as verified. A tracked file
// whose hash matches gets its last_verified timestamp refreshed. On a
// mismatch the behavior depends on strict: strict mode leaves the recorded
// entry untouched and returns a MismatchError; permissive mode accepts the
// new content, updates the entry, and returns verified=false with no error.
func (d *DB) VerifyAndUpdate(path string, strict bool) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	actual, err := HashFile(path)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	fresh := Entry{
		Hash:         actual,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
		LastVerified: now,
	}

	recorded, found, err := d.Get(path)
	if err != nil {
		return false, err
	}

	if !found {
		return true, d.Put(path, fresh)
	}

	if recorded.Hash == actual {
		return true, d.Put(path, fresh)
	}

	if strict {
		return false, &MismatchError{Path: path, Expected: recorded.Hash, Actual: actual}
	}

	// Permissive: the file changed, accept the new content.
	return false, d.Put(path, fresh)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and stamps the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
