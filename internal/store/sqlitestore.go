package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codesmith/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps one SQLite database shared by every collection.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenDB opens (or creates) the SQLite database at path.
func OpenDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }

// SQLiteStore is the document-database implementation of Store. Each
// collection is one table of JSON documents keyed by entity ID.
type SQLiteStore[T Entity] struct {
	db         *DB
	collection string
}

// NewSQLiteStore creates the collection table when missing.
func NewSQLiteStore[T Entity](db *DB, collection string) (*SQLiteStore[T], error) {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	)`, collection)
	if _, err := db.db.Exec(stmt); err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	return &SQLiteStore[T]{db: db, collection: collection}, nil
}

func (s *SQLiteStore[T]) scanRecord(body string, createdAt, updatedAt string, version uint64) (Record[T], error) {
	var entity T
	if err := json.Unmarshal([]byte(body), &entity); err != nil {
		return Record[T]{}, fmt.Errorf("failed to decode document: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record[T]{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Record[T]{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return Record[T]{Entity: entity, CreatedAt: created, UpdatedAt: updated, Version: version}, nil
}

// Get returns the record for id.
func (s *SQLiteStore[T]) Get(id string) (Record[T], error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row := s.db.db.QueryRow(
		fmt.Sprintf(`SELECT body, created_at, updated_at, version FROM %q WHERE id = ?`, s.collection), id)
	var body, createdAt, updatedAt string
	var version uint64
	if err := row.Scan(&body, &createdAt, &updatedAt, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record[T]{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record[T]{}, fmt.Errorf("query failed: %w", err)
	}
	return s.scanRecord(body, createdAt, updatedAt, version)
}

// GetAll returns every record.
func (s *SQLiteStore[T]) GetAll() ([]Record[T], error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rows, err := s.db.db.Query(
		fmt.Sprintf(`SELECT body, created_at, updated_at, version FROM %q ORDER BY id`, s.collection))
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []Record[T]
	for rows.Next() {
		var body, createdAt, updatedAt string
		var version uint64
		if err := rows.Scan(&body, &createdAt, &updatedAt, &version); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		r, err := s.scanRecord(body, createdAt, updatedAt, version)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert stores a new entity.
func (s *SQLiteStore[T]) Insert(entity T) (Record[T], error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	body, err := json.Marshal(entity)
	if err != nil {
		return Record[T]{}, fmt.Errorf("failed to encode document: %w", err)
	}

	r := NewRecord(entity)
	_, err = s.db.db.Exec(
		fmt.Sprintf(`INSERT INTO %q (id, body, created_at, updated_at, version) VALUES (?, ?, ?, ?, ?)`, s.collection),
		entity.EntityID(), string(body),
		r.CreatedAt.Format(time.RFC3339Nano), r.UpdatedAt.Format(time.RFC3339Nano), r.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return Record[T]{}, fmt.Errorf("%w: %s", ErrDuplicateKey, entity.EntityID())
		}
		return Record[T]{}, fmt.Errorf("insert failed: %w", err)
	}
	return r, nil
}

// Update replaces an existing entity, honouring the expected version.
func (s *SQLiteStore[T]) Update(entity T, expectedVersion *uint64) (Record[T], error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	id := entity.EntityID()
	row := s.db.db.QueryRow(
		fmt.Sprintf(`SELECT created_at, version FROM %q WHERE id = ?`, s.collection), id)
	var createdAt string
	var version uint64
	if err := row.Scan(&createdAt, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record[T]{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record[T]{}, fmt.Errorf("query failed: %w", err)
	}
	if expectedVersion != nil && *expectedVersion != version {
		return Record[T]{}, &VersionConflictError{Expected: *expectedVersion, Found: version}
	}

	body, err := json.Marshal(entity)
	if err != nil {
		return Record[T]{}, fmt.Errorf("failed to encode document: %w", err)
	}
	updatedAt := nowUTC()
	_, err = s.db.db.Exec(
		fmt.Sprintf(`UPDATE %q SET body = ?, updated_at = ?, version = ? WHERE id = ?`, s.collection),
		string(body), updatedAt.Format(time.RFC3339Nano), version+1, id)
	if err != nil {
		return Record[T]{}, fmt.Errorf("update failed: %w", err)
	}

	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	return Record[T]{Entity: entity, CreatedAt: created, UpdatedAt: updatedAt, Version: version + 1}, nil
}

// Delete removes the record for id.
func (s *SQLiteStore[T]) Delete(id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.db.Exec(fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, s.collection), id)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Clear removes every record.
func (s *SQLiteStore[T]) Clear() error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, err := s.db.db.Exec(fmt.Sprintf(`DELETE FROM %q`, s.collection))
	if err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint failures in the message; matching
	// the text avoids importing the driver's error types here.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

func nowUTC() time.Time { return time.Now().UTC() }
