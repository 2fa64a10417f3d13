package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// SqliteStore stores all collections in a single SQLite database.
//
// Tables:
//
//	items(collection, key, value)  PRIMARY KEY (collection, key)
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create dir for %s", dbPath)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", dbPath)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not enable WAL")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS items (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not create items table")
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) GetItem(collection, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM items WHERE collection = ? AND key = ?",
		collection, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "could not read %s/%s", collection, key)
	}
	return value, true, nil
}

func (s *SqliteStore) SetItem(collection, key, value string) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO items (collection, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value`,
		collection, key, value,
	)
	return errors.Wrapf(err, "could not write %s/%s", collection, key)
}

func (s *SqliteStore) RemoveItem(collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		"DELETE FROM items WHERE collection = ? AND key = ?",
		collection, key,
	)
	if err != nil {
		return false, errors.Wrapf(err, "could not delete %s/%s", collection, key)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqliteStore) Keys(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT key FROM items WHERE collection = ? ORDER BY key", collection)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list keys of %s", collection)
	}
	defer rows.Close()
	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SqliteStore) ListCollections() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT DISTINCT collection FROM items ORDER BY collection")
	if err != nil {
		return nil, errors.Wrap(err, "could not list collections")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
