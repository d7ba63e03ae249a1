package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bullwatch/internal/logger"
	"bullwatch/internal/models"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// SQLiteStore keeps the token slot in a key/value table.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// sqliteValue is the JSON stored in client_state.value for TokenKey.
type sqliteValue struct {
	Token    string    `json:"token"`
	Email    string    `json:"email,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		logger.Warnf("sqlite: failed to set WAL mode: %v", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Infof("sqlite session store opened: %s", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS client_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Load() (models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM client_state WHERE key = ?`, TokenKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, fmt.Errorf("load token: %w", err)
	}

	var v sqliteValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return models.Session{}, false, fmt.Errorf("decode token row: %w", err)
	}
	if v.Token == "" {
		return models.Session{}, false, nil
	}
	return models.Session{Token: v.Token, Email: v.Email, IssuedAt: v.IssuedAt}, true, nil
}

func (s *SQLiteStore) Save(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(sqliteValue{Token: sess.Token, Email: sess.Email, IssuedAt: sess.IssuedAt})
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		TokenKey, string(b), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM client_state WHERE key = ?`, TokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Open returns the store selected by kind ("file" or "sqlite").
func Open(kind, filePath, sqlitePath string) (TokenStore, error) {
	switch kind {
	case "", "file":
		return NewFileStore(filePath), nil
	case "sqlite":
		return OpenSQLite(sqlitePath)
	}
	return nil, fmt.Errorf("unknown session store %q", kind)
}
