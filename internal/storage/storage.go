// Package storage persists the session token slot across restarts.
// Nothing but the token (and the account it was issued for) is ever written.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"bullwatch/internal/logger"
	"bullwatch/internal/models"
)

// TokenKey is the single well-known key the session is stored under.
const TokenKey = "token"

// StateVersion is the current on-disk schema of FileStore.
const StateVersion = "2"

// TokenStore is the persisted token slot. Load returns ok=false when nothing
// is stored.
type TokenStore interface {
	Load() (s models.Session, ok bool, err error)
	Save(s models.Session) error
	Clear() error
	Close() error
}

// fileState is the JSON document written by FileStore.
type fileState struct {
	Version string          `json:"version"`
	Slots   map[string]slot `json:"slots"`

	// Version 1 kept the bearer token at the top level.
	LegacyToken string `json:"access_token,omitempty"`
}

type slot struct {
	Value    string `json:"value"`
	Email    string `json:"email,omitempty"`
	IssuedAt string `json:"issued_at,omitempty"`
}

// FileStore keeps the token in a small JSON file.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created lazily.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load() (models.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.read()
	if err != nil {
		return models.Session{}, false, err
	}

	if migrateState(&s) {
		logger.Infof("Session state migrated to version %s. Saving...", s.Version)
		if err := f.write(s); err != nil {
			return models.Session{}, false, err
		}
	}

	sl, ok := s.Slots[TokenKey]
	if !ok || sl.Value == "" {
		return models.Session{}, false, nil
	}
	return slotToSession(sl), true, nil
}

func (f *FileStore) Save(sess models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := fileState{Version: StateVersion, Slots: map[string]slot{TokenKey: sessionToSlot(sess)}}
	return f.write(s)
}

// Clear removes the token. A missing file is not an error.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session file: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) read() (fileState, error) {
	s := fileState{Version: StateVersion, Slots: map[string]slot{}}

	fh, err := os.Open(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	defer fh.Close()

	b, err := io.ReadAll(fh)
	if err != nil {
		return s, err
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	if s.Slots == nil {
		s.Slots = map[string]slot{}
	}
	return s, nil
}

// migrateState upgrades older schemas in place.
// Returns true if changes were made and the state needs to be saved.
func migrateState(s *fileState) bool {
	updated := false

	// 1 -> 2: top-level access_token moves into the keyed slot map
	if s.Version < "2" {
		logger.Infof("Migrating session state schema from %q to 2", s.Version)
		if s.LegacyToken != "" {
			s.Slots[TokenKey] = slot{Value: s.LegacyToken}
		}
		s.LegacyToken = ""
		s.Version = "2"
		updated = true
	}

	return updated
}

// write replaces the state file atomically: temp file, fsync, rename.
func (f *FileStore) write(s fileState) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	// Same directory as the target so the rename stays on one filesystem.
	tmpFile := f.Path + ".tmp"
	fh, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	defer fh.Close()

	if _, err := fh.Write(b); err != nil {
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := fh.Sync(); err != nil {
		return fmt.Errorf("sync temp session file: %w", err)
	}
	// Close before rename (Windows).
	fh.Close()

	if err := os.Rename(tmpFile, f.Path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func sessionToSlot(s models.Session) slot {
	sl := slot{Value: s.Token, Email: s.Email}
	if !s.IssuedAt.IsZero() {
		sl.IssuedAt = s.IssuedAt.UTC().Format(timeLayout)
	}
	return sl
}

func slotToSession(sl slot) models.Session {
	s := models.Session{Token: sl.Value, Email: sl.Email}
	if sl.IssuedAt != "" {
		if t, err := parseTime(sl.IssuedAt); err == nil {
			s.IssuedAt = t
		}
	}
	return s
}
