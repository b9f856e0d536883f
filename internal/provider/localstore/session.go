// Package localstore implements the message store provider over SQLite
// files: one file per store, the archive-file shape of a message
// repository. Opening a destination that does not exist creates the file
// and seeds the default category containers; moves between two open stores
// copy the row across database handles.
package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/brandon/storemerge/internal/provider"
)

// Session opens SQLite-backed stores. Re-opening a path returns the store
// handle already open for it, so source and destination never fight over
// one file.
type Session struct {
	logger      *logrus.Logger
	defaultPath string
	open        map[string]*Store
}

// NewSession creates a session. defaultPath, when non-empty, is the store
// DefaultStore resolves to (created on demand).
func NewSession(logger *logrus.Logger, defaultPath string) *Session {
	return &Session{
		logger:      logger,
		defaultPath: defaultPath,
		open:        make(map[string]*Store),
	}
}

// OpenStore implements provider.Session.
func (s *Session) OpenStore(path string, create bool) (provider.Store, error) {
	if store, ok := s.open[path]; ok {
		return store, nil
	}

	if _, err := os.Stat(path); err != nil {
		if !create {
			return nil, fmt.Errorf("%w: %s", provider.ErrStoreNotFound, path)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store := &Store{session: s, db: db, path: path}
	if err := store.ensureSeeded(); err != nil {
		db.Close()
		return nil, err
	}

	s.open[path] = store
	s.logger.WithFields(logrus.Fields{
		"path": path,
		"id":   store.id,
	}).Debug("Opened local store")
	return store, nil
}

// DefaultStore implements provider.Session.
func (s *Session) DefaultStore() (provider.Store, error) {
	if s.defaultPath == "" {
		return nil, provider.ErrNoDefaultStore
	}
	return s.OpenStore(s.defaultPath, true)
}

// DetachStore implements provider.Session.
func (s *Session) DetachStore(store provider.Store) error {
	local, ok := store.(*Store)
	if !ok {
		return fmt.Errorf("store does not belong to this session")
	}
	delete(s.open, local.path)
	return local.db.Close()
}

// Reclaim implements provider.Session. SQLite holds page cache per
// connection; shrink_memory hands it back. Best-effort.
func (s *Session) Reclaim() {
	for _, store := range s.open {
		_, _ = store.db.Exec("PRAGMA shrink_memory")
	}
}

// Close implements provider.Session.
func (s *Session) Close() error {
	var firstErr error
	for path, store := range s.open {
		if err := store.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.open, path)
	}
	return firstErr
}

// newEntryID mints folder and item ids.
func newEntryID() string {
	return uuid.NewString()
}
