package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StoreFileName is the on-disk name of the entitlement record.
const StoreFileName = "entitlement.json"

// FileStore persists the entitlement record as a single JSON file under
// the data directory. Writes go through a temp file plus rename so a crash
// never leaves a torn record behind.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at dataDir.
func NewFileStore(dataDir string) (*FileStore, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dataDir, StoreFileName)}, nil
}

// Path returns the store file location, for the change watcher.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the current record. A missing or empty file is treated as a
// fresh installation and returns defaults.
func (s *FileStore) Get(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readLocked()
}

func (s *FileStore) readLocked() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultRecord(), nil
		}
		return Record{}, fmt.Errorf("read entitlement record: %w", err)
	}
	if len(data) == 0 {
		return DefaultRecord(), nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode entitlement record: %w", err)
	}
	rec.ApplyDefaults()
	return rec, nil
}

// Set applies a partial mutation and persists the merged record.
func (s *FileStore) Set(ctx context.Context, m Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readLocked()
	if err != nil {
		return err
	}
	m.apply(&rec)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entitlement record: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp entitlement record: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit entitlement record: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
