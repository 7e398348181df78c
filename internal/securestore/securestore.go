// ABOUTME: Local secret key-value store kept outside the main database
// ABOUTME: FileStore persists a 0600 JSON file with atomic replace; MemoryStore is for tests

package securestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SecureStore holds small secrets by key.
type SecureStore interface {
	// Get reports ok=false when key has never been set.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// FileStore keeps secrets in a single JSON object on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return err
	}
	m[key] = value
	return s.write(m)
}

// read returns an empty map when the file does not exist yet.
func (s *FileStore) read() (map[string]string, error) {
	m := make(map[string]string)
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secure store: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding secure store %s: %w", s.path, err)
	}
	return m, nil
}

// write replaces the file via a temp file and rename.
func (s *FileStore) write(m map[string]string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating secure store directory: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing secure store: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return fmt.Errorf("writing secure store: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("writing secure store: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("writing secure store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing secure store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("writing secure store: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory SecureStore.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	sets    int
	failSet error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.values[key] = value
	s.sets++
	return nil
}

// SetCount reports how many successful Set calls were made.
func (s *MemoryStore) SetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// FailSet makes Set return err until called again with nil.
func (s *MemoryStore) FailSet(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = err
}

var (
	_ SecureStore = (*FileStore)(nil)
	_ SecureStore = (*MemoryStore)(nil)
)
