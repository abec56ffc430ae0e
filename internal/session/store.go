package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is the persisted session state: the bearer credential and the user
// profile echoed back by the login endpoint. The two are written and cleared
// together, never independently.
type Record struct {
	Token   string          `json:"token"`
	Profile json.RawMessage `json:"user,omitempty"`
}

// Empty reports whether either half of the session state is missing. The
// halves are only ever written together, so a record holding one without the
// other is treated as absent.
func (r Record) Empty() bool { return r.Token == "" || len(r.Profile) == 0 }

// Store describes the durable key-value persistence behind the session.
type Store interface {
	Load() (Record, error)
	Save(Record) error
	Clear() error
}

const stateFile = "session.json"

// FileStore persists the session as a single JSON file so it survives
// process restarts. Writes go through a temp file and rename so a crash
// never leaves a half-written record.
type FileStore struct {
	path string
}

// NewFileStore creates the state directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: create state dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, stateFile)}, nil
}

func (s *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("session: read state: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("session: decode state: %w", err)
	}
	return rec, nil
}

func (s *FileStore) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("session: write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("session: replace state: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: clear state: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu  sync.Mutex
	rec Record
	set bool
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return Record{}, nil
	}
	return s.rec, nil
}

func (s *MemStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	s.set = true
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = Record{}
	s.set = false
	return nil
}
