package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Store is the process-local persisted key/value store backing the
// smartbin_* keys. Single-tab scope: one JSON file under the state dir.
type Store struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &Store{
		path:   filepath.Join(dir, "client-state.json"),
		values: map[string]string{},
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			// A corrupt state file is discarded rather than wedging startup.
			s.values = map[string]string{}
		}
	}

	return s, nil
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Set(key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.persistLocked()
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}
