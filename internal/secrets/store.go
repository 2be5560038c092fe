// Package secrets provides credential lookup for providers and tool
// plugins. Stores resolve secret identifiers (BRAVE_SEARCH_API_KEY,
// ANTHROPIC_API_KEY, ...) to values without the callers knowing where
// the value came from.
package secrets

import (
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Store resolves a secret by identifier. The second return reports
// whether the secret exists and is non-empty.
type Store interface {
	Get(name string) (string, bool)
}

// EnvStore reads secrets from the process environment.
type EnvStore struct{}

// NewEnvStore returns a Store backed by os.Getenv.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// Get returns the environment variable value. Empty values are treated
// as absent.
func (s *EnvStore) Get(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", false
	}
	return v, true
}

// FileStore reads secrets from a YAML file of flat string pairs and
// watches it for out-of-band edits. Reload failures keep the last good
// snapshot.
type FileStore struct {
	path string

	mu      sync.RWMutex
	values  map[string]string
	watcher *fsnotify.Watcher
}

// NewFileStore loads the file at path and starts watching it. A missing
// file is not an error; the store is empty until the file appears.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]string),
	}
	s.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s.watcher = watcher

	// Watch the directory rather than the file so atomic
	// rename-into-place edits are observed.
	dir := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		dir = path[:idx]
	}
	if dir == path || dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go s.watch()
	return s, nil
}

// Get returns the latest loaded value for name.
func (s *FileStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Close stops the file watcher.
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *FileStore) watch() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				s.reload()
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *FileStore) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	parsed := make(map[string]string)
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return
	}
	s.mu.Lock()
	s.values = parsed
	s.mu.Unlock()
}

// Chain consults stores in order and returns the first hit.
type Chain []Store

// Get returns the first store's value for name.
func (c Chain) Get(name string) (string, bool) {
	for _, s := range c {
		if v, ok := s.Get(name); ok {
			return v, true
		}
	}
	return "", false
}

// Static is a fixed in-memory store, used in tests and for session
// overrides.
type Static map[string]string

// Get returns the mapped value for name.
func (s Static) Get(name string) (string, bool) {
	v, ok := s[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
