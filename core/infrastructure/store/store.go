// Package store persists connection profiles, without secrets, so a restart
// can re-register them.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

// DefaultPath returns ~/.fanout/connections.yaml, or a path relative to the
// working directory when the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".fanout", "connections.yaml")
	}
	return filepath.Join(home, ".fanout", "connections.yaml")
}

type profileFile struct {
	Connections []domain.ProfileSummary `yaml:"connections"`
}

// FileStore keeps profiles in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored profiles. A missing file is an empty store.
func (s *FileStore) Load(_ context.Context) ([]domain.ProfileSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []domain.ProfileSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if file.Connections == nil {
		file.Connections = []domain.ProfileSummary{}
	}
	return file.Connections, nil
}

// Save replaces the file contents atomically.
func (s *FileStore) Save(_ context.Context, profiles []domain.ProfileSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(profileFile{Connections: profiles})
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".connections-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	logging.New("store").Debugf("Saved %d profile(s) to %s", len(profiles), s.path)
	return nil
}

var _ interfaces.ProfileStore = (*FileStore)(nil)
