package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the descriptor to a local JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file store under dir.
func NewFileStore(dir, name string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create jobstore directory %s: %w", dir, err)
	}
	return &FileStore{path: filepath.Join(dir, fmt.Sprintf("job_%s.json", name))}, nil
}

// Load reads the descriptor from file.
func (s *FileStore) Load(ctx context.Context) (*Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("read descriptor file: %w", err)
	}
	return decode(data)
}

// Save persists the descriptor to file.
func (s *FileStore) Save(ctx context.Context, d *Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	// Write atomically
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write descriptor temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename descriptor file: %w", err)
	}

	return nil
}

// Clear removes the descriptor file.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove descriptor file: %w", err)
	}
	return nil
}

// Close is a no-op for file storage.
func (s *FileStore) Close() error {
	return nil
}

func decode(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	return &d, nil
}
