package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore writes reports to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  prefix,
	}, nil
}

// Exists checks if a report already exists.
func (s *LocalStore) Exists(ctx context.Context, ref RunRef) (bool, error) {
	_, err := os.Stat(filepath.Join(s.baseDir, ref.Path(s.prefix)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath := filepath.Join(s.baseDir, key)
	return "file://" + absPath
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}

// --- AtomicStore implementation ---

// WriteReportTemp writes parquet bytes next to their final path.
func (s *LocalStore) WriteReportTemp(ctx context.Context, ref RunRef, data []byte) (string, error) {
	tempPath := filepath.Join(s.baseDir, ref.Path(s.prefix)) + ".tmp." + uuid.NewString()
	if err := writeFile(tempPath, data); err != nil {
		return "", err
	}
	return tempPath, nil
}

// WriteManifestTemp writes a manifest next to its final path.
func (s *LocalStore) WriteManifestTemp(ctx context.Context, ref RunRef, manifest *Manifest) (string, error) {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	tempPath := filepath.Join(s.baseDir, ref.ManifestPath(s.prefix)) + ".tmp." + uuid.NewString()
	if err := writeFile(tempPath, data); err != nil {
		return "", err
	}
	return tempPath, nil
}

// Finalize renames temp files into place.
func (s *LocalStore) Finalize(ctx context.Context, ref RunRef, tempKeys []string) error {
	finalPaths := []string{
		filepath.Join(s.baseDir, ref.Path(s.prefix)),
		filepath.Join(s.baseDir, ref.ManifestPath(s.prefix)),
	}

	if len(tempKeys) != len(finalPaths) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalPaths), len(tempKeys))
	}

	for i, tempKey := range tempKeys {
		if err := os.Rename(tempKey, finalPaths[i]); err != nil {
			// Rollback: remove anything already moved
			for j := 0; j < i; j++ {
				os.Remove(finalPaths[j])
			}
			s.Abort(ctx, tempKeys[i:])
			return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalPaths[i], err)
		}
	}

	return nil
}

// Abort removes temporary files without publishing.
func (s *LocalStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := os.Remove(key); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}

// Head returns metadata about a stored file. key is relative to the base dir.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(filepath.Join(s.baseDir, key))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// List returns all keys under prefix, relative to the base dir. Temp files
// are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) && !strings.Contains(rel, ".tmp.") {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return nil
}

// Verify LocalStore implements AtomicStore.
var _ AtomicStore = (*LocalStore)(nil)
