package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultBasePath is used when New is given an empty path.
var DefaultBasePath = filepath.Join(".switchyard", "runs")

// Repository implements ports.Repository on the local filesystem.
// Each entity is one JSON file named after its id.
type Repository[T any] struct {
	BasePath string

	mu sync.RWMutex
}

// New creates a Repository rooted at basePath.
func New[T any](basePath string) *Repository[T] {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Repository[T]{BasePath: basePath}
}

func (r *Repository[T]) path(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid id %q", id)
	}
	return filepath.Join(r.BasePath, id+".json"), nil
}

// Save persists entity atomically: it writes a temp file in the same
// directory, fsyncs it and renames it over the destination.
func (r *Repository[T]) Save(ctx context.Context, id string, entity T) error {
	destPath, err := r.path(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(r.BasePath, "tmp-"+id+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Get reads the entity, or returns nil when the file does not exist.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	filePath, err := r.path(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	data, err := os.ReadFile(filePath)
	r.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}
	return &out, nil
}

// List reads every entity in the directory. Temp files are skipped.
func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", r.BasePath, err)
	}

	out := make([]T, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.BasePath, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Delete removes the entity file and reports whether it existed.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	filePath, err := r.path(id)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete %s: %w", filePath, err)
	}
	return true, nil
}

// GenerateID returns a random UUID.
func (r *Repository[T]) GenerateID() string {
	return uuid.NewString()
}
