package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultFilePermissions is the permission of every record file.
const DefaultFilePermissions = 0o600

// ErrNotFound is returned when the record file does not exist.
var ErrNotFound = errors.New("record not found")

// Repository defines persistence operations for one record.
type Repository[T any] interface {
	Load(ctx context.Context) (*T, error)
	Save(ctx context.Context, record *T) error
	Remove(ctx context.Context) error
}

// FileRepository persists one record as a YAML file.
// Saves go through a temporary file renamed over the previous record, so a
// reader never sees a truncated document.
type FileRepository[T any] struct {
	fs afero.Fs
	// path is the filesystem location of the YAML file.
	path string
	// mu protects concurrent access to the file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository[T any](fs afero.Fs, path string) *FileRepository[T] {
	return &FileRepository[T]{
		fs:   fs,
		path: filepath.Clean(path),
	}
}

// Path returns the location of the record.
func (r *FileRepository[T]) Path() string {
	return r.path
}

// Exists reports whether the record file exists.
func (r *FileRepository[T]) Exists(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := afero.Exists(r.fs, r.path)
	if err != nil {
		return false, fmt.Errorf("stat '%s': %w", r.path, err)
	}

	return exists, nil
}

// Load reads the record from disk.
func (r *FileRepository[T]) Load(_ context.Context) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read '%s': %w", r.path, err)
	}

	record := new(T)
	if err = yaml.Unmarshal(contents, record); err != nil {
		return nil, fmt.Errorf("decode '%s': %w", r.path, err)
	}

	return record, nil
}

// Save writes the record to disk.
func (r *FileRepository[T]) Save(_ context.Context, record *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode '%s': %w", r.path, err)
	}

	if err = r.fs.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("create directory of '%s': %w", r.path, err)
	}

	tmp := r.path + ".tmp"
	if err = afero.WriteFile(r.fs, tmp, data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write '%s': %w", tmp, err)
	}

	if err = r.fs.Rename(tmp, r.path); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("rename '%s': %w", tmp, err)
	}

	return nil
}

// Remove deletes the record. A missing record is not an error.
func (r *FileRepository[T]) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fs.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove '%s': %w", r.path, err)
	}

	return nil
}
