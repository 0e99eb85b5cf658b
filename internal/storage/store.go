// Package storage implements the object store behind presigned write URLs.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store defines the interface for object storage.
type Store interface {
	Put(objectKey string, r io.Reader) (int64, error)
	Get(objectKey string) (io.ReadCloser, error)
	Delete(objectKey string) error
	Exists(objectKey string) bool
}

// LocalStore implements Store on the local filesystem. Object keys use
// forward slashes and map to paths under the root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at the given directory.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating objects directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Put writes an object, replacing any existing content under the key.
func (s *LocalStore) Put(objectKey string, r io.Reader) (int64, error) {
	path, err := s.resolve(objectKey)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("creating object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating object: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("writing object: %w", err)
	}

	return size, nil
}

// Get opens an object for reading. The caller closes the reader.
func (s *LocalStore) Get(objectKey string) (io.ReadCloser, error) {
	path, err := s.resolve(objectKey)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", objectKey)
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}

	return f, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *LocalStore) Delete(objectKey string) error {
	path, err := s.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

// Exists reports whether an object is present.
func (s *LocalStore) Exists(objectKey string) bool {
	path, err := s.resolve(objectKey)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// resolve maps an object key to a filesystem path, rejecting keys that
// would escape the root.
func (s *LocalStore) resolve(objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("empty object key")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key: %s", objectKey)
	}
	return filepath.Join(s.root, clean), nil
}
