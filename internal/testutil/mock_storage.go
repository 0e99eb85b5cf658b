// Package testutil provides shared test helpers.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MockStore is an in-memory object store for tests.
type MockStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// PutErr, when set, is returned by every Put call.
	PutErr error
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{objects: make(map[string][]byte)}
}

// Put stores object bytes under the key.
func (s *MockStore) Put(objectKey string, r io.Reader) (int64, error) {
	if s.PutErr != nil {
		return 0, s.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey] = data
	return int64(len(data)), nil
}

// Get returns a reader over the stored bytes.
func (s *MockStore) Get(objectKey string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", objectKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes an object.
func (s *MockStore) Delete(objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey)
	return nil
}

// Exists reports whether an object is present.
func (s *MockStore) Exists(objectKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[objectKey]
	return ok
}

// Seed stores raw bytes directly, bypassing Put error injection.
func (s *MockStore) Seed(objectKey string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey] = data
}

// Len returns the number of stored objects.
func (s *MockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
