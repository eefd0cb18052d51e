package testing

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MockUploader keeps uploaded objects in memory.
type MockUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

// NewMockUploader creates an empty mock uploader
func NewMockUploader() *MockUploader {
	return &MockUploader{objects: make(map[string][]byte)}
}

// SetError makes every following upload fail with err
func (m *MockUploader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Upload stores body under key.
func (m *MockUploader) Upload(_ context.Context, key string, body io.Reader, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))
	}
	m.objects[key] = data
	return nil
}

// Object returns the stored object for key.
func (m *MockUploader) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects
func (m *MockUploader) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
