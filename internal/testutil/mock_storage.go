// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/storage"
)

// ErrInjected is returned by operations made to fail with FailSaves or FailReads.
var ErrInjected = errors.New("injected storage failure")

// MockStorage implements storage.Store in memory for testing
type MockStorage struct {
	mu        sync.RWMutex
	files     map[string]*models.FileInfo
	fileData  map[string][]byte
	failSaves int // saves left before SaveBytes starts failing; -1 never
	failReads map[string]bool
	deleted   []string
}

// NewMockStorage creates a new empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:     make(map[string]*models.FileInfo),
		fileData:  make(map[string][]byte),
		failSaves: -1,
		failReads: make(map[string]bool),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, data)
}

func (m *MockStorage) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSaves == 0 {
		return nil, ErrInjected
	}
	if m.failSaves > 0 {
		m.failSaves--
	}

	id := generateTestID()
	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}

	m.files[id] = file
	m.fileData[id] = append([]byte(nil), data...)
	return file, nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return file, nil
}

func (m *MockStorage) ReadFile(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failReads[id] {
		return nil, ErrInjected
	}
	data, ok := m.fileData[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, id)
	delete(m.fileData, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[id]; !ok {
		return "", storage.ErrNotFound
	}
	return "/mock/path/" + id, nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddFile adds a file directly to the mock
func (m *MockStorage) AddFile(id string, name string, data []byte) models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}
	m.files[id] = file
	m.fileData[id] = data
	return *file
}

// FailSaves makes SaveBytes fail once n more saves have succeeded.
func (m *MockStorage) FailSaves(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSaves = n
}

// FailReads makes ReadFile fail for id.
func (m *MockStorage) FailReads(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads[id] = true
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Deleted returns the IDs passed to Delete, in call order.
func (m *MockStorage) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
