package store

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sort"
	"strings"
	"sync"

	"s3backup/internal/sb"
)

type memoryObject struct {
	data []byte
	meta map[string]string
}

// MemoryStore is an in-memory ObjectStore, useful for testing.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	objects map[string]memoryObject
	mu      sync.RWMutex
}

var _ sb.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// EnsureBucket always succeeds for the in-memory store.
func (m *MemoryStore) EnsureBucket(context.Context) error { return nil }

// Put stores the content of localPath under key.
func (m *MemoryStore) Put(_ context.Context, key, localPath string, metadata map[string]string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	m.PutBytes(key, data, metadata)
	return nil
}

// PutBytes stores data under key directly.
func (m *MemoryStore) PutBytes(key string, data []byte, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, meta: maps.Clone(metadata)}
}

// Bytes returns the stored content of key.
func (m *MemoryStore) Bytes(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}

// Head returns the metadata of key.
func (m *MemoryStore) Head(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sb.ErrNotFound, key)
	}
	meta := maps.Clone(obj.meta)
	if meta == nil {
		meta = map[string]string{}
	}
	return meta, nil
}

// GetToFile writes the content of key to localPath.
func (m *MemoryStore) GetToFile(_ context.Context, key, localPath string) error {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", sb.ErrNotFound, key)
	}
	if err := os.WriteFile(localPath, obj.data, 0600); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// List returns the keys under prefix.
func (m *MemoryStore) List(_ context.Context, prefix, delimiter string) ([]string, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	return filterKeys(keys, prefix, delimiter), nil
}

// filterKeys keeps the keys under prefix, dropping those that continue past
// a delimiter, and sorts the result.
func filterKeys(keys []string, prefix, delimiter string) []string {
	var out []string
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		if delimiter != "" && strings.Contains(rest, delimiter) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
