// Package kv defines the key-value medium the version store persists to.
//
// A Backend only has to provide atomic single-key reads and writes. There are
// no cross-key transactions; callers that need atomic multi-record updates
// keep those records under one key.
package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Backend is a key-value storage medium
type Backend interface {
	// Get returns the value for key and whether it exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// EstimateUsage returns the summed byte length of keys and values under a key prefix
	EstimateUsage(ctx context.Context, namespace string) (int64, error)
	// Close releases the backend
	Close() error
}

// MemoryBackend keeps everything in a map. It is used for tests and for
// ephemeral stores.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Set stores a copy of value
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}

// Delete removes key
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// EstimateUsage sums key and value lengths under namespace
func (m *MemoryBackend) EstimateUsage(ctx context.Context, namespace string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for k, v := range m.data {
		if strings.HasPrefix(k, namespace) {
			total += int64(len(k) + len(v))
		}
	}
	return total, nil
}

// Keys returns the sorted keys under prefix
func (m *MemoryBackend) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Close is a no-op
func (m *MemoryBackend) Close() error {
	return nil
}
