package cachestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no cache engine is configured
// and as the store implementation in tests. Entries expire lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

// Get retrieves the payload for key.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores value under key with the given TTL class.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl TTL) error {
	if key == "" {
		return ErrEmptyKey
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		value:     stored,
		expiresAt: time.Now().Add(ttl.Duration()),
	}
	return nil
}

// Exists reports whether key currently has a live entry.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := m.Get(ctx, key)
	return found, err
}

// Delete removes the entry for key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of live entries, counting unexpired ones only.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	n := 0
	for _, entry := range m.entries {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}
