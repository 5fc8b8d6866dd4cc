package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryStore is the in-process fallback. Same key/TTL semantics as the
// redis path so callers cannot tell which one served them.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

func (m *memoryStore) get(key string, now time.Time) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.After(now) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *memoryStore) set(key string, value []byte, ttl time.Duration, now time.Time) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	m.mu.Unlock()
}

func (m *memoryStore) sweep(now time.Time) {
	m.mu.Lock()
	for k, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}

func (m *memoryStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
