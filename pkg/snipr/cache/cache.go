// Package cache provides a bounded in-process TTL cache used as read-through
// memoization for dashboard stats and QR payloads. It is never a source of
// truth; callers accept staleness up to the entry TTL.
package cache

import (
	"sync"
	"time"
)

// Cache is the read-through memoization contract. Handlers take this
// interface so tests can substitute a deterministic fake.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Memory is a capacity-bounded map with per-entry expiry. Eviction is by
// insertion order, not access frequency: when full, already-expired entries
// are purged first, then the oldest ~10% of entries are dropped.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	order      []string
	maxEntries int
	now        func() time.Time
}

// NewMemory creates a cache bounded to maxEntries entries.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Memory{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Set stores value with absolute expiry now+ttl.
func (m *Memory) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.entries[key]
	if !exists && len(m.entries) >= m.maxEntries {
		m.purgeExpiredLocked()

		if len(m.entries) >= m.maxEntries {
			m.evictOldestLocked(m.maxEntries / 10)
		}
	}

	m.entries[key] = entry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
	if !exists {
		m.order = append(m.order, key)
	}
}

// Get returns the value if present and not yet expired. Expired entries are
// deleted lazily on access.
func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}

	if !e.expiresAt.After(m.now()) {
		m.deleteLocked(key)
		return nil, false
	}

	return e.value, true
}

// Delete removes an entry.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(key)
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) purgeExpiredLocked() {
	now := m.now()
	kept := m.order[:0]
	for _, key := range m.order {
		e, ok := m.entries[key]
		if !ok {
			continue
		}
		if !e.expiresAt.After(now) {
			delete(m.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
}

func (m *Memory) evictOldestLocked(n int) {
	if n < 1 {
		n = 1
	}
	if n > len(m.order) {
		n = len(m.order)
	}
	for _, key := range m.order[:n] {
		delete(m.entries, key)
	}
	m.order = append(m.order[:0], m.order[n:]...)
}

func (m *Memory) deleteLocked(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Key builders shared by the handlers that memoize through the cache.
func StatsKey() string        { return "stats:dashboard" }
func QRKey(slug string) string { return "qr:" + slug }
