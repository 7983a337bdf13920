package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(maxEntries int) (*Memory, *time.Time) {
	m := NewMemory(maxEntries)
	now := time.Now()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestSetGet(t *testing.T) {
	m, _ := newTestCache(10)

	m.Set("k", "v", time.Second)

	got, ok := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGetMissing(t *testing.T) {
	m, _ := newTestCache(10)

	_, ok := m.Get("absent")
	assert.False(t, ok)
}

func TestExpiryIsLazy(t *testing.T) {
	m, now := newTestCache(10)

	m.Set("k", "v", time.Second)
	*now = now.Add(2 * time.Second)

	_, ok := m.Get("k")
	assert.False(t, ok)
	// The expired entry no longer occupies capacity
	assert.Equal(t, 0, m.Len())
}

func TestExpiryBoundary(t *testing.T) {
	m, now := newTestCache(10)

	m.Set("k", "v", time.Second)
	*now = now.Add(time.Second)

	// expiry exactly at "now" counts as expired
	_, ok := m.Get("k")
	assert.False(t, ok)
}

func TestOverwriteKeepsSingleEntry(t *testing.T) {
	m, _ := newTestCache(10)

	m.Set("k", "v1", time.Second)
	m.Set("k", "v2", time.Second)

	got, ok := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 1, m.Len())
}

func TestEvictionPurgesExpiredFirst(t *testing.T) {
	m, now := newTestCache(10)

	for i := 0; i < 5; i++ {
		m.Set(fmt.Sprintf("short%d", i), i, time.Second)
	}
	for i := 0; i < 5; i++ {
		m.Set(fmt.Sprintf("long%d", i), i, time.Hour)
	}
	*now = now.Add(2 * time.Second)

	// Cache is at capacity; the short-TTL entries are expired and must be
	// purged before anything live is evicted.
	m.Set("new", "v", time.Hour)

	for i := 0; i < 5; i++ {
		_, ok := m.Get(fmt.Sprintf("long%d", i))
		assert.True(t, ok, "live entry long%d should survive eviction", i)
	}
	got, ok := m.Get("new")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestEvictionDropsOldestTenPercent(t *testing.T) {
	m, _ := newTestCache(10)

	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i, time.Hour)
	}

	// Nothing is expired, so the oldest entry by insertion order goes.
	m.Set("overflow", "v", time.Hour)

	_, ok := m.Get("k0")
	assert.False(t, ok, "oldest entry should be evicted")

	_, ok = m.Get("k1")
	assert.True(t, ok)

	got, ok := m.Get("overflow")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestDelete(t *testing.T) {
	m, _ := newTestCache(10)

	m.Set("k", "v", time.Hour)
	m.Delete("k")

	_, ok := m.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "stats:dashboard", StatsKey())
	assert.Equal(t, "qr:my-page", QRKey("my-page"))
}
