package cache

import (
	"sync"
	"time"

	"signal_bot/internal/metrics"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache — map с фиксированным TTL. Запись валидна, пока now-storedAt < ttl.
// Устаревшие записи удаляются только в Sweep (или перезаписью).
type Cache[K comparable, V any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu     sync.Mutex
	items  map[K]entry[V]
	hits   uint64
	misses uint64
}

func New[K comparable, V any](name string, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		name:  name,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[K]entry[V]),
	}
}

// WithClock подменяет часы (для тестов).
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if ok && c.now().Sub(e.storedAt) < c.ttl {
		c.hits++
		metrics.CacheHits.WithLabelValues(c.name).Inc()
		return e.value, true
	}

	c.misses++
	metrics.CacheMisses.WithLabelValues(c.name).Inc()
	var zero V
	return zero, false
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Sweep удаляет устаревшие записи и возвращает их количество.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.items {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K, V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
