// Package cache - простой TTL-кэш в памяти перед частыми запросами чтения.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value    any
	storedAt time.Time
}

// Stats - снимок состояния кэша.
type Stats struct {
	Entries          int     `json:"entries"`
	OldestAgeSeconds float64 `json:"oldest_age_seconds"`
	NewestAgeSeconds float64 `json:"newest_age_seconds"`
}

// Cache защищён одним мьютексом; срок жизни передаётся при чтении.
type Cache struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

// New создаёт пустой кэш. clock может быть nil.
func New(clock func() time.Time) *Cache {
	if clock == nil {
		clock = time.Now
	}
	return &Cache{items: make(map[string]entry), now: clock}
}

// Get возвращает значение, если оно моложе ttl. Просроченная запись удаляется.
func (c *Cache) Get(key string, ttl time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= ttl {
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

// Set сохраняет значение с текущим временем.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.items[key] = entry{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Delete удаляет запись и сообщает, была ли она.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	return true
}

// Clear очищает кэш.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]entry)
	c.mu.Unlock()
}

// CleanupExpired удаляет записи старше ttl и возвращает их число.
func (c *Cache) CleanupExpired(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.items {
		if now.Sub(e.storedAt) >= ttl {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Stats возвращает число записей и возраст самой старой и самой новой.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{Entries: len(c.items)}
	if len(c.items) == 0 {
		return st
	}

	now := c.now()
	var oldest, newest time.Time
	for _, e := range c.items {
		if oldest.IsZero() || e.storedAt.Before(oldest) {
			oldest = e.storedAt
		}
		if newest.IsZero() || e.storedAt.After(newest) {
			newest = e.storedAt
		}
	}
	st.OldestAgeSeconds = now.Sub(oldest).Seconds()
	st.NewestAgeSeconds = now.Sub(newest).Seconds()
	return st
}
