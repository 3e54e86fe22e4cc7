package directions

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-hail/internal/models"
)

// Cache is a tiny TTL cache for reverse-geocode lookups keyed by coordinate.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	addr string
	ts   time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func (c *Cache) Get(at models.Coord) (string, bool) {
	k := keyFor(at)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return "", false
	}
	return e.addr, true
}

func (c *Cache) Set(at models.Coord, addr string) {
	k := keyFor(at)
	c.mu.Lock()
	c.store[k] = cacheEntry{addr: addr, ts: time.Now()}
	c.mu.Unlock()
}
