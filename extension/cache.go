package extension

import (
	"sync"

	"github.com/zeebo/blake3"
)

// Cache memoizes Parse keyed by the blake3 digest of the
// template text. It is safe for concurrent use. Failed
// parses are not cached.
type Cache struct {
	mu      sync.RWMutex
	entries map[[32]byte]*Template
	limit   int
}

// NewCache returns a cache holding at most limit entries;
// limit <= 0 means unbounded. When full, the cache is
// emptied before the next insert.
func NewCache(limit int) *Cache {
	return &Cache{
		entries: make(map[[32]byte]*Template),
		limit:   limit,
	}
}

// Parse returns the parsed template for text, parsing it
// on a miss. The result is a private copy.
func (c *Cache) Parse(text string) (*Template, error) {
	key := blake3.Sum256([]byte(text))

	c.mu.RLock()
	tpl, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		return tpl.clone(), nil
	}

	tpl, err := Parse(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.limit > 0 && len(c.entries) >= c.limit {
		clear(c.entries)
	}

	c.entries[key] = tpl
	c.mu.Unlock()

	return tpl.clone(), nil
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
