package join

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTableNotFound means a requested join table is absent from the
	// cache. This is fatal and non-retryable for the scan: retrying
	// would serve stale or absent join data, so the caller must
	// recompute and resubmit the table before trying again.
	ErrTableNotFound = errors.New("join table not found")
)

// Cache holds precomputed join tables by identifier. Table distribution
// and eviction are owned elsewhere; the execution core only ever reads.
// Many scans may probe the same table concurrently.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		tables: make(map[string]*Table),
	}
}

// Put registers a table under an identifier, replacing any previous one.
func (c *Cache) Put(id string, t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[id] = t
}

// Remove drops a table.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, id)
}

// Table resolves an identifier. Absence is a hard error carrying the
// identifier so the caller can decide whether to recompute the table.
func (c *Cache) Table(id string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, id)
	}
	return t, nil
}
