package resolve

import (
	"sync"

	"photocull/internal/metrics"
)

// recordCache is the bounded metadata memory cache: identity key to
// DisplayRecord, FIFO-evicted once the entry count passes the ceiling.
type recordCache struct {
	mu      sync.Mutex
	entries map[string]DisplayRecord
	order   []string
	ceiling int
}

func newRecordCache(ceiling int) *recordCache {
	return &recordCache{
		entries: make(map[string]DisplayRecord),
		ceiling: ceiling,
	}
}

func (c *recordCache) get(key string) (DisplayRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[key]
	return rec, ok
}

func (c *recordCache) put(key string, rec DisplayRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = rec

	// oldest entries go first, insertion order
	for len(c.entries) > c.ceiling && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			metrics.MetadataCacheEvictions.Inc()
		}
	}
	metrics.MetadataCacheEntries.Set(float64(len(c.entries)))
}

func (c *recordCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *recordCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]DisplayRecord)
	c.order = nil
	metrics.MetadataCacheEntries.Set(0)
}
