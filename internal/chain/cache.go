package chain

import "sync"

// timestampCache keeps block timestamps, evicting the oldest insertions once
// full.
type timestampCache struct {
	mu       sync.RWMutex
	capacity int
	values   map[uint64]uint64
	order    []uint64
	next     int
}

func newTimestampCache(capacity int) *timestampCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &timestampCache{
		capacity: capacity,
		values:   make(map[uint64]uint64, capacity),
		order:    make([]uint64, 0, capacity),
	}
}

func (c *timestampCache) get(block uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.values[block]
	return ts, ok
}

func (c *timestampCache) put(block, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[block]; ok {
		c.values[block] = ts
		return
	}
	if len(c.order) < c.capacity {
		c.order = append(c.order, block)
	} else {
		delete(c.values, c.order[c.next])
		c.order[c.next] = block
		c.next = (c.next + 1) % c.capacity
	}
	c.values[block] = ts
}

func (c *timestampCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}
