package align

import "sync"

// LineCache holds the coarse azimuth offset of one acquisition line. It is
// computed at the first slave subswath and reused, including a value of 0.
type LineCache struct {
	mu       sync.Mutex
	value    int
	computed bool
}

// Get returns the cached value and whether it has been computed.
func (c *LineCache) Get() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.computed
}

// Set stores v and marks the cache computed.
func (c *LineCache) Set(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.computed = true
}
