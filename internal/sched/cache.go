package sched

import (
	"github.com/renderkit/go-renderpool/internal/interfaces"
	"github.com/renderkit/go-renderpool/internal/pix"
)

// pixCache is a per-worker pool of reusable output pixmaps keyed by exact
// shape and format.
//
// The cache is thread-affine: it is owned by exactly one worker goroutine
// and therefore needs no lock. Teardown is explicit, never finalizer-driven;
// the owning worker calls Clear on the clear-caches signal and as the last
// thing before its run loop returns. Implicit destruction at goroutine exit
// is exactly the kind of cleanup-on-an-unguaranteed-timeline this type
// exists to avoid.
type pixCache struct {
	entries []*pix.Pixmap
	max     int
	obs     interfaces.Observer
}

func newPixCache(max int, obs interfaces.Observer) *pixCache {
	return &pixCache{max: max, obs: obs}
}

// Acquire returns a pooled pixmap matching the exact shape+format, removing
// it from the pool, or allocates fresh on a miss.
func (c *pixCache) Acquire(width, height int, format pix.Format) *pix.Pixmap {
	for i, pm := range c.entries {
		if pm.Matches(width, height, format) {
			last := len(c.entries) - 1
			c.entries[i] = c.entries[last]
			c.entries[last] = nil
			c.entries = c.entries[:last]
			if c.obs != nil {
				c.obs.ObserveCacheHit()
			}
			return pm
		}
	}
	if c.obs != nil {
		c.obs.ObserveCacheMiss()
	}
	return pix.New(width, height, format)
}

// Release returns a pixmap to the pool, or drops it if the pool is at its
// ceiling.
func (c *pixCache) Release(pm *pix.Pixmap) {
	if pm == nil {
		return
	}
	if len(c.entries) >= c.max {
		if c.obs != nil {
			c.obs.ObserveCacheEvict(1)
		}
		return
	}
	c.entries = append(c.entries, pm)
}

// Clear drops every pooled pixmap. Must be invoked by the owning worker.
func (c *pixCache) Clear() {
	n := len(c.entries)
	for i := range c.entries {
		c.entries[i] = nil
	}
	c.entries = c.entries[:0]
	if n > 0 && c.obs != nil {
		c.obs.ObserveCacheEvict(n)
	}
}

// Len returns the number of pooled entries.
func (c *pixCache) Len() int {
	return len(c.entries)
}
