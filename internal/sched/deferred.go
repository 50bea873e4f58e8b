package sched

import (
	"errors"
	"sync"

	"github.com/renderkit/go-renderpool/internal/interfaces"
)

// Collector defers destruction of per-job unit handles until the whole batch
// completes. Closing a unit touches structures shared with the source, so
// closes may never run concurrently with loads or renders; workers only
// append here (under the source lock) and the coordinator drains once at the
// end of the batch, also under the source lock.
//
// The collector takes ownership of each handle at Add time; drain is the
// only path that closes them.
type Collector struct {
	mu      sync.Mutex
	handles []interfaces.Unit
	drained bool
}

// NewCollector creates an empty collector for one batch.
func NewCollector() *Collector {
	return &Collector{}
}

// Add transfers ownership of a unit handle to the collector. Safe to call
// from any worker concurrently.
func (c *Collector) Add(u interfaces.Unit) {
	if u == nil {
		return
	}
	c.mu.Lock()
	c.handles = append(c.handles, u)
	c.mu.Unlock()
}

// Len returns the number of handles currently held.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// drain closes every handle in reverse-insertion order and empties the
// collection. Later-loaded units are more likely to reference structures
// established by earlier ones, so newest-first keeps partially-torn-down
// state out of reach of the remaining closes.
//
// The token proves the caller holds the source lock. A second drain is a
// no-op.
func (c *Collector) drain(_ sourceToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drained {
		return nil
	}
	c.drained = true

	var errs []error
	for i := len(c.handles) - 1; i >= 0; i-- {
		if err := c.handles[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.handles = nil
	return errors.Join(errs...)
}
