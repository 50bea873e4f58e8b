// Package sched implements the bounded, backpressured worker pool that
// executes per-unit render jobs against a shared, non-thread-safe source.
package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/renderkit/go-renderpool/internal/interfaces"
	"github.com/renderkit/go-renderpool/internal/pix"
)

// Job describes one unit of render work. Immutable once submitted; the queue
// owns it until exactly one worker dequeues it, then that worker owns it for
// the duration of execution.
type Job struct {
	// Unit is the index of the source unit to render
	Unit int

	// Output shape
	Width  int
	Height int
	Format pix.Format

	// Params carries transform options through to the source
	Params interfaces.RenderParams

	// Pooled selects the pooled-buffer lane. Pooled jobs render into a
	// worker-cached pixmap that is reclaimed after the callback returns;
	// owned jobs allocate fresh and hand the pixmap to the callback.
	Pooled bool

	// Batch is the shared per-batch state this job belongs to
	Batch *Batch
}

// deliver invokes the per-unit callback. Must be called outside the source
// lock, exactly once per job.
func (j *Job) deliver(dst *pix.Pixmap, err error) {
	if j.Batch.OnUnit != nil {
		j.Batch.OnUnit(j.Unit, dst, err)
	}
}

// UnitError reports a per-unit load or render failure. Failures never abort
// the batch; they reach the caller only through that unit's callback.
type UnitError struct {
	Unit  int
	Stage string // "load" or "render"
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %d: %s failed: %v", e.Unit, e.Stage, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// SourceLock is the external resource lock for one source. The whole
// load+render+defer critical section runs under it; narrower locking (load
// only) was the root cause of low-rate corruption in the ancestry of this
// design. Locks are handed out by the pool's registry so that concurrent
// batches over the same source share one lock.
type SourceLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires exclusive access to the source.
func (l *SourceLock) Lock() { l.mu.Lock() }

// Unlock releases it.
func (l *SourceLock) Unlock() { l.mu.Unlock() }

// Batch is the state shared by every job of one caller-initiated batch: the
// source, the lock serializing all access to it, the deferred release
// collector, the per-unit callback, and the completion tracker.
type Batch struct {
	Source    interfaces.Source
	Collector *Collector
	OnUnit    func(unit int, dst *pix.Pixmap, err error)

	pool *Pool
	lock *SourceLock

	remaining atomic.Int64
	done      chan struct{}
}

// NewBatch creates the shared state for a batch of the given unit count,
// pinning the pool's lock for the source until DrainDeferred runs.
func (p *Pool) NewBatch(src interfaces.Source, units int, onUnit func(int, *pix.Pixmap, error)) *Batch {
	b := &Batch{
		Source:    src,
		Collector: NewCollector(),
		OnUnit:    onUnit,
		pool:      p,
		lock:      p.AcquireSource(src),
		done:      make(chan struct{}),
	}
	b.remaining.Store(int64(units))
	return b
}

// unitDone records one fully completed job (callback already returned).
// The last one unblocks Wait.
func (b *Batch) unitDone() {
	if b.remaining.Add(-1) == 0 {
		close(b.done)
	}
}

// Remaining returns the number of submitted-but-not-completed jobs.
func (b *Batch) Remaining() int {
	return int(b.remaining.Load())
}

// Wait blocks until every job's callback has returned exactly once.
func (b *Batch) Wait() {
	<-b.done
}

// sourceToken witnesses that the holder acquired the source lock. Only
// lock-acquisition code can produce one, so the collector cannot be drained
// without exclusive access to the source.
type sourceToken struct{ _ byte }

// DrainDeferred acquires the source lock, closes every deferred unit handle
// in reverse-insertion order, and unpins the source's lock registry entry.
// Call exactly once, after Wait returns.
func (b *Batch) DrainDeferred() error {
	b.lock.Lock()
	err := b.Collector.drain(sourceToken{})
	b.lock.Unlock()
	b.pool.ReleaseSource(b.Source)
	return err
}
