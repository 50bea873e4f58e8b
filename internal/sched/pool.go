package sched

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/renderkit/go-renderpool/internal/constants"
	"github.com/renderkit/go-renderpool/internal/interfaces"
	"github.com/renderkit/go-renderpool/internal/pix"
)

// ErrPoolStopped is delivered to a job's callback when the job is submitted
// after Close.
var ErrPoolStopped = errors.New("worker pool stopped")

// Logger is the minimal logging interface threaded through the pool
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Config configures a worker pool
type Config struct {
	Logger   Logger
	Observer interfaces.Observer

	// CacheEntries overrides the per-worker pixmap cache ceiling (default 32)
	CacheEntries int
}

// jobQueue is a FIFO of pending jobs, guarded by the pool mutex.
type jobQueue []*Job

func (q *jobQueue) push(j *Job) {
	*q = append(*q, j)
}

func (q *jobQueue) pop() *Job {
	old := *q
	j := old[0]
	old[0] = nil
	*q = old[1:]
	return j
}

func (q *jobQueue) len() int { return len(*q) }

// Pool is a fixed-but-growable set of long-lived workers pulling render jobs
// from two priority lanes. Workers prefer the pooled-buffer lane because it
// carries better amortized cost. The pool persists across batches; worker
// count only grows (shrinking is not supported).
//
// outstanding counts enqueued-but-not-completed jobs. It is incremented
// strictly before a job becomes visible to workers and decremented strictly
// after the job's callback has returned, which makes it the sole trustworthy
// signal for backpressure and shutdown readiness. Queue occupancy is not a
// substitute: a queue reports empty after dequeue but before completion.
type Pool struct {
	cfg Config

	mu       sync.Mutex
	workCond *sync.Cond // workers wait here for work, stop, or clear
	capCond  *sync.Cond // producers wait here for outstanding capacity
	pooledQ  jobQueue
	ownedQ   jobQueue
	workers  int
	stopped  bool
	clearGen uint64

	outstanding    atomic.Int64
	maxOutstanding atomic.Int64 // 0 = unbounded

	// Per-source lock registry, keyed by source identity. Entries are
	// refcounted so concurrent batches over one source share a lock while
	// unrelated sources proceed independently.
	srcMu    sync.Mutex
	srcLocks map[interfaces.Source]*SourceLock

	wg sync.WaitGroup
}

// New creates an empty pool. Workers are spawned lazily via EnsureWorkers.
func New(cfg Config) *Pool {
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = constants.DefaultCacheEntries
	}
	p := &Pool{
		cfg:      cfg,
		srcLocks: make(map[interfaces.Source]*SourceLock),
	}
	p.workCond = sync.NewCond(&p.mu)
	p.capCond = sync.NewCond(&p.mu)
	return p
}

// AcquireSource pins and returns the serialization lock for a source,
// creating it on first use. Every AcquireSource must be paired with a
// ReleaseSource once the caller is done with the source.
func (p *Pool) AcquireSource(src interfaces.Source) *SourceLock {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()

	l := p.srcLocks[src]
	if l == nil {
		l = &SourceLock{}
		p.srcLocks[src] = l
	}
	l.refs++
	return l
}

// ReleaseSource unpins a source's lock, dropping the registry entry when the
// last user releases it.
func (p *Pool) ReleaseSource(src interfaces.Source) {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()

	l := p.srcLocks[src]
	if l == nil {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(p.srcLocks, src)
	}
}

// EnsureWorkers grows the pool to at least n workers. Existing workers are
// never killed to shrink the pool.
func (p *Pool) EnsureWorkers(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	for p.workers < n {
		id := p.workers
		p.workers++
		p.wg.Add(1)
		go p.worker(id)
		if p.cfg.Logger != nil {
			p.cfg.Logger.Debugf("spawned worker %d", id)
		}
	}
}

// Workers returns the current worker count.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Outstanding returns the number of enqueued-but-not-completed jobs.
func (p *Pool) Outstanding() int {
	return int(p.outstanding.Load())
}

// SetMaxOutstanding sets the backpressure ceiling. 0 disables backpressure.
func (p *Pool) SetMaxOutstanding(n int) {
	p.maxOutstanding.Store(int64(n))
}

// MaxOutstanding returns the current backpressure ceiling.
func (p *Pool) MaxOutstanding() int {
	return int(p.maxOutstanding.Load())
}

// AwaitCapacity blocks until n more jobs fit under the outstanding ceiling,
// or returns immediately when the ceiling is unset. For n larger than the
// ceiling itself the wait is for min(n, ceiling) slots, so an oversized bulk
// submission may transiently overshoot the nominal bound; callers wanting a
// strict bound submit one job at a time.
func (p *Pool) AwaitCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		max := p.maxOutstanding.Load()
		if max <= 0 || p.stopped {
			return
		}
		need := int64(n)
		if need > max {
			need = max
		}
		if p.outstanding.Load()+need <= max {
			return
		}
		p.capCond.Wait()
	}
}

// Submit enqueues one job. Never blocks on consumers; pair with
// AwaitCapacity for backpressure. A job submitted after Close fails through
// its callback with ErrPoolStopped.
func (p *Pool) Submit(j *Job) {
	depth := p.outstanding.Add(1)
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveOutstanding(uint32(depth))
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		j.deliver(nil, ErrPoolStopped)
		p.finishJob(j)
		return
	}
	p.enqueueLocked(j)
	p.workCond.Signal()
	p.mu.Unlock()
}

// SubmitBulk enqueues a batch of jobs in one queue operation.
func (p *Pool) SubmitBulk(jobs []*Job) {
	if len(jobs) == 0 {
		return
	}
	depth := p.outstanding.Add(int64(len(jobs)))
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveOutstanding(uint32(depth))
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		for _, j := range jobs {
			j.deliver(nil, ErrPoolStopped)
			p.finishJob(j)
		}
		return
	}
	for _, j := range jobs {
		p.enqueueLocked(j)
	}
	p.workCond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) enqueueLocked(j *Job) {
	if j.Pooled {
		p.pooledQ.push(j)
	} else {
		p.ownedQ.push(j)
	}
}

// tryDequeueLocked pops the next job, preferring the pooled lane.
func (p *Pool) tryDequeueLocked() *Job {
	if p.pooledQ.len() > 0 {
		return p.pooledQ.pop()
	}
	if p.ownedQ.len() > 0 {
		return p.ownedQ.pop()
	}
	return nil
}

// ClearCaches asks every worker to drop its pooled pixmaps without stopping
// the pool. Reclaims memory between unrelated batches on a long-lived pool.
func (p *Pool) ClearCaches() {
	p.mu.Lock()
	p.clearGen++
	p.workCond.Broadcast()
	p.mu.Unlock()
}

// Close stops the pool cooperatively: the stop flag is set, every worker is
// woken, drains the remaining queue, clears its own cache, and exits; Close
// returns after joining them all. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	p.workCond.Broadcast()
	p.capCond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	if p.cfg.Logger != nil {
		p.cfg.Logger.Debugf("pool stopped")
	}
}

// worker is the run loop of one long-lived worker goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	cache := newPixCache(p.cfg.CacheEntries, p.cfg.Observer)
	var gen uint64

	for {
		p.mu.Lock()
		for {
			if p.clearGen != gen {
				gen = p.clearGen
				p.mu.Unlock()
				cache.Clear()
				p.mu.Lock()
				continue
			}
			if p.pooledQ.len() > 0 || p.ownedQ.len() > 0 {
				break
			}
			if p.stopped {
				p.mu.Unlock()
				// The owning worker tears down its own cache, before this
				// goroutine returns. This is the only shutdown path.
				cache.Clear()
				if p.cfg.Logger != nil {
					p.cfg.Logger.Debugf("worker %d exiting", id)
				}
				return
			}
			p.workCond.Wait()
		}
		j := p.tryDequeueLocked()
		p.mu.Unlock()

		p.execute(j, cache)
	}
}

// execute runs one job: load and render under the source lock, defer the
// unit handle, then invoke the callback outside the lock, return the buffer
// to the cache, and finally mark the job complete.
func (p *Pool) execute(j *Job, cache *pixCache) {
	b := j.Batch
	obs := p.cfg.Observer

	loadStart := time.Now()
	b.lock.Lock()
	u, err := b.Source.OpenUnit(j.Unit)
	loadNs := uint64(time.Since(loadStart).Nanoseconds())
	if err != nil {
		b.lock.Unlock()
		if obs != nil {
			obs.ObserveLoad(loadNs, false)
		}
		if p.cfg.Logger != nil {
			p.cfg.Logger.Debugf("unit %d load failed: %v", j.Unit, err)
		}
		j.deliver(nil, &UnitError{Unit: j.Unit, Stage: "load", Err: err})
		p.finishJob(j)
		return
	}
	if obs != nil {
		obs.ObserveLoad(loadNs, true)
	}

	var dst *pix.Pixmap
	if j.Pooled {
		dst = cache.Acquire(j.Width, j.Height, j.Format)
	} else {
		dst = pix.New(j.Width, j.Height, j.Format)
	}

	renderStart := time.Now()
	rerr := b.Source.RenderUnit(u, dst, j.Params)
	renderNs := uint64(time.Since(renderStart).Nanoseconds())

	// The unit handle is never closed here. Handles share state with the
	// source; the collector closes them under the source lock after the
	// whole batch completes.
	b.Collector.Add(u)
	b.lock.Unlock()

	if rerr != nil {
		if obs != nil {
			obs.ObserveRender(0, renderNs, false)
		}
		if j.Pooled {
			cache.Release(dst)
		}
		j.deliver(nil, &UnitError{Unit: j.Unit, Stage: "render", Err: rerr})
		p.finishJob(j)
		return
	}
	if obs != nil {
		obs.ObserveRender(uint64(dst.Size()), renderNs, true)
	}

	// Callback runs outside the lock. For pooled jobs the buffer is only
	// lent out; ownership returns to the cache as soon as the callback does.
	j.deliver(dst, nil)
	if j.Pooled {
		cache.Release(dst)
	}
	p.finishJob(j)
}

// finishJob records completion after the callback has fully returned:
// batch tracker first, then the outstanding decrement that wakes producers
// blocked in AwaitCapacity.
func (p *Pool) finishJob(j *Job) {
	j.Batch.unitDone()
	p.outstanding.Add(-1)

	p.mu.Lock()
	p.capCond.Broadcast()
	p.mu.Unlock()
}
