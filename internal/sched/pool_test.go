package sched

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderkit/go-renderpool/internal/pix"
)

// countingObserver tallies observations with atomics so workers can report
// concurrently.
type countingObserver struct {
	loads, renders  atomic.Uint64
	hits, misses    atomic.Uint64
	evicted         atomic.Uint64
	maxOutstanding  atomic.Uint32
}

func (o *countingObserver) ObserveLoad(uint64, bool)           { o.loads.Add(1) }
func (o *countingObserver) ObserveRender(uint64, uint64, bool) { o.renders.Add(1) }
func (o *countingObserver) ObserveCacheHit()                   { o.hits.Add(1) }
func (o *countingObserver) ObserveCacheMiss()                  { o.misses.Add(1) }
func (o *countingObserver) ObserveCacheEvict(n int)            { o.evicted.Add(uint64(n)) }

func (o *countingObserver) ObserveOutstanding(depth uint32) {
	for {
		cur := o.maxOutstanding.Load()
		if depth <= cur || o.maxOutstanding.CompareAndSwap(cur, depth) {
			return
		}
	}
}

func submitAll(p *Pool, b *Batch, units, w, h int, pooled bool) {
	jobs := make([]*Job, units)
	for i := range jobs {
		jobs[i] = &Job{Unit: i, Width: w, Height: h, Format: pix.FormatRGBA, Pooled: pooled, Batch: b}
	}
	p.SubmitBulk(jobs)
}

func TestPoolExecutesBatch(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	p.EnsureWorkers(3)

	src := newFakeSource(12)
	var mu sync.Mutex
	got := make(map[int]byte)

	b := p.NewBatch(src, 12, func(unit int, dst *pix.Pixmap, err error) {
		require.NoError(t, err)
		mu.Lock()
		got[unit] = dst.Pix[0]
		mu.Unlock()
	})
	submitAll(p, b, 12, 8, 8, true)
	b.Wait()
	require.NoError(t, b.DrainDeferred())

	require.Len(t, got, 12)
	for unit, stamp := range got {
		assert.Equal(t, byte(unit), stamp)
	}
	// Every handle deferred until the drain, none closed mid-batch
	assert.Len(t, src.closed(), 12)
	assert.Equal(t, 0, p.Outstanding())
}

func TestPoolDeliversUnitErrors(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	p.EnsureWorkers(2)

	src := newFakeSource(4)
	src.openErr[1] = errors.New("missing page")
	src.renderErr[2] = errors.New("bad content stream")

	var mu sync.Mutex
	fails := make(map[int]*UnitError)

	b := p.NewBatch(src, 4, func(unit int, dst *pix.Pixmap, err error) {
		if err == nil {
			return
		}
		var ue *UnitError
		require.ErrorAs(t, err, &ue)
		mu.Lock()
		fails[unit] = ue
		mu.Unlock()
	})
	submitAll(p, b, 4, 8, 8, true)
	b.Wait()
	require.NoError(t, b.DrainDeferred())

	require.Len(t, fails, 2)
	assert.Equal(t, "load", fails[1].Stage)
	assert.Equal(t, "render", fails[2].Stage)

	// Unit 1 never opened; the other three were deferred and closed
	assert.Len(t, src.closed(), 3)
}

func TestPoolLanePreference(t *testing.T) {
	p := New(Config{})
	// No workers: inspect the queues directly
	b := p.NewBatch(newFakeSource(4), 4, nil)

	owned := &Job{Unit: 0, Pooled: false, Batch: b}
	pooled := &Job{Unit: 1, Pooled: true, Batch: b}

	p.mu.Lock()
	p.enqueueLocked(owned)
	p.enqueueLocked(pooled)

	first := p.tryDequeueLocked()
	second := p.tryDequeueLocked()
	third := p.tryDequeueLocked()
	p.mu.Unlock()

	assert.Same(t, pooled, first, "pooled lane dequeues before owned")
	assert.Same(t, owned, second)
	assert.Nil(t, third)
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := New(Config{})
	p.EnsureWorkers(1)
	p.Close()

	src := newFakeSource(1)
	var gotErr error
	b := p.NewBatch(src, 1, func(unit int, dst *pix.Pixmap, err error) {
		gotErr = err
	})
	p.Submit(&Job{Unit: 0, Width: 8, Height: 8, Format: pix.FormatRGBA, Pooled: true, Batch: b})
	b.Wait()

	assert.ErrorIs(t, gotErr, ErrPoolStopped)
	assert.Equal(t, 0, p.Outstanding())
}

func TestPoolCloseIdempotent(t *testing.T) {
	p := New(Config{})
	p.EnsureWorkers(2)
	p.Close()
	p.Close()
	assert.Equal(t, 0, p.Outstanding())
}

func TestEnsureWorkersGrowOnly(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	p.EnsureWorkers(4)
	assert.Equal(t, 4, p.Workers())

	// A smaller request never shrinks
	p.EnsureWorkers(2)
	assert.Equal(t, 4, p.Workers())

	p.EnsureWorkers(6)
	assert.Equal(t, 6, p.Workers())
}

func TestAwaitCapacityUnbounded(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	done := make(chan struct{})
	go func() {
		p.AwaitCapacity(1_000_000)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitCapacity must not block when no ceiling is set")
	}
}

func TestAwaitCapacityBlocksAtCeiling(t *testing.T) {
	obs := &countingObserver{}
	p := New(Config{Observer: obs})
	defer p.Close()
	p.EnsureWorkers(2)
	p.SetMaxOutstanding(2)

	src := newFakeSource(4)
	src.renderGate = make(chan struct{})

	b := p.NewBatch(src, 4, func(int, *pix.Pixmap, error) {})

	// Fill the ceiling with two gated jobs
	for i := 0; i < 2; i++ {
		p.AwaitCapacity(1)
		p.Submit(&Job{Unit: i, Width: 8, Height: 8, Format: pix.FormatRGBA, Pooled: true, Batch: b})
	}

	// The third submission must wait for a completion
	submitted := make(chan struct{})
	go func() {
		for i := 2; i < 4; i++ {
			p.AwaitCapacity(1)
			p.Submit(&Job{Unit: i, Width: 8, Height: 8, Format: pix.FormatRGBA, Pooled: true, Batch: b})
		}
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("submission should be blocked at the ceiling")
	case <-time.After(50 * time.Millisecond):
	}

	// Let all renders through; the producer unblocks as slots free up
	go func() {
		for i := 0; i < 4; i++ {
			src.renderGate <- struct{}{}
		}
	}()

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("producer never unblocked")
	}

	b.Wait()
	require.NoError(t, b.DrainDeferred())
	assert.LessOrEqual(t, obs.maxOutstanding.Load(), uint32(2),
		"outstanding count must respect the ceiling under per-job submission")
}

func TestClearCachesEvicts(t *testing.T) {
	obs := &countingObserver{}
	p := New(Config{Observer: obs})
	defer p.Close()
	p.EnsureWorkers(1)

	src := newFakeSource(6)
	b := p.NewBatch(src, 6, func(int, *pix.Pixmap, error) {})
	submitAll(p, b, 6, 8, 8, true)
	b.Wait()
	require.NoError(t, b.DrainDeferred())

	require.NotZero(t, obs.hits.Load(), "uniform shapes should reuse the pooled buffer")

	p.ClearCaches()

	deadline := time.Now().Add(time.Second)
	for obs.evicted.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.NotZero(t, obs.evicted.Load(), "clear signal should evict pooled buffers")
}

func TestSourceLockRegistry(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	a := newFakeSource(1)
	c := newFakeSource(1)

	la1 := p.AcquireSource(a)
	la2 := p.AcquireSource(a)
	lc := p.AcquireSource(c)

	assert.Same(t, la1, la2, "same source shares one lock")
	assert.NotSame(t, la1, lc, "distinct sources get distinct locks")

	p.ReleaseSource(a)
	p.ReleaseSource(a)
	p.ReleaseSource(c)

	// Fully released entries are dropped; the next acquire starts fresh
	la3 := p.AcquireSource(a)
	assert.NotSame(t, la1, la3)
	p.ReleaseSource(a)
}

func TestWorkersDrainQueueOnClose(t *testing.T) {
	p := New(Config{})
	p.EnsureWorkers(1)

	src := newFakeSource(8)
	var delivered atomic.Int64
	b := p.NewBatch(src, 8, func(int, *pix.Pixmap, error) {
		delivered.Add(1)
	})
	submitAll(p, b, 8, 8, 8, true)

	// Close only returns after the queue is drained and workers joined
	b.Wait()
	p.Close()
	require.NoError(t, b.DrainDeferred())
	assert.Equal(t, int64(8), delivered.Load())
	assert.Equal(t, 0, p.Outstanding())
}
