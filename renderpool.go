// Package renderpool provides a bounded, backpressured worker pool for
// rendering the units of a shared document source in parallel.
//
// The source (the document) is a single mutable data structure that is not
// safe for concurrent use. The pool serializes every load and render under
// one source lock, reuses per-worker output buffers across jobs, bounds the
// amount of in-flight work so huge batches do not balloon memory, and defers
// destruction of loaded unit handles until the batch has fully completed.
package renderpool

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/renderkit/go-renderpool/internal/constants"
	"github.com/renderkit/go-renderpool/internal/logging"
	"github.com/renderkit/go-renderpool/internal/pix"
	"github.com/renderkit/go-renderpool/internal/sched"
)

// Logger is the minimal logging interface accepted in Options. The
// internal/logging package provides an implementation; any Printf-style
// logger works.
type Logger = sched.Logger

// Options contains additional options for pool creation
type Options struct {
	// Logger for debug/info messages (if nil, no logging)
	Logger Logger

	// Observer for metrics collection (if nil, uses the built-in Metrics)
	Observer Observer

	// CacheEntries overrides the per-worker pixmap cache ceiling
	// (default: DefaultCacheEntries)
	CacheEntries int
}

// Pool is an explicit handle to a set of long-lived render workers. Workers
// are created lazily on first batch and persist across batches to amortize
// spawn cost; the pool grows on demand and never shrinks.
//
// The host application owns the handle: create it once, share it across
// batches, and Close it before library teardown. There is deliberately no
// hidden global pool.
type Pool struct {
	sched    *sched.Pool
	metrics  *Metrics
	observer Observer
	logger   Logger
	closed   atomic.Bool
}

// UnitFunc is the per-unit completion callback. It is invoked exactly once
// per submitted unit, from a worker goroutine, outside the source lock. On
// failure pm is nil and err describes the load or render error. On success
// err is nil; a pooled pm is valid only for the duration of the call, an
// owned pm (OwnBuffers) belongs to the callback.
type UnitFunc func(unit int, pm *Pixmap, err error)

// BatchRequest describes one batch of units to render
type BatchRequest struct {
	// Start is the first unit index; Count the number of units. The range
	// is clamped to what the source actually contains.
	Start int
	Count int

	// Output shape
	Width  int
	Height int
	Format PixelFormat

	// Params carries transform options through to the source
	Params RenderParams

	// Workers forces a worker count. 0 selects it via EstimateWorkers.
	Workers int

	// MaxOutstanding is the backpressure ceiling on enqueued-but-not-
	// completed jobs. 0 means unbounded, except that batches larger than
	// LargeBatchThreshold default to DefaultMaxOutstanding.
	MaxOutstanding int

	// UnitBytesHint estimates the payload weight of one unit for the
	// worker-count bands. 0 falls back to the source's Sizer hint, or to
	// the medium band.
	UnitBytesHint int64

	// OwnBuffers allocates a fresh pixmap per unit and transfers ownership
	// to the callback, instead of lending pooled worker buffers. Pooled
	// jobs take priority over owned ones when both are queued.
	OwnBuffers bool

	// Reclaim asks the workers to drop their pooled pixmaps after the
	// batch, returning memory before RenderBatch returns.
	Reclaim bool

	// OnUnit receives each unit's result
	OnUnit UnitFunc
}

// DefaultRequest returns a request covering every unit of a source at the
// given output shape.
func DefaultRequest(width, height int, fn UnitFunc) BatchRequest {
	return BatchRequest{
		Count:  -1, // clamped to the source's unit count
		Width:  width,
		Height: height,
		Format: FormatRGBA,
		OnUnit: fn,
	}
}

// NewPool creates an idle pool. Workers are spawned on first use.
func NewPool(options *Options) *Pool {
	if options == nil {
		options = &Options{}
	}

	metrics := NewMetrics()
	var observer Observer
	if options.Observer != nil {
		observer = options.Observer
	} else {
		observer = NewMetricsObserver(metrics)
	}

	p := &Pool{
		metrics:  metrics,
		observer: observer,
		logger:   options.Logger,
	}
	p.sched = sched.New(sched.Config{
		Logger:       options.Logger,
		Observer:     observer,
		CacheEntries: options.CacheEntries,
	})
	return p
}

// RenderBatch validates the request, renders the units either inline or on
// the worker pool, and blocks until every unit's callback has returned and
// all deferred unit handles are released. A returned error means the request
// was malformed and no work was submitted; per-unit load/render failures are
// reported only through the callback and never abort the rest of the batch.
func (p *Pool) RenderBatch(src Source, req BatchRequest) error {
	if p == nil || p.closed.Load() {
		return NewError("RENDER_BATCH", ErrCodePoolClosed, "pool is closed")
	}
	if src == nil {
		return NewError("RENDER_BATCH", ErrCodeInvalidParameters, "nil source")
	}
	if req.OnUnit == nil {
		return NewError("RENDER_BATCH", ErrCodeInvalidParameters, "nil callback")
	}
	if req.Width <= 0 || req.Height <= 0 {
		return NewError("RENDER_BATCH", ErrCodeInvalidParameters, "non-positive output shape")
	}
	if req.Start < 0 || req.Count == 0 {
		return NewError("RENDER_BATCH", ErrCodeInvalidParameters, "bad unit range")
	}

	total := src.UnitCount()
	if req.Start >= total {
		return NewError("RENDER_BATCH", ErrCodeInvalidParameters, "start index out of range")
	}
	count := req.Count
	if count < 0 || req.Start+count > total {
		count = total - req.Start
	}

	workers := req.Workers
	if workers <= 0 {
		hint := req.UnitBytesHint
		if hint == 0 {
			if s, ok := src.(Sizer); ok {
				hint = s.UnitBytesHint()
			}
		}
		workers = EstimateWorkers(count, hint, runtime.GOMAXPROCS(0))
	}

	if workers <= 1 || count == 1 {
		return p.renderSerial(src, req, count)
	}
	return p.renderPooled(src, req, count, workers)
}

// renderSerial executes the batch inline, one unit at a time. The source
// lock is still taken per unit so a serial batch interleaves safely with
// pooled batches over the same source, but there is no deferred collector:
// each unit's handle is closed inside its own critical section.
func (p *Pool) renderSerial(src Source, req BatchRequest, count int) error {
	lock := p.sched.AcquireSource(src)
	defer p.sched.ReleaseSource(src)

	var dst *pix.Pixmap
	for i := 0; i < count; i++ {
		unit := req.Start + i

		lock.Lock()
		loadStart := time.Now()
		u, err := src.OpenUnit(unit)
		loadNs := uint64(time.Since(loadStart).Nanoseconds())
		if err != nil {
			lock.Unlock()
			p.observer.ObserveLoad(loadNs, false)
			req.OnUnit(unit, nil, NewUnitError("OPEN_UNIT", "", unit, ErrCodeLoadFailed, err.Error()))
			continue
		}
		p.observer.ObserveLoad(loadNs, true)

		if req.OwnBuffers || dst == nil || !dst.Matches(req.Width, req.Height, req.Format) {
			dst = pix.New(req.Width, req.Height, req.Format)
		}

		renderStart := time.Now()
		rerr := src.RenderUnit(u, dst, req.Params)
		renderNs := uint64(time.Since(renderStart).Nanoseconds())
		u.Close()
		lock.Unlock()

		if rerr != nil {
			p.observer.ObserveRender(0, renderNs, false)
			req.OnUnit(unit, nil, NewUnitError("RENDER_UNIT", "", unit, ErrCodeRenderFailed, rerr.Error()))
		} else {
			p.observer.ObserveRender(uint64(dst.Size()), renderNs, true)
			req.OnUnit(unit, dst, nil)
		}
	}
	return nil
}

// renderPooled runs the batch on the worker pool.
func (p *Pool) renderPooled(src Source, req BatchRequest, count, workers int) error {
	batchID := uuid.New().String()
	logger := logging.Default().WithBatch(batchID)
	logger.Debug("starting batch",
		"units", count,
		"workers", workers,
		"shape", req.Width*req.Height,
		"format", req.Format.String())

	p.sched.EnsureWorkers(workers)

	maxOutstanding := req.MaxOutstanding
	if maxOutstanding == 0 && count > constants.LargeBatchThreshold {
		maxOutstanding = constants.DefaultMaxOutstanding
	}
	p.sched.SetMaxOutstanding(maxOutstanding)

	onUnit := func(unit int, pm *pix.Pixmap, err error) {
		if err != nil {
			err = WrapError("RENDER_BATCH", err)
		}
		req.OnUnit(unit, pm, err)
	}

	batch := p.sched.NewBatch(src, count, onUnit)

	// Build every descriptor up front, then submit. Under an active ceiling
	// each job waits for its own slot, which keeps the outstanding count
	// strictly bounded even for batches far larger than the ceiling.
	jobs := make([]*sched.Job, count)
	for i := 0; i < count; i++ {
		jobs[i] = &sched.Job{
			Unit:   req.Start + i,
			Width:  req.Width,
			Height: req.Height,
			Format: req.Format,
			Params: req.Params,
			Pooled: !req.OwnBuffers,
			Batch:  batch,
		}
	}

	if maxOutstanding <= 0 || count <= maxOutstanding {
		p.sched.AwaitCapacity(count)
		p.sched.SubmitBulk(jobs)
	} else {
		for _, j := range jobs {
			p.sched.AwaitCapacity(1)
			p.sched.Submit(j)
		}
	}

	batch.Wait()

	if err := batch.DrainDeferred(); err != nil {
		logger.Warn("deferred unit release reported errors", "error", err)
	}

	if req.Reclaim {
		p.sched.ClearCaches()
	}

	logger.Debug("batch complete", "units", count)
	return nil
}

// Workers returns the current worker count.
func (p *Pool) Workers() int {
	return p.sched.Workers()
}

// Outstanding returns the number of enqueued-but-not-completed jobs.
func (p *Pool) Outstanding() int {
	return p.sched.Outstanding()
}

// Metrics returns the pool's metrics instance
func (p *Pool) Metrics() *Metrics {
	if p == nil {
		return nil
	}
	return p.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of pool metrics
func (p *Pool) MetricsSnapshot() MetricsSnapshot {
	if p == nil || p.metrics == nil {
		return MetricsSnapshot{}
	}
	return p.metrics.Snapshot()
}

// Close stops the pool: the stop flag is set, every worker drains, clears
// its own pixmap cache, and exits; Close returns after joining them all.
//
// The host application must call Close before any library-level teardown.
// Close is idempotent; a second call is a no-op.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.sched.Close()
	p.metrics.Stop()
	if p.logger != nil {
		p.logger.Printf("render pool closed")
	}
	return nil
}
