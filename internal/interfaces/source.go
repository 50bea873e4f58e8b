package interfaces

import "github.com/renderkit/go-renderpool/internal/pix"

// RenderParams carries transform options for one render operation. The
// scheduler treats it as opaque; sources interpret the fields they support.
type RenderParams struct {
	// Rotation in degrees, one of 0, 90, 180, 270
	Rotation int

	// Flags is a source-defined bitmask (annotations, text smoothing, ...)
	Flags uint32

	// Overlay is an optional auxiliary handle consumed by the render
	// operation, for example a form-field overlay context. Nil when unused.
	Overlay any
}

// Source is the shared document being rendered. It is the external
// collaborator of the scheduler and is NOT safe for concurrent use: every
// call into a Source is serialized under one lock held by the scheduler for
// the whole load+render critical section.
type Source interface {
	// UnitCount returns the number of renderable units the source contains.
	UnitCount() int

	// OpenUnit loads one unit and returns its handle. Must only be called
	// while the source lock is held. A returned error fails that unit only.
	OpenUnit(index int) (Unit, error)

	// RenderUnit renders a loaded unit into dst, filling dst.Pix completely.
	// Must only be called while the source lock is held.
	RenderUnit(u Unit, dst *pix.Pixmap, params RenderParams) error
}

// Unit is a loaded source unit. Close releases it.
//
// Closing a unit touches structures shared with its source, so Close must be
// serialized under the same source lock as OpenUnit/RenderUnit. The
// scheduler never closes units concurrently; batch execution defers all
// closes and drains them under the lock after the batch completes.
type Unit interface {
	Close() error
}

// Sizer is an optional interface a Source can implement to report an
// estimated payload weight per unit in bytes. The estimate feeds the
// worker-count bands when the caller does not force a worker count.
type Sizer interface {
	UnitBytesHint() int64
}

// Observer allows pluggable metrics collection from inside the scheduler.
type Observer interface {
	// ObserveLoad is called for each unit load attempt
	ObserveLoad(latencyNs uint64, success bool)

	// ObserveRender is called for each render attempt with output bytes
	ObserveRender(bytes uint64, latencyNs uint64, success bool)

	// ObserveCacheHit is called when a pooled pixmap satisfies an acquire
	ObserveCacheHit()

	// ObserveCacheMiss is called when an acquire allocates fresh
	ObserveCacheMiss()

	// ObserveCacheEvict is called when pooled pixmaps are dropped
	ObserveCacheEvict(count int)

	// ObserveOutstanding is called with the outstanding job count at
	// submission time
	ObserveOutstanding(depth uint32)
}
