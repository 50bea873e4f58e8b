package renderpool

import "github.com/renderkit/go-renderpool/internal/interfaces"

// Source is the shared document being rendered. It is not required to be
// safe for concurrent use: the pool serializes every call into a Source
// under one lock, held across the whole load+render critical section.
type Source = interfaces.Source

// Unit is a loaded source unit whose destruction must be serialized against
// the source.
type Unit = interfaces.Unit

// Sizer is an optional Source interface reporting the estimated per-unit
// payload weight in bytes, used by the worker-count estimator.
type Sizer = interfaces.Sizer

// RenderParams carries transform options for one render operation.
type RenderParams = interfaces.RenderParams

// Observer allows pluggable metrics collection from inside the scheduler.
type Observer = interfaces.Observer
