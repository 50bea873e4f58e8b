package constants

// Default scheduling constants
const (
	// DefaultMaxOutstanding is the backpressure ceiling applied automatically
	// to large batches when the caller does not set one
	DefaultMaxOutstanding = 256

	// LargeBatchThreshold is the unit count above which the automatic
	// backpressure ceiling kicks in
	LargeBatchThreshold = 1024

	// SerialThreshold is the unit count below which the estimator always
	// recommends serial execution; pool overhead exceeds benefit below it
	SerialThreshold = 4
)

// Worker-count estimation bands, classified by estimated per-unit payload
// weight. Parallel scaling efficiency tracks payload weight far more closely
// than raw unit count, so the bands drive the worker caps.
const (
	// LightBandBytes is the upper bound (exclusive) of the "light" band
	LightBandBytes = 15_000

	// HeavyBandBytes is the lower bound (inclusive) of the "heavy" band
	HeavyBandBytes = 100_000
)

// Memory reuse constants
const (
	// DefaultCacheEntries is the per-worker pixmap cache ceiling. Entries
	// beyond it are dropped immediately instead of pooled.
	DefaultCacheEntries = 32
)
