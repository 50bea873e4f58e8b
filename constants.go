package renderpool

import "github.com/renderkit/go-renderpool/internal/constants"

// Re-export constants for public API
const (
	DefaultMaxOutstanding = constants.DefaultMaxOutstanding
	LargeBatchThreshold   = constants.LargeBatchThreshold
	SerialThreshold       = constants.SerialThreshold
	LightBandBytes        = constants.LightBandBytes
	HeavyBandBytes        = constants.HeavyBandBytes
	DefaultCacheEntries   = constants.DefaultCacheEntries
)
