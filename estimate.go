package renderpool

import "github.com/renderkit/go-renderpool/internal/constants"

// bandBreak maps a unit-count threshold to a worker cap. Tables are scanned
// in order; the first entry whose threshold is >= the unit count wins.
type bandBreak struct {
	maxUnits int // 0 = no upper bound
	bandCap  int
}

// Caps per payload band, derived from measured scaling curves rather than a
// closed-form model. Light pages scale aggressively until very large counts,
// where a lower cap bounds the memory footprint. Heavy pages favor a
// moderate cap with a spike allowance in the mid-count range where the
// per-page win was measured to be largest. Medium pages stay conservative.
var (
	lightBand = []bandBreak{
		{maxUnits: 8192, bandCap: 32},
		{maxUnits: 0, bandCap: 8},
	}
	heavyBand = []bandBreak{
		{maxUnits: 64, bandCap: 6},
		{maxUnits: 512, bandCap: 12},
		{maxUnits: 0, bandCap: 6},
	}
	mediumBand = []bandBreak{
		{maxUnits: 0, bandCap: 4},
	}
)

// EstimateWorkers maps a batch shape to a recommended worker count. It is
// pure and deterministic: unitCount is the number of units in the batch,
// bytesPerUnit the estimated payload weight of one unit (0 is treated as
// medium weight), and hostParallelism the number of hardware threads
// available.
//
// Below 4 units the answer is always 1; pool overhead exceeds the benefit.
// The result never exceeds min(unitCount, hostParallelism).
func EstimateWorkers(unitCount int, bytesPerUnit int64, hostParallelism int) int {
	if unitCount < constants.SerialThreshold {
		return 1
	}

	var band []bandBreak
	switch {
	case bytesPerUnit > 0 && bytesPerUnit < constants.LightBandBytes:
		band = lightBand
	case bytesPerUnit >= constants.HeavyBandBytes:
		band = heavyBand
	default:
		band = mediumBand
	}

	bandCap := band[len(band)-1].bandCap
	for _, b := range band {
		if b.maxUnits == 0 || unitCount <= b.maxUnits {
			bandCap = b.bandCap
			break
		}
	}

	workers := bandCap
	if unitCount < workers {
		workers = unitCount
	}
	if hostParallelism > 0 && hostParallelism < workers {
		workers = hostParallelism
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
