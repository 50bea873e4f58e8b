package renderpool

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a render pool
type Metrics struct {
	// Operation counters
	LoadOps   atomic.Uint64 // Total unit load attempts
	RenderOps atomic.Uint64 // Total render attempts

	// Byte counters
	RenderBytes atomic.Uint64 // Total output bytes rendered

	// Error counters
	LoadErrors   atomic.Uint64 // Unit load failures
	RenderErrors atomic.Uint64 // Render failures

	// Pixmap cache statistics
	CacheHits      atomic.Uint64 // Acquires satisfied from a worker cache
	CacheMisses    atomic.Uint64 // Acquires that allocated fresh
	CacheEvictions atomic.Uint64 // Pooled pixmaps dropped

	// Outstanding-work statistics
	OutstandingTotal atomic.Uint64 // Cumulative outstanding samples
	OutstandingCount atomic.Uint64 // Number of outstanding measurements
	MaxOutstanding   atomic.Uint32 // Maximum observed outstanding count

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative operation latency in nanoseconds
	OpCount        atomic.Uint64 // Total operations (for average latency calculation)

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Pool lifecycle
	StartTime atomic.Int64 // Pool creation timestamp (UnixNano)
	StopTime  atomic.Int64 // Pool close timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordLoad records a unit load attempt
func (m *Metrics) RecordLoad(latencyNs uint64, success bool) {
	m.LoadOps.Add(1)
	if !success {
		m.LoadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRender records a render attempt
func (m *Metrics) RecordRender(bytes uint64, latencyNs uint64, success bool) {
	m.RenderOps.Add(1)
	if success {
		m.RenderBytes.Add(bytes)
	} else {
		m.RenderErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCacheHit records a pixmap cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Add(1)
}

// RecordCacheMiss records a pixmap cache miss
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Add(1)
}

// RecordCacheEvict records dropped pooled pixmaps
func (m *Metrics) RecordCacheEvict(count int) {
	m.CacheEvictions.Add(uint64(count))
}

// RecordOutstanding records an outstanding-count sample for statistics
func (m *Metrics) RecordOutstanding(depth uint32) {
	m.OutstandingTotal.Add(uint64(depth))
	m.OutstandingCount.Add(1)

	// Update max outstanding atomically
	for {
		current := m.MaxOutstanding.Load()
		if depth <= current {
			break
		}
		if m.MaxOutstanding.CompareAndSwap(current, depth) {
			break
		}
	}
}

// recordLatency records operation latency and updates histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	// Update histogram buckets (cumulative)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the pool as closed
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	// Operations
	LoadOps   uint64
	RenderOps uint64

	// Bytes produced
	RenderBytes uint64

	// Error counts
	LoadErrors   uint64
	RenderErrors uint64

	// Cache statistics
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64

	// Outstanding-work statistics
	AvgOutstanding float64
	MaxOutstanding uint32

	// Performance
	AvgLatencyNs uint64
	UptimeNs     uint64

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64 // 50th percentile (median)
	LatencyP99Ns  uint64 // 99th percentile
	LatencyP999Ns uint64 // 99.9th percentile

	// Histogram bucket counts (cumulative)
	LatencyHistogram [numLatencyBuckets]uint64

	// Computed statistics
	UnitsPerSecond  float64 // Render operations per second
	RenderBandwidth float64 // Output bytes per second
	CacheHitRate    float64 // Percentage of acquires served from cache
	TotalOps        uint64
	ErrorRate       float64 // Percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		LoadOps:        m.LoadOps.Load(),
		RenderOps:      m.RenderOps.Load(),
		RenderBytes:    m.RenderBytes.Load(),
		LoadErrors:     m.LoadErrors.Load(),
		RenderErrors:   m.RenderErrors.Load(),
		CacheHits:      m.CacheHits.Load(),
		CacheMisses:    m.CacheMisses.Load(),
		CacheEvictions: m.CacheEvictions.Load(),
		MaxOutstanding: m.MaxOutstanding.Load(),
	}

	// Calculate derived statistics
	snap.TotalOps = snap.LoadOps + snap.RenderOps

	// Calculate average outstanding count
	outstandingTotal := m.OutstandingTotal.Load()
	outstandingCount := m.OutstandingCount.Load()
	if outstandingCount > 0 {
		snap.AvgOutstanding = float64(outstandingTotal) / float64(outstandingCount)
	}

	// Calculate average latency
	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	// Calculate uptime
	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	// Calculate rates
	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.UnitsPerSecond = float64(snap.RenderOps) / uptimeSeconds
		snap.RenderBandwidth = float64(snap.RenderBytes) / uptimeSeconds
	}

	// Calculate cache hit rate
	acquires := snap.CacheHits + snap.CacheMisses
	if acquires > 0 {
		snap.CacheHitRate = float64(snap.CacheHits) / float64(acquires) * 100.0
	}

	// Calculate error rate
	totalErrors := snap.LoadErrors + snap.RenderErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	// Copy histogram bucket counts
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	// Calculate percentiles from histogram
	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	// Find the bucket containing the target percentile
	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			// Linear interpolation within bucket
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	// If we get here, the latency exceeds all buckets
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing)
func (m *Metrics) Reset() {
	m.LoadOps.Store(0)
	m.RenderOps.Store(0)
	m.RenderBytes.Store(0)
	m.LoadErrors.Store(0)
	m.RenderErrors.Store(0)
	m.CacheHits.Store(0)
	m.CacheMisses.Store(0)
	m.CacheEvictions.Store(0)
	m.OutstandingTotal.Store(0)
	m.OutstandingCount.Store(0)
	m.MaxOutstanding.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveLoad(uint64, bool)           {}
func (NoOpObserver) ObserveRender(uint64, uint64, bool) {}
func (NoOpObserver) ObserveCacheHit()                   {}
func (NoOpObserver) ObserveCacheMiss()                  {}
func (NoOpObserver) ObserveCacheEvict(int)              {}
func (NoOpObserver) ObserveOutstanding(uint32)          {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveLoad(latencyNs uint64, success bool) {
	o.metrics.RecordLoad(latencyNs, success)
}

func (o *MetricsObserver) ObserveRender(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRender(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveCacheHit() {
	o.metrics.RecordCacheHit()
}

func (o *MetricsObserver) ObserveCacheMiss() {
	o.metrics.RecordCacheMiss()
}

func (o *MetricsObserver) ObserveCacheEvict(count int) {
	o.metrics.RecordCacheEvict(count)
}

func (o *MetricsObserver) ObserveOutstanding(depth uint32) {
	o.metrics.RecordOutstanding(depth)
}

// Compile-time interface checks
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
