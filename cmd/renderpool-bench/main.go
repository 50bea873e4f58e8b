package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	renderpool "github.com/renderkit/go-renderpool"
	"github.com/renderkit/go-renderpool/internal/logging"
	"github.com/renderkit/go-renderpool/source"
)

func main() {
	var (
		pages   = flag.Int("pages", 256, "Number of pages in the synthetic document")
		width   = flag.Int("width", 1024, "Output width in pixels")
		height  = flag.Int("height", 768, "Output height in pixels")
		format  = flag.String("format", "rgba", "Output pixel format (rgba, bgra, gray)")
		workers = flag.Int("workers", 0, "Worker count (0 = auto)")
		depth   = flag.Int("depth", 0, "Max outstanding jobs (0 = unbounded)")
		own     = flag.Bool("own", false, "Allocate a fresh buffer per page instead of pooling")
		reclaim = flag.Bool("reclaim", false, "Drop pooled buffers after the batch")
		batches = flag.Int("batches", 1, "Number of batches to run")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	pixFormat, err := parseFormat(*format)
	if err != nil {
		log.Fatalf("Invalid format '%s': %v", *format, err)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	doc := source.NewSynthetic(*pages, 612, 792)

	pool := renderpool.NewPool(&renderpool.Options{Logger: logger})
	defer pool.Close()

	logger.Info("starting benchmark",
		"pages", *pages,
		"shape", fmt.Sprintf("%dx%d", *width, *height),
		"format", pixFormat.String(),
		"workers", *workers,
		"depth", *depth,
		"batches", *batches)

	start := time.Now()
	for i := 0; i < *batches; i++ {
		var failed atomic.Int64
		err := pool.RenderBatch(doc, renderpool.BatchRequest{
			Count:          *pages,
			Width:          *width,
			Height:         *height,
			Format:         pixFormat,
			Workers:        *workers,
			MaxOutstanding: *depth,
			OwnBuffers:     *own,
			Reclaim:        *reclaim,
			OnUnit: func(unit int, pm *renderpool.Pixmap, err error) {
				if err != nil {
					failed.Add(1)
					logger.Error("page failed", "unit", unit, "error", err)
				}
			},
		})
		if err != nil {
			logger.Error("batch failed", "batch", i, "error", err)
			os.Exit(1)
		}
		if n := failed.Load(); n > 0 {
			logger.Warn("batch completed with failures", "batch", i, "failed", n)
		}
	}
	elapsed := time.Since(start)

	if doc.OpenHandles() != 0 {
		logger.Warn("unit handles leaked", "count", doc.OpenHandles())
	}

	printSummary(pool, *pages**batches, elapsed)
}

func parseFormat(s string) (renderpool.PixelFormat, error) {
	switch s {
	case "rgba":
		return renderpool.FormatRGBA, nil
	case "bgra":
		return renderpool.FormatBGRA, nil
	case "gray":
		return renderpool.FormatGray, nil
	default:
		return 0, fmt.Errorf("unknown format (want rgba, bgra, or gray)")
	}
}

func printSummary(pool *renderpool.Pool, totalPages int, elapsed time.Duration) {
	snap := pool.MetricsSnapshot()

	fmt.Printf("\nRendered %d pages in %v (%.1f pages/s)\n",
		totalPages, elapsed.Round(time.Millisecond),
		float64(totalPages)/elapsed.Seconds())
	fmt.Printf("Workers:          %d\n", pool.Workers())
	fmt.Printf("Output:           %s\n", formatBytes(snap.RenderBytes))
	fmt.Printf("Bandwidth:        %s/s\n", formatBytes(uint64(snap.RenderBandwidth)))
	fmt.Printf("Load errors:      %d\n", snap.LoadErrors)
	fmt.Printf("Render errors:    %d\n", snap.RenderErrors)
	fmt.Printf("Cache hit rate:   %.1f%% (%d hits, %d misses, %d evicted)\n",
		snap.CacheHitRate, snap.CacheHits, snap.CacheMisses, snap.CacheEvictions)
	fmt.Printf("Outstanding:      avg %.1f, max %d\n", snap.AvgOutstanding, snap.MaxOutstanding)
	fmt.Printf("Latency:          avg %s, p50 %s, p99 %s\n",
		time.Duration(snap.AvgLatencyNs),
		time.Duration(snap.LatencyP50Ns),
		time.Duration(snap.LatencyP99Ns))
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
