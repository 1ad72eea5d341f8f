package profiler

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Timing accumulates the samples of one named event between two reports.
type Timing struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Profiler tracks frame rate, memory statistics and named event timings such as technique compiles and asset
// loads. Stats are written to the logger at a configurable interval.
type Profiler struct {
	mu sync.Mutex

	logger         *zap.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	timings map[string]*Timing
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second and the logger to zap.L().
//
// Parameters:
//   - opts: optional configuration such as WithLogger and WithInterval
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(opts ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		timings:        make(map[string]*Timing),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.L()
	}
	return p
}

// Record adds one sample of a named event. It is safe to call from any goroutine.
//
// Parameters:
//   - name: the event name, e.g. "technique_load"
//   - d: how long the event took
func (p *Profiler) Record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.timings[name]
	if !ok {
		t = &Timing{}
		p.timings[name] = t
	}
	t.Count++
	t.Total += d
	t.Max = max(t.Max, d)
}

// Timings returns a copy of the event timings accumulated since the last report.
func (p *Profiler) Timings() map[string]Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Timing, len(p.timings))
	for name, t := range p.timings {
		out[name] = *t
	}
	return out
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory and the event timings
// recorded since the previous report.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: Bytes of allocated heap objects (live memory)
	// TotalAlloc: Cumulative bytes allocated for heap objects (increases forever, tracks churn)
	// Sys: Total bytes of memory obtained from the OS (actual process footprint)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Info("profiler",
		zap.Float64("fps", fps),
		zap.Float64("heap_mb", allocMB),
		zap.Float64("alloc_rate_mb_s", allocRateMB),
		zap.Uint32("gc", gcCount),
		zap.Uint64("gc_last_us", lastPauseUs),
		zap.Uint64("gc_max_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB))
	p.reportTimings()

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// reportTimings logs and clears the event timings, sorted by name.
func (p *Profiler) reportTimings() {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.timings))
	for name := range p.timings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := p.timings[name]
		p.logger.Info("profiler event",
			zap.String("event", name),
			zap.Int("count", t.Count),
			zap.Duration("avg", t.Total/time.Duration(t.Count)),
			zap.Duration("max", t.Max))
	}
	clear(p.timings)
}
