package train

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Point is one recorded scalar.
type Point struct {
	Step      int       `json:"step"`
	Value     *float64  `json:"value"` // nil when the value was not finite
	Timestamp time.Time `json:"timestamp"`
}

// ProgressTracker keeps every scalar of the current run in memory so the
// HTTP endpoints can serve it while training is still going.
type ProgressTracker struct {
	mu      sync.RWMutex
	series  map[string][]Point
	started time.Time
	closed  bool
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		series:  make(map[string][]Point),
		started: time.Now(),
	}
}

// AddScalar implements Sink.
func (pt *ProgressTracker) AddScalar(series string, value float64, step int) error {
	p := Point{Step: step, Timestamp: time.Now()}
	if !math.IsNaN(value) && !math.IsInf(value, 0) {
		v := value
		p.Value = &v
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.series[series] = append(pt.series[series], p)
	return nil
}

// Close marks the run finished. Recorded values stay readable.
func (pt *ProgressTracker) Close() error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.closed = true
	return nil
}

// Finished reports whether Close has been called.
func (pt *ProgressTracker) Finished() bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.closed
}

// Started returns the creation time of the tracker.
func (pt *ProgressTracker) Started() time.Time {
	return pt.started
}

// HasScalars reports whether anything was recorded yet.
func (pt *ProgressTracker) HasScalars() bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.series) > 0
}

// SeriesNames returns the recorded series, sorted.
func (pt *ProgressTracker) SeriesNames() []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	names := make([]string, 0, len(pt.series))
	for name := range pt.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latest returns the most recent point of every series.
func (pt *ProgressTracker) Latest() map[string]Point {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	out := make(map[string]Point, len(pt.series))
	for name, points := range pt.series {
		out[name] = points[len(points)-1]
	}
	return out
}

// Series returns a copy of one series and whether it exists.
func (pt *ProgressTracker) Series(name string) ([]Point, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	points, ok := pt.series[name]
	if !ok {
		return nil, false
	}
	out := make([]Point, len(points))
	copy(out, points)
	return out, true
}
