// Package aggregate keeps running statistics of hourly station volumes.
//
// A Distribution receives one value per flushed hour and reports count, sum,
// min, max and DDSketch percentiles. Set groups distributions by station and
// keeps a combined distribution for the whole run.
package aggregate

import (
	"math"
	"sort"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultAccuracy is the relative accuracy of the percentile sketch.
const DefaultAccuracy = 0.01

// Distribution maintains running statistics over a stream of values.
type Distribution struct {
	mu sync.Mutex

	count int64
	sum   float64
	min   float64
	max   float64

	// nil if the sketch could not be created
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// Summary is a snapshot of a Distribution.
type Summary struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// New creates a Distribution with DefaultAccuracy.
func New() *Distribution {
	return NewWithAccuracy(DefaultAccuracy)
}

// NewWithAccuracy creates a Distribution with a custom percentile accuracy.
func NewWithAccuracy(accuracy float64) *Distribution {
	d := &Distribution{
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		accuracy: accuracy,
	}
	d.sketch = newSketch(accuracy)
	return d
}

func newSketch(accuracy float64) *ddsketch.DDSketch {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil
	}
	return sketch
}

// Add records one value.
func (d *Distribution) Add(value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.sum += value

	if value < d.min {
		d.min = value
	}
	if value > d.max {
		d.max = value
	}

	if d.sketch != nil {
		_ = d.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (d *Distribution) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// IsEmpty returns true if no values have been added.
func (d *Distribution) IsEmpty() bool {
	return d.Count() == 0
}

// Summary returns the current statistics. Percentiles are zero when empty.
func (d *Distribution) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Summary{
		Count: d.count,
		Sum:   d.sum,
	}
	if d.count == 0 {
		return s
	}

	s.Min = d.min
	s.Max = d.max
	s.Avg = d.sum / float64(d.count)

	if d.sketch != nil {
		s.P50, _ = d.sketch.GetValueAtQuantile(0.50)
		s.P95, _ = d.sketch.GetValueAtQuantile(0.95)
		s.P99, _ = d.sketch.GetValueAtQuantile(0.99)
	}
	return s
}

// Reset clears all statistics.
func (d *Distribution) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count = 0
	d.sum = 0
	d.min = math.MaxFloat64
	d.max = -math.MaxFloat64
	// DDSketch has no Clear.
	d.sketch = newSketch(d.accuracy)
}

// Merge combines another distribution into this one.
func (d *Distribution) Merge(other *Distribution) {
	if other == nil || other == d {
		return
	}

	d.mu.Lock()
	other.mu.Lock()
	defer d.mu.Unlock()
	defer other.mu.Unlock()

	if other.count == 0 {
		return
	}

	d.count += other.count
	d.sum += other.sum
	if other.min < d.min {
		d.min = other.min
	}
	if other.max > d.max {
		d.max = other.max
	}

	if d.sketch != nil && other.sketch != nil {
		_ = d.sketch.MergeWith(other.sketch)
	}
}

// Set holds one Distribution per key plus a combined one.
type Set struct {
	mu       sync.Mutex
	accuracy float64
	byKey    map[string]*Distribution
	total    *Distribution
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{
		accuracy: DefaultAccuracy,
		byKey:    make(map[string]*Distribution),
		total:    New(),
	}
}

// Add records value for key and in the combined distribution.
func (s *Set) Add(key string, value float64) {
	s.mu.Lock()
	d, ok := s.byKey[key]
	if !ok {
		d = NewWithAccuracy(s.accuracy)
		s.byKey[key] = d
	}
	s.mu.Unlock()

	d.Add(value)
	s.total.Add(value)
}

// Get returns the distribution of key, or nil.
func (s *Set) Get(key string) *Distribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[key]
}

// Total returns the combined distribution.
func (s *Set) Total() *Distribution {
	return s.total
}

// Keys returns the keys in sorted order.
func (s *Set) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
