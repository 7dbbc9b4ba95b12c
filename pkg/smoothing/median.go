// Package smoothing provides the rolling-median post-processing the control
// loop applies to raw tau estimates. It is deliberately separate from the
// estimator: the filter reports raw values, the driver decides how to smooth
// them.
package smoothing

import "sort"

// RollingMedian keeps the median of the last N pushed values.
type RollingMedian struct {
	size   int
	values []float64
}

// NewRollingMedian creates a smoother over the last size values. Size is
// clamped to a minimum of 1.
func NewRollingMedian(size int) *RollingMedian {
	if size < 1 {
		size = 1
	}
	return &RollingMedian{size: size}
}

// Push adds a value and returns the updated median.
func (r *RollingMedian) Push(v float64) float64 {
	r.values = append(r.values, v)
	if len(r.values) > r.size {
		r.values = r.values[1:]
	}
	return r.Median()
}

// Median returns the median of the retained values, or 0 when empty.
func (r *RollingMedian) Median() float64 {
	n := len(r.values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, r.values)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}

// Len returns how many values are currently retained.
func (r *RollingMedian) Len() int {
	return len(r.values)
}

// Reset discards all retained values.
func (r *RollingMedian) Reset() {
	r.values = nil
}
