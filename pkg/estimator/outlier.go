package estimator

import (
	"math"
	"sort"
)

// minOutlierSamples is the minimum window size before the gate may reject:
// with fewer samples the MAD has no statistical teeth.
const minOutlierSamples = 5

// madEpsilon floors the MAD so a perfectly flat window cannot divide by zero.
const madEpsilon = 1e-6

// isOutlier flags the latest sample when its robust z-score against the
// window exceeds the configured threshold. A flagged sample skips the whole
// update, not just the point, so one glitch never contaminates the filter.
func (e *Estimator) isOutlier(window []float64, latest float64) bool {
	if len(window) < minOutlierSamples {
		return false
	}
	z := robustZ(window, latest)
	return math.Abs(z) > e.params.OutlierThreshold
}

// robustZ is the MAD-based z-score: 0.6745·(x − median) / MAD.
func robustZ(window []float64, x float64) float64 {
	med := median(window)
	m := math.Max(mad(window, med), madEpsilon)
	return 0.6745 * (x - med) / m
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}

// mad is the median absolute deviation around a precomputed median.
func mad(values []float64, med float64) float64 {
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - med)
	}
	return median(devs)
}
