package stats

import "sort"

// Percentile returns the nearest-rank-below percentile of values (0 < p <= 1):
// the element at index floor(n*p)-1 of the sorted input, clamped to the first.
//
// This is the convention the activity model was trained on; it differs from
// interpolating quantiles for small n.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted))*p) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Percentiles calculates multiple percentiles at once
func Percentiles(values []float64, ps []float64) []float64 {
	result := make([]float64, len(ps))
	for i, p := range ps {
		result[i] = Percentile(values, p)
	}
	return result
}
