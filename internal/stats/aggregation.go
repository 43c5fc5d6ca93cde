package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Moments summarizes the distribution of one signal
type Moments struct {
	Max      float64
	Mean     float64
	StdDev   float64 // population
	Skew     float64
	Kurtosis float64 // excess
}

// Describe computes Moments for values. Empty input yields the zero value.
func Describe(values []float64) Moments {
	if len(values) == 0 {
		return Moments{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	m := Moments{
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}

	// Higher moments are undefined for a flat signal
	if std > 0 && len(values) >= 4 {
		m.Skew = stat.Skew(values, nil)
		m.Kurtosis = stat.ExKurtosis(values, nil)
	}
	return m
}

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// MaxRollingMean returns the largest mean over any run of window consecutive values.
// Returns 0 when the input is shorter than the window.
func MaxRollingMean(values []float64, window int) float64 {
	if window <= 0 || window > len(values) {
		return 0
	}

	sum := floats.Sum(values[:window])
	best := sum
	for i := window; i < len(values); i++ {
		sum += values[i] - values[i-window]
		if sum > best {
			best = sum
		}
	}
	return best / float64(window)
}
