// Package features turns a window of accelerometer samples into the vector
// the activity forest was trained on.
//
// Three signals are derived from each window: the acceleration norm, and the
// vertical and horizontal components after rotating the window so its mean
// (gravity) points along +z. Each signal contributes SignalFeatureCount values.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/stats"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// SignalFeatureCount is the number of features computed per signal
	SignalFeatureCount = 14
	// VectorSize is the length of the full feature vector
	VectorSize = SignalFeatureCount * 3
	// MinSamples is the fewest samples a window needs for a spectrum
	MinSamples = 4

	lowBandHz       = 2.5
	rollingMeanSpan = 5
)

var (
	ErrTooFewSamples = errors.New("too few samples for feature extraction")
	ErrZeroSpan      = errors.New("window has no monotonic time span")
)

var percentiles = []float64{0.25, 0.5, 0.75, 0.9}

// Extract computes the feature vector for samples, which must be ordered by Uptime.
// Samples are used at their native spacing; nothing is resampled.
func Extract(samples []models.AccelerometerSample) ([]float64, error) {
	n := len(samples)
	if n < MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewSamples, n, MinSamples)
	}

	span := samples[n-1].Uptime - samples[0].Uptime
	if span <= 0 {
		return nil, ErrZeroSpan
	}
	rate := float64(n-1) / span.Seconds()

	norms, zs, xyNorms := decompose(samples)

	out := make([]float64, 0, VectorSize)
	out = append(out, signalFeatures(norms, rate)...)
	out = append(out, signalFeatures(zs, rate)...)
	out = append(out, signalFeatures(xyNorms, rate)...)
	return out, nil
}

// decompose returns the norm of each sample plus its vertical and horizontal
// magnitude in a frame where the window's mean acceleration is +z.
func decompose(samples []models.AccelerometerSample) (norms, zs, xyNorms []float64) {
	vecs := make([]r3.Vec, len(samples))
	var sum r3.Vec
	for i, s := range samples {
		vecs[i] = r3.Vec{X: s.X, Y: s.Y, Z: s.Z}
		sum = r3.Add(sum, vecs[i])
	}
	mean := r3.Scale(1/float64(len(samples)), sum)
	rot := gravityAlignment(mean)

	norms = make([]float64, len(vecs))
	zs = make([]float64, len(vecs))
	xyNorms = make([]float64, len(vecs))
	for i, v := range vecs {
		norms[i] = r3.Norm(v)
		rv := rot(v)
		zs[i] = rv.Z
		xyNorms[i] = math.Hypot(rv.X, rv.Y)
	}
	return norms, zs, xyNorms
}

// gravityAlignment returns the rotation taking from onto +z
func gravityAlignment(from r3.Vec) func(r3.Vec) r3.Vec {
	up := r3.Vec{Z: 1}
	if r3.Norm(from) == 0 {
		return func(v r3.Vec) r3.Vec { return v }
	}

	unit := r3.Unit(from)
	axis := r3.Cross(unit, up)
	if r3.Norm(axis) < 1e-9 {
		if r3.Dot(unit, up) > 0 {
			return func(v r3.Vec) r3.Vec { return v }
		}
		flip := r3.NewRotation(math.Pi, r3.Vec{X: 1})
		return flip.Rotate
	}

	theta := math.Acos(math.Max(-1, math.Min(1, r3.Dot(unit, up))))
	return r3.NewRotation(theta, r3.Unit(axis)).Rotate
}

func signalFeatures(signal []float64, rate float64) []float64 {
	n := len(signal)
	m := stats.Describe(signal)

	power := stats.PowerSpectrum(signal)
	dominant := stats.DominantPower(power)

	// Nyquist bin excluded from the integrals
	spectrum := power[:n/2]
	integral := stats.Trapezoid(spectrum[1:])

	lowEnd := int(math.Floor(float64(n)/rate*lowBandHz)) + 1
	if lowEnd > len(spectrum) {
		lowEnd = len(spectrum)
	}
	lowIntegral := stats.Trapezoid(spectrum[1:lowEnd])

	out := []float64{
		m.Max,
		m.Mean,
		stats.MaxRollingMean(signal, rollingMeanSpan),
		m.StdDev,
		m.Skew,
		m.Kurtosis,
		dominant,
		integral,
		lowIntegral,
	}
	out = append(out, stats.Percentiles(signal, percentiles)...)
	out = append(out, stats.SpectralEntropy(spectrum[1:]))
	return out
}
