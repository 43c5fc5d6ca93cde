package stats

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/integrate"
)

// PowerSpectrum applies a Hamming window to signal and returns the squared
// magnitude of each real FFT coefficient (len(signal)/2+1 bins, DC first).
func PowerSpectrum(signal []float64) []float64 {
	if len(signal) == 0 {
		return nil
	}

	windowed := make([]float64, len(signal))
	copy(windowed, signal)
	window.Hamming(windowed)

	fft := fourier.NewFFT(len(windowed))
	coeffs := fft.Coefficients(nil, windowed)

	power := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag := cmplx.Abs(c)
		power[i] = mag * mag
	}
	return power
}

// DominantPower is the strongest non-DC bin
func DominantPower(power []float64) float64 {
	var best float64
	for i := 1; i < len(power); i++ {
		if power[i] > best {
			best = power[i]
		}
	}
	return best
}

// Trapezoid integrates evenly spaced samples with unit step
func Trapezoid(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	x := make([]float64, len(values))
	for i := range x {
		x[i] = float64(i)
	}
	return integrate.Trapezoidal(x, values)
}
