package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SpectralEntropy normalizes a power spectrum into a distribution and
// returns sum(p*log2(p)). The value is zero or negative; this sign is what
// the activity model expects.
func SpectralEntropy(power []float64) float64 {
	total := floats.Sum(power)
	if total <= 0 {
		return 0
	}

	p := make([]float64, len(power))
	floats.ScaleTo(p, 1/total, power)
	return -stat.Entropy(p) / math.Ln2
}
