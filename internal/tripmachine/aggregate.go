package tripmachine

import (
	"math"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

const scoreEpsilon = 1e-9

// Weighting controls how much older windows count when picking the trip's
// activity. A window k positions before the newest gets weight
// 0.5^(k/HalfLife). HalfLife <= 0 weighs all windows equally.
type Weighting struct {
	HalfLife float64 `yaml:"half_life"` // in windows
}

func (w Weighting) weight(age int) float64 {
	if w.HalfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/w.HalfLife)
}

// Aggregate picks the activity with the highest recency-weighted confidence
// across predictions (oldest first). Unknown and stationary never win.
// Tied scores resolve to the newest window's top class.
func Aggregate(predictions []models.Prediction, w Weighting) models.ActivityType {
	n := len(predictions)
	if n == 0 {
		return models.ActivityUnknown
	}

	scores := make(map[models.ActivityType]float64)
	for i, p := range predictions {
		weight := w.weight(n - 1 - i)
		for label, conf := range p.Confidences {
			if !label.IsMotion() {
				continue
			}
			scores[label] += weight * conf
		}
	}

	best := -1.0
	var tied []models.ActivityType
	for _, label := range sortedLabels(scores) {
		s := scores[label]
		switch {
		case s > best+scoreEpsilon:
			best = s
			tied = []models.ActivityType{label}
		case math.Abs(s-best) <= scoreEpsilon:
			tied = append(tied, label)
		}
	}
	if best <= 0 || len(tied) == 0 {
		return models.ActivityUnknown
	}
	if len(tied) == 1 {
		return tied[0]
	}

	// Newest window decides between tied classes
	latest := predictions[n-1].Confidences
	pick, pickScore := tied[0], -1.0
	for _, label := range tied {
		if latest[label] > pickScore+scoreEpsilon {
			pick, pickScore = label, latest[label]
		}
	}
	return pick
}

func sortedLabels(scores map[models.ActivityType]float64) []models.ActivityType {
	conf := make(models.ClassConfidence, len(scores))
	for k, v := range scores {
		conf[k] = v
	}
	return conf.Labels()
}

// classifyBySpeed is the location-only fallback when no window was classified.
// Speed thresholds (m/s):
// walking: 0-2, cycling: 2-8, automotive: 8-40, rail: 40-60, aviation: >60
func classifyBySpeed(speed float64) models.ActivityType {
	switch {
	case speed <= 0:
		return models.ActivityUnknown
	case speed < 2.0:
		return models.ActivityWalking
	case speed < 8.0:
		return models.ActivityCycling
	case speed < 40.0:
		return models.ActivityAutomotive
	case speed < 60.0:
		return models.ActivityRail
	default:
		return models.ActivityAviation
	}
}
