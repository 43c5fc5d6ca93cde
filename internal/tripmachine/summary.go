package tripmachine

import (
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/spatial"
	"github.com/jengzang/trip-recorder-go/internal/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// finalize fills the derived fields of a trip that just got its end time
func (m *Machine) finalize(t *models.Trip) {
	t.LengthMeters = spatial.PathLength(t.Locations, m.cfg.AcceptableAccuracy)
	t.AverageMovingSpeed = m.averageMovingSpeed(t)
	t.SummaryPath = m.summaryPath(t.Locations)

	activity := Aggregate(t.Predictions, m.cfg.Weighting)
	if activity == models.ActivityUnknown {
		activity = classifyBySpeed(t.AverageMovingSpeed)
	}
	if activity == models.ActivityCycling && t.AverageMovingSpeed > 0 && t.AverageMovingSpeed < m.cfg.WalkingSpeedCeiling {
		activity = models.ActivityWalking
	}
	t.ActivityType = activity
}

// averageMovingSpeed averages the reported speeds of accurate fixes that
// were moving. Without any, it falls back to length over duration.
func (m *Machine) averageMovingSpeed(t *models.Trip) float64 {
	var speeds []float64
	for _, s := range t.Locations {
		if s.IsAccurate(m.cfg.AcceptableAccuracy) && s.Speed > 0 {
			speeds = append(speeds, s.Speed)
		}
	}
	if len(speeds) > 0 {
		return stats.Mean(speeds)
	}
	if d := t.Duration().Seconds(); d > 0 {
		return t.LengthMeters / d
	}
	return 0
}

// summaryPath is the Douglas-Peucker simplified track of accurate fixes
func (m *Machine) summaryPath(samples []models.LocationSample) []models.Coordinate {
	ls := make(orb.LineString, 0, len(samples))
	for _, s := range samples {
		if s.IsAccurate(m.cfg.AcceptableAccuracy) {
			ls = append(ls, orb.Point{s.Longitude, s.Latitude})
		}
	}
	if len(ls) > 2 && m.cfg.SummaryTolerance > 0 {
		ls = simplify.DouglasPeucker(m.cfg.SummaryTolerance).LineString(ls)
	}

	path := make([]models.Coordinate, len(ls))
	for i, p := range ls {
		path[i] = models.Coordinate{Latitude: p.Lat(), Longitude: p.Lon()}
	}
	return path
}
