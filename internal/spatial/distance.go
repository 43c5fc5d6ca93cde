package spatial

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/jengzang/trip-recorder-go/internal/models"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Distance is HaversineDistance between two coordinates
func Distance(a, b models.Coordinate) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// DestinationPoint calculates the destination point given a start point, bearing, and distance
// bearing: degrees (0-360), distance: meters
func DestinationPoint(lat, lon, bearing, distance float64) (float64, float64) {
	p := s2.LatLngFromDegrees(lat, lon)
	bearingRad := bearing * math.Pi / 180
	angularDistance := distance / EarthRadiusMeters

	latRad := p.Lat.Radians()
	lonRad := p.Lng.Radians()

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(angularDistance) +
		math.Cos(latRad)*math.Sin(angularDistance)*math.Cos(bearingRad))

	lon2 := lonRad + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angularDistance)*math.Cos(latRad),
		math.Cos(angularDistance)-math.Sin(latRad)*math.Sin(lat2))

	return lat2 * 180 / math.Pi, lon2 * 180 / math.Pi
}

// CalculatedSpeed derives a speed in m/s from the hop between two fixes.
// ok is false when the fixes are not strictly ordered in time.
func CalculatedSpeed(prev, cur models.LocationSample) (speed float64, ok bool) {
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return HaversineDistance(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude) / dt, true
}

// PathLength sums the hops between consecutive samples whose horizontal
// accuracy is within maxAccuracy. Inaccurate samples are skipped entirely.
func PathLength(samples []models.LocationSample, maxAccuracy float64) float64 {
	var total float64
	var last *models.LocationSample
	for i := range samples {
		s := &samples[i]
		if !s.IsAccurate(maxAccuracy) {
			continue
		}
		if last != nil {
			total += HaversineDistance(last.Latitude, last.Longitude, s.Latitude, s.Longitude)
		}
		last = s
	}
	return total
}
