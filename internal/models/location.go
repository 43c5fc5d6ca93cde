package models

import "time"

// Coordinate is a WGS84 position in degrees
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample is a single fix delivered by the location provider.
// Negative accuracy, course or speed mean the provider did not report them.
type LocationSample struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Timestamp          time.Time `json:"timestamp"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"` // meters
	Course             float64   `json:"course"`              // degrees from north
	Speed              float64   `json:"speed"`               // m/s
}

// Coordinate returns the sample position
func (s LocationSample) Coordinate() Coordinate {
	return Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}
}

// HasSpeed reports whether the provider measured a speed for this fix
func (s LocationSample) HasSpeed() bool {
	return s.Speed >= 0
}

// IsAccurate reports whether the fix is within the given horizontal accuracy
func (s LocationSample) IsAccurate(maxAccuracy float64) bool {
	return s.HorizontalAccuracy >= 0 && s.HorizontalAccuracy <= maxAccuracy
}

// AccelerometerSample is one device-frame acceleration reading.
// Uptime is the monotonic time since boot; Timestamp is wall clock and
// may jump.
type AccelerometerSample struct {
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
	Z         float64       `json:"z"`
	Uptime    time.Duration `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
}

// FeatureWindow is a closed run of accelerometer samples handed to the classifier
type FeatureWindow struct {
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Duration  time.Duration         `json:"duration"` // monotonic span of Samples
	Samples   []AccelerometerSample `json:"-"`
	Features  []float64             `json:"features,omitempty"`
	FillRatio float64               `json:"fill_ratio"`
}
