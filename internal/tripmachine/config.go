package tripmachine

import "time"

// Config holds the segmentation thresholds
type Config struct {
	MinMotionSpeed      float64       `yaml:"min_motion_speed"`    // m/s a sample needs to count as motion
	MaxPlausibleSpeed   float64       `yaml:"max_plausible_speed"` // cap for speeds derived from position
	AcceptableAccuracy  float64       `yaml:"acceptable_accuracy"` // meters
	StillnessTimeout    time.Duration `yaml:"stillness_timeout"`   // no flush at all
	SlowTimeout         time.Duration `yaml:"slow_timeout"`        // flushes, but none with motion
	GracePeriod         time.Duration `yaml:"grace_period"`
	MinTripDuration     time.Duration `yaml:"min_duration"`
	MinLocationCount    int           `yaml:"min_location_count"`
	MinMotorizedLength  float64       `yaml:"min_motorized_length"`  // meters
	WalkingSpeedCeiling float64       `yaml:"walking_speed_ceiling"` // slow "cycling" below this is walking
	SummaryTolerance    float64       `yaml:"summary_tolerance"`     // degrees
	PreTripLookback     time.Duration `yaml:"pre_trip_lookback"`
	PreTripPredictions  int           `yaml:"pre_trip_predictions"`
	Weighting           Weighting     `yaml:"weighting"`
}

// DefaultConfig returns the on-device defaults
func DefaultConfig() Config {
	return Config{
		MinMotionSpeed:      2.0,
		MaxPlausibleSpeed:   20.0,
		AcceptableAccuracy:  30.0,
		StillnessTimeout:    180 * time.Second,
		SlowTimeout:         200 * time.Second,
		GracePeriod:         120 * time.Second,
		MinTripDuration:     60 * time.Second,
		MinLocationCount:    7,
		MinMotorizedLength:  250.0,
		WalkingSpeedCeiling: 2.0,
		SummaryTolerance:    0.00005,
		PreTripLookback:     2 * time.Minute,
		PreTripPredictions:  16,
		Weighting:           Weighting{HalfLife: 4},
	}
}
