package models

import "time"

// Rating is the user's verdict on a recorded trip
type Rating string

// Rating constants
const (
	RatingUnrated Rating = "unrated"
	RatingGood    Rating = "good"
	RatingBad     Rating = "bad"
	RatingMixed   Rating = "mixed"
)

// Valid reports whether r is one of the known ratings
func (r Rating) Valid() bool {
	switch r {
	case RatingUnrated, RatingGood, RatingBad, RatingMixed:
		return true
	}
	return false
}

// Trip represents a contiguous run of motion recorded on the device
type Trip struct {
	ID   int64  `json:"id,omitempty" db:"id"`
	UUID string `json:"uuid" db:"uuid"`

	// Temporal info
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"` // set when sealed

	// Recorded data, in arrival order
	Locations   []LocationSample `json:"locations,omitempty"`
	Predictions []Prediction     `json:"predictions,omitempty"`

	// Derived
	ActivityType       ActivityType `json:"activity_type" db:"activity_type"`
	Rating             Rating       `json:"rating" db:"rating"`
	LengthMeters       float64      `json:"length_meters" db:"length_meters"`
	AverageMovingSpeed float64      `json:"average_moving_speed" db:"average_moving_speed"` // m/s
	SummaryPath        []Coordinate `json:"summary_path,omitempty"`

	// Metadata
	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// IsSealed reports whether the trip has an end time
func (t *Trip) IsSealed() bool {
	return t.EndTime != nil
}

// Duration is the span between start and end; zero while open
func (t *Trip) Duration() time.Duration {
	if t.EndTime == nil {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// Clone returns a deep copy
func (t Trip) Clone() Trip {
	out := t
	if t.EndTime != nil {
		end := *t.EndTime
		out.EndTime = &end
	}
	out.Locations = append([]LocationSample(nil), t.Locations...)
	out.Predictions = make([]Prediction, len(t.Predictions))
	for i, p := range t.Predictions {
		p.Confidences = p.Confidences.Clone()
		out.Predictions[i] = p
	}
	out.SummaryPath = append([]Coordinate(nil), t.SummaryPath...)
	return out
}

// TripsResponse represents a paginated response of trips
type TripsResponse struct {
	Data       []Trip `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
}

// TrophyProgress is the reward bookkeeping for one activity type
type TrophyProgress struct {
	ActivityType    ActivityType `json:"activity_type" db:"activity_type"`
	TripCount       int64        `json:"trip_count" db:"trip_count"`
	DistanceMeters  float64      `json:"distance_meters" db:"distance_meters"`
	DurationSeconds int64        `json:"duration_seconds" db:"duration_seconds"`
	LastEarnedAt    *time.Time   `json:"last_earned_at,omitempty" db:"last_earned_at"`
}
