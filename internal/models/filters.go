package models

// TripFilter represents filter parameters for querying trips
type TripFilter struct {
	StartTime    int64   `form:"startTime"`    // Unix timestamp
	EndTime      int64   `form:"endTime"`      // Unix timestamp
	ActivityType string  `form:"activityType"` // cycling, walking, automotive, ...
	Rating       string  `form:"rating"`       // unrated, good, bad, mixed
	MinLength    float64 `form:"minLength"`    // Meters
	Page         int     `form:"page"`
	PageSize     int     `form:"pageSize"`
}
