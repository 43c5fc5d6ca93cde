package models

// ZoneKind decides what crossing a trigger zone boundary means
type ZoneKind string

const (
	// ZoneIdle is a place the device rests at (home, known stationary spots).
	// Leaving it arms sampling, entering it disarms when no trip is active.
	ZoneIdle ZoneKind = "IDLE"
	// ZoneWake is a tripwire around the last resting place. Entering it arms sampling.
	ZoneWake ZoneKind = "WAKE"
)

// TriggerZone is a circular geofence
type TriggerZone struct {
	ID                string     `json:"id"`
	Center            Coordinate `json:"center"`
	Radius            float64    `json:"radius"` // meters
	Kind              ZoneKind   `json:"kind"`
	IsCurrentlyInside bool       `json:"is_currently_inside"`
}
