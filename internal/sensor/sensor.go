// Package sensor defines the contract between the platform sensor layer and
// the trip pipeline, plus a replay source for recorded data.
package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

var (
	// ErrSensorUnavailable means permission was denied or the hardware is
	// absent. Arming fails and is not retried.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrDeferralFailed means the provider could not defer location delivery
	ErrDeferralFailed = errors.New("deferred location updates failed")
)

// Source is what the core may ask of the platform sensor layer
type Source interface {
	RequestDeferral(maxDistance float64, timeout time.Duration) error
	ArmContinuousSampling() error
	DisarmContinuousSampling() error
}

// Keepalive grants the "still working" token that keeps the process alive
// in the background. The host terminates the process when a token is held
// past its budget.
type Keepalive interface {
	BeginBackgroundTask(name string) (string, error)
	EndBackgroundTask(id string)
}

// EventType identifies a sensor callback
type EventType string

const (
	EventLocation       EventType = "location"
	EventDeferralFailed EventType = "deferral_failed"
	EventAccelerometer  EventType = "accelerometer"
	EventGeofenceEnter  EventType = "geofence_enter"
	EventGeofenceExit   EventType = "geofence_exit"
)

// Event is one typed sensor callback. Only the field matching Type is set.
type Event struct {
	Type          EventType
	Location      models.LocationSample
	Accelerometer models.AccelerometerSample
	ZoneID        string
	Err           error
}

// LocationUpdate wraps a location fix
func LocationUpdate(s models.LocationSample) Event {
	return Event{Type: EventLocation, Location: s}
}

// DeferredUpdateFailed wraps a deferral failure
func DeferredUpdateFailed(err error) Event {
	return Event{Type: EventDeferralFailed, Err: fmt.Errorf("%w: %w", ErrDeferralFailed, err)}
}

// AccelerometerUpdate wraps an accelerometer reading
func AccelerometerUpdate(s models.AccelerometerSample) Event {
	return Event{Type: EventAccelerometer, Accelerometer: s}
}

// GeofenceEnter reports entry into a zone
func GeofenceEnter(zoneID string) Event {
	return Event{Type: EventGeofenceEnter, ZoneID: zoneID}
}

// GeofenceExit reports exit from a zone
func GeofenceExit(zoneID string) Event {
	return Event{Type: EventGeofenceExit, ZoneID: zoneID}
}
