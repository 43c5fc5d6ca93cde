// Package tripmachine decides when trips start and end and stitches location
// batches and window classifications into trip records.
package tripmachine

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/spatial"
)

// State of the machine
type State int

const (
	StateIdle State = iota
	StateActive
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Sink receives trips leaving the machine. Sealed trips are copies the
// machine never touches again.
type Sink interface {
	TripSealed(trip models.Trip)
	TripDiscarded(trip models.Trip, reason string)
}

// Machine is the trip state machine. It is not safe for concurrent use; the
// pipeline drives it from its serialized context.
type Machine struct {
	cfg  Config
	sink Sink

	state State
	armed bool
	trip  *models.Trip

	lastSample   *models.LocationSample
	lastFlushAt  time.Time
	lastMotionAt time.Time
	endingSince  time.Time
	endingReason string

	pendingLocations   []models.LocationSample
	pendingPredictions []models.Prediction
	idlePredictions    []models.Prediction
}

// New creates an idle, disarmed machine
func New(cfg Config, sink Sink) *Machine {
	return &Machine{cfg: cfg, sink: sink}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Armed reports whether sampling is armed
func (m *Machine) Armed() bool {
	return m.armed
}

// TripActive reports whether a trip is open (active or in its grace period)
func (m *Machine) TripActive() bool {
	return m.state == StateActive || m.state == StateEnding
}

// CurrentTrip returns a copy of the open trip
func (m *Machine) CurrentTrip() (models.Trip, bool) {
	if m.trip == nil {
		return models.Trip{}, false
	}
	return m.trip.Clone(), true
}

// Arm records the geofence arming signal
func (m *Machine) Arm() {
	if m.armed {
		return
	}
	m.armed = true
	log.Printf("[TripMachine] Armed")
}

// Disarm drops the arming signal. Only an idle machine can be disarmed;
// an open trip is ended by the machine itself.
func (m *Machine) Disarm() bool {
	if m.TripActive() {
		log.Printf("[TripMachine] Ignoring disarm while %s", m.state)
		return false
	}
	m.armed = false
	m.idlePredictions = nil
	m.lastSample = nil
	log.Printf("[TripMachine] Disarmed")
	return true
}

// HandleFlush consumes one location batch delivered at now
func (m *Machine) HandleFlush(batch []models.LocationSample, now time.Time) {
	if len(batch) == 0 {
		return
	}
	m.evaluateTimers(now)

	switch m.state {
	case StateIdle:
		if !m.armed {
			return
		}
		start := -1
		for i := range batch {
			if m.qualifies(batch[i]) {
				start = i
				break
			}
		}
		m.lastFlushAt = now
		if start < 0 {
			return
		}
		m.startTrip(batch[start].Timestamp)
		m.trip.Locations = append(m.trip.Locations, batch[start:]...)
		m.lastMotionAt = now
		m.remember(batch[len(batch)-1])

	case StateActive:
		m.lastFlushAt = now
		if m.anyQualifies(batch) {
			m.lastMotionAt = now
		}
		m.trip.Locations = append(m.trip.Locations, batch...)
		m.remember(batch[len(batch)-1])

	case StateEnding:
		m.lastFlushAt = now
		if !m.anyQualifies(batch) {
			m.pendingLocations = append(m.pendingLocations, batch...)
			m.remember(batch[len(batch)-1])
			return
		}
		m.trip.Locations = append(m.trip.Locations, m.pendingLocations...)
		m.trip.Locations = append(m.trip.Locations, batch...)
		for _, p := range m.pendingPredictions {
			m.appendPrediction(p)
		}
		m.pendingLocations = nil
		m.pendingPredictions = nil
		m.lastMotionAt = now
		m.remember(batch[len(batch)-1])
		m.setState(StateActive, "motion resumed")
	}
}

// HandleClassification consumes one classified window
func (m *Machine) HandleClassification(p models.Prediction, now time.Time) {
	m.evaluateTimers(now)

	switch m.state {
	case StateIdle:
		if !m.armed {
			return
		}
		m.idlePredictions = append(m.idlePredictions, p)
		if limit := m.cfg.PreTripPredictions; limit > 0 && len(m.idlePredictions) > limit {
			m.idlePredictions = m.idlePredictions[len(m.idlePredictions)-limit:]
		}
	case StateActive:
		m.appendPrediction(p)
	case StateEnding:
		m.pendingPredictions = append(m.pendingPredictions, p)
	}
}

// IdleZoneEntered starts the grace period when the device reaches a known
// resting place during a trip.
func (m *Machine) IdleZoneEntered(now time.Time) {
	m.evaluateTimers(now)
	if m.state == StateActive {
		m.beginEnding(now, "idle zone entered")
	}
}

// Tick advances the stillness, slow-movement and grace timers to now
func (m *Machine) Tick(now time.Time) {
	m.evaluateTimers(now)
}

// ForceEnd seals an open trip immediately
func (m *Machine) ForceEnd(now time.Time, reason string) {
	if !m.TripActive() {
		return
	}
	if m.state == StateActive {
		m.beginEnding(now, reason)
	}
	m.seal(reason)
}

func (m *Machine) evaluateTimers(now time.Time) {
	if m.state == StateActive {
		if stillAt := m.lastFlushAt.Add(m.cfg.StillnessTimeout); !now.Before(stillAt) {
			m.beginEnding(stillAt, "stillness timeout")
		} else if slowAt := m.lastMotionAt.Add(m.cfg.SlowTimeout); m.cfg.SlowTimeout > 0 && !now.Before(slowAt) {
			m.beginEnding(slowAt, "slow movement timeout")
		}
	}

	if m.state == StateEnding && !now.Before(m.endingSince.Add(m.cfg.GracePeriod)) {
		m.seal("grace period expired after " + m.endingReason)
	}
}

func (m *Machine) startTrip(start time.Time) {
	m.trip = &models.Trip{
		UUID:         uuid.New().String(),
		StartTime:    start,
		Rating:       models.RatingUnrated,
		ActivityType: models.ActivityUnknown,
	}

	// Windows classified just before GPS confirmed motion belong to the trip
	for _, p := range m.idlePredictions {
		if !p.EndTime.Before(start.Add(-m.cfg.PreTripLookback)) {
			m.appendPrediction(p)
		}
	}
	m.idlePredictions = nil
	m.setState(StateActive, "motion detected")
}

func (m *Machine) appendPrediction(p models.Prediction) {
	m.trip.Predictions = append(m.trip.Predictions, p)
	m.trip.ActivityType = Aggregate(m.trip.Predictions, m.cfg.Weighting)
}

func (m *Machine) beginEnding(at time.Time, reason string) {
	m.endingSince = at
	m.endingReason = reason
	m.setState(StateEnding, reason)
}

func (m *Machine) seal(reason string) {
	trip := m.trip
	// Data held during ending still belongs to this trip
	trip.Locations = append(trip.Locations, m.pendingLocations...)
	for _, p := range m.pendingPredictions {
		m.appendPrediction(p)
	}
	end := trip.Locations[len(trip.Locations)-1].Timestamp
	trip.EndTime = &end

	m.finalize(trip)
	m.setState(StateEnded, reason)

	sealed := trip.Clone()
	if why := m.discardReason(&sealed); why != "" {
		log.Printf("[TripMachine] Discarding trip %s: %s", sealed.UUID, why)
		if m.sink != nil {
			m.sink.TripDiscarded(sealed, why)
		}
	} else {
		log.Printf("[TripMachine] Trip %s sealed: %s, %v, %.0fm, %d samples, %d windows",
			sealed.UUID, sealed.ActivityType, sealed.Duration(), sealed.LengthMeters,
			len(sealed.Locations), len(sealed.Predictions))
		if m.sink != nil {
			m.sink.TripSealed(sealed)
		}
	}

	m.trip = nil
	m.pendingLocations = nil
	m.pendingPredictions = nil
	m.endingReason = ""
	m.setState(StateIdle, "ready for next trip")
}

func (m *Machine) discardReason(t *models.Trip) string {
	switch {
	case t.Duration() < m.cfg.MinTripDuration:
		return "shorter than minimum duration"
	case len(t.Locations) < m.cfg.MinLocationCount:
		return "too few locations"
	case t.ActivityType.IsMotorized() && t.LengthMeters < m.cfg.MinMotorizedLength:
		return "motorized trip shorter than minimum length"
	}
	return ""
}

// qualifies reports whether s shows motion. A missing speed is derived from
// the previous sample and only trusted below MaxPlausibleSpeed.
func (m *Machine) qualifies(s models.LocationSample) bool {
	if !s.IsAccurate(m.cfg.AcceptableAccuracy) {
		m.remember(s)
		return false
	}

	speed := s.Speed
	if !s.HasSpeed() {
		speed = -1
		if m.lastSample != nil {
			if calc, ok := spatial.CalculatedSpeed(*m.lastSample, s); ok && calc < m.cfg.MaxPlausibleSpeed {
				speed = calc
			}
		}
	}
	m.remember(s)
	return speed >= m.cfg.MinMotionSpeed
}

func (m *Machine) anyQualifies(batch []models.LocationSample) bool {
	found := false
	for i := range batch {
		if m.qualifies(batch[i]) {
			found = true
		}
	}
	return found
}

func (m *Machine) remember(s models.LocationSample) {
	m.lastSample = &s
}

func (m *Machine) setState(s State, reason string) {
	if m.state == s {
		return
	}
	log.Printf("[TripMachine] %s -> %s (%s)", m.state, s, reason)
	m.state = s
}
