package geofence

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/spatial"
)

// Sleep ring geometry
const (
	SleepRingZoneCount  = 9
	SleepRingDistance   = 390.0 // meters from the center to each wake zone
	SleepRingRadius     = 80.0
	SleepRingIdleRadius = 80.0
)

var ErrZoneNotFound = errors.New("zone not found")

// Signal is what a boundary crossing asks the rest of the pipeline to do
type Signal int

const (
	SignalNone Signal = iota
	SignalArm
	SignalDisarm
	SignalIdleZoneEntered
)

func (s Signal) String() string {
	switch s {
	case SignalArm:
		return "arm"
	case SignalDisarm:
		return "disarm"
	case SignalIdleZoneEntered:
		return "idle-zone-entered"
	}
	return "none"
}

// TripStatus reports whether a trip is currently open
type TripStatus interface {
	TripActive() bool
}

// Controller owns the set of trigger zones
type Controller struct {
	mu        sync.Mutex
	zones     map[string]*models.TriggerZone
	ringZones []string
	trips     TripStatus
}

// NewController creates a controller that consults trips before disarming
func NewController(trips TripStatus) *Controller {
	return &Controller{
		zones: make(map[string]*models.TriggerZone),
		trips: trips,
	}
}

// RegisterZone adds a zone. Registering the same center, radius and kind
// again returns the existing id.
func (c *Controller) RegisterZone(center models.Coordinate, radius float64, kind models.ZoneKind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, _ := c.registerLocked(center, radius, kind)
	return id
}

func (c *Controller) registerLocked(center models.Coordinate, radius float64, kind models.ZoneKind) (string, bool) {
	for id, z := range c.zones {
		if z.Center == center && z.Radius == radius && z.Kind == kind {
			return id, false
		}
	}

	id := uuid.New().String()
	c.zones[id] = &models.TriggerZone{
		ID:     id,
		Center: center,
		Radius: radius,
		Kind:   kind,
	}
	log.Printf("[Geofence] Registered %s zone %s at (%.6f, %.6f) r=%.0fm", kind, id, center.Latitude, center.Longitude, radius)
	return id, true
}

// RemoveZone stops tracking a zone
func (c *Controller) RemoveZone(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.zones[id]; !ok {
		return fmt.Errorf("failed to remove zone %s: %w", id, ErrZoneNotFound)
	}
	delete(c.zones, id)
	return nil
}

// OnEnter records a confirmed entry into zone id
func (c *Controller) OnEnter(id string) (Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	z, ok := c.zones[id]
	if !ok {
		return SignalNone, fmt.Errorf("enter %s: %w", id, ErrZoneNotFound)
	}
	if z.IsCurrentlyInside {
		return SignalNone, nil
	}
	z.IsCurrentlyInside = true

	active := c.trips != nil && c.trips.TripActive()
	switch z.Kind {
	case models.ZoneIdle:
		if active {
			return SignalIdleZoneEntered, nil
		}
		return SignalDisarm, nil
	case models.ZoneWake:
		if active {
			return SignalNone, nil
		}
		return SignalArm, nil
	}
	return SignalNone, nil
}

// OnExit records a confirmed exit from zone id
func (c *Controller) OnExit(id string) (Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	z, ok := c.zones[id]
	if !ok {
		return SignalNone, fmt.Errorf("exit %s: %w", id, ErrZoneNotFound)
	}
	z.IsCurrentlyInside = false

	if z.Kind == models.ZoneIdle {
		return SignalArm, nil
	}
	return SignalNone, nil
}

// SetupSleepRing replaces the previous sleep ring with a new one around center:
// an idle zone on the center (the device is inside it) and SleepRingZoneCount
// wake zones on a circle around it, the first due north.
func (c *Controller) SetupSleepRing(center models.Coordinate) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.ringZones {
		delete(c.zones, id)
	}
	c.ringZones = c.ringZones[:0]

	var ids []string
	idle, created := c.registerLocked(center, SleepRingIdleRadius, models.ZoneIdle)
	c.zones[idle].IsCurrentlyInside = true
	ids = append(ids, idle)
	if created {
		c.ringZones = append(c.ringZones, idle)
	}

	step := 360.0 / SleepRingZoneCount
	for i := 0; i < SleepRingZoneCount; i++ {
		lat, lon := spatial.DestinationPoint(center.Latitude, center.Longitude, float64(i)*step, SleepRingDistance)
		id, created := c.registerLocked(models.Coordinate{Latitude: lat, Longitude: lon}, SleepRingRadius, models.ZoneWake)
		ids = append(ids, id)
		if created {
			c.ringZones = append(c.ringZones, id)
		}
	}

	log.Printf("[Geofence] Sleep ring set up around (%.6f, %.6f)", center.Latitude, center.Longitude)
	return ids
}

// InsideIdleZone reports whether the device is inside any idle zone
func (c *Controller) InsideIdleZone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, z := range c.zones {
		if z.Kind == models.ZoneIdle && z.IsCurrentlyInside {
			return true
		}
	}
	return false
}

// Zones returns copies of all zones ordered by id
func (c *Controller) Zones() []models.TriggerZone {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.TriggerZone, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, *z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
