package sensor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/spatial"
)

// DefaultReplayStep is how far the replay clock moves between ticks when
// no recorded event falls in between
const DefaultReplayStep = 10 * time.Second

// ZoneProvider lists the zones currently monitored
type ZoneProvider func() []models.TriggerZone

// Dispatcher consumes replayed events, returning once each is handled
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
	Tick(ctx context.Context) error
}

// Replay plays recorded location and accelerometer data through a
// Dispatcher on a mock clock. It stands in for the platform: it is the
// Source, the Keepalive, and the geofence monitor, synthesizing enter and
// exit events from the zones the provider reports.
type Replay struct {
	locations []models.LocationSample
	accel     []models.AccelerometerSample
	zones     ZoneProvider
	step      time.Duration

	mu        sync.Mutex
	sampling  bool
	deferrals int
	inside    map[string]bool
	tasks     map[string]string
}

// NewReplay creates a replay over the given recordings. zones may be nil.
func NewReplay(locations []models.LocationSample, accel []models.AccelerometerSample, zones ZoneProvider) *Replay {
	return &Replay{
		locations: locations,
		accel:     accel,
		zones:     zones,
		step:      DefaultReplayStep,
		inside:    make(map[string]bool),
		tasks:     make(map[string]string),
	}
}

// SetStep changes the idle tick step
func (r *Replay) SetStep(step time.Duration) {
	if step > 0 {
		r.step = step
	}
}

// Start is the timestamp of the earliest recorded event
func (r *Replay) Start() time.Time {
	var start time.Time
	if len(r.locations) > 0 {
		start = r.locations[0].Timestamp
	}
	if len(r.accel) > 0 && (start.IsZero() || r.accel[0].Timestamp.Before(start)) {
		start = r.accel[0].Timestamp
	}
	return start
}

// RequestDeferral records the request. Replayed fixes are always delivered.
func (r *Replay) RequestDeferral(maxDistance float64, timeout time.Duration) error {
	r.mu.Lock()
	r.deferrals++
	r.mu.Unlock()
	return nil
}

// ArmContinuousSampling starts forwarding accelerometer samples
func (r *Replay) ArmContinuousSampling() error {
	r.mu.Lock()
	r.sampling = true
	r.mu.Unlock()
	return nil
}

// DisarmContinuousSampling stops forwarding accelerometer samples
func (r *Replay) DisarmContinuousSampling() error {
	r.mu.Lock()
	r.sampling = false
	r.mu.Unlock()
	return nil
}

// BeginBackgroundTask hands out a token that never expires on its own
func (r *Replay) BeginBackgroundTask(name string) (string, error) {
	id := uuid.New().String()
	r.mu.Lock()
	r.tasks[id] = name
	r.mu.Unlock()
	return id, nil
}

// EndBackgroundTask returns a token
func (r *Replay) EndBackgroundTask(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}

// Deferrals is how many times deferral was requested
func (r *Replay) Deferrals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deferrals
}

// OpenTasks is the number of background tokens not yet returned
func (r *Replay) OpenTasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *Replay) samplingArmed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampling
}

// Run plays every event in timestamp order, then keeps ticking for tail so
// pending timers can fire.
func (r *Replay) Run(ctx context.Context, clk *clock.Mock, d Dispatcher, tail time.Duration) error {
	start := r.Start()
	if start.IsZero() {
		return fmt.Errorf("failed to replay: no recorded events")
	}
	clk.Set(start)
	log.Printf("[Replay] Starting at %s: %d locations, %d accelerometer samples",
		start.Format(time.RFC3339), len(r.locations), len(r.accel))

	li, ai := 0, 0
	for li < len(r.locations) || ai < len(r.accel) {
		if err := ctx.Err(); err != nil {
			return err
		}

		var ev Event
		var at time.Time
		if ai >= len(r.accel) || (li < len(r.locations) && !r.accel[ai].Timestamp.Before(r.locations[li].Timestamp)) {
			ev = LocationUpdate(r.locations[li])
			at = r.locations[li].Timestamp
			li++
		} else {
			ev = AccelerometerUpdate(r.accel[ai])
			at = r.accel[ai].Timestamp
			ai++
		}

		if err := r.advance(ctx, clk, d, at); err != nil {
			return err
		}

		if ev.Type == EventAccelerometer && !r.samplingArmed() {
			continue
		}
		if err := d.Dispatch(ctx, ev); err != nil {
			return fmt.Errorf("failed to dispatch %s: %w", ev.Type, err)
		}
		if ev.Type == EventLocation {
			if err := r.crossZones(ctx, d, ev.Location); err != nil {
				return err
			}
		}
	}

	if err := r.advance(ctx, clk, d, clk.Now().Add(tail)); err != nil {
		return err
	}
	log.Printf("[Replay] Finished at %s", clk.Now().Format(time.RFC3339))
	return nil
}

// advance moves the clock to at, ticking every step on the way
func (r *Replay) advance(ctx context.Context, clk *clock.Mock, d Dispatcher, at time.Time) error {
	for next := clk.Now().Add(r.step); next.Before(at); next = next.Add(r.step) {
		clk.Set(next)
		if err := d.Tick(ctx); err != nil {
			return fmt.Errorf("failed to tick: %w", err)
		}
	}
	if at.After(clk.Now()) {
		clk.Set(at)
		return d.Tick(ctx)
	}
	return nil
}

// crossZones dispatches enter and exit events for zones whose containment
// changed with this fix
func (r *Replay) crossZones(ctx context.Context, d Dispatcher, s models.LocationSample) error {
	if r.zones == nil {
		return nil
	}

	for _, z := range r.zones() {
		r.mu.Lock()
		was, seen := r.inside[z.ID]
		if !seen {
			was = z.IsCurrentlyInside
		}
		now := spatial.Distance(z.Center, s.Coordinate()) <= z.Radius
		r.inside[z.ID] = now
		r.mu.Unlock()

		var ev Event
		switch {
		case now && !was:
			ev = GeofenceEnter(z.ID)
		case !now && was:
			ev = GeofenceExit(z.ID)
		default:
			continue
		}
		if err := d.Dispatch(ctx, ev); err != nil {
			return fmt.Errorf("failed to dispatch %s: %w", ev.Type, err)
		}
	}
	return nil
}
