package tripmachine

import (
	"testing"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/spatial"
)

type recordingSink struct {
	sealed    []models.Trip
	discarded []models.Trip
	reasons   []string
}

func (r *recordingSink) TripSealed(t models.Trip) { r.sealed = append(r.sealed, t) }

func (r *recordingSink) TripDiscarded(t models.Trip, reason string) {
	r.discarded = append(r.discarded, t)
	r.reasons = append(r.reasons, reason)
}

var t0 = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

// track produces samples heading north at speed, one per step
type track struct {
	lat, lon float64
	last     time.Time
}

func newTrack() *track {
	return &track{lat: 45.5231, lon: -122.6765, last: t0}
}

func (tr *track) sample(sec, speed float64) models.LocationSample {
	ts := at(sec)
	dist := speed * ts.Sub(tr.last).Seconds()
	if dist > 0 {
		tr.lat, tr.lon = spatial.DestinationPoint(tr.lat, tr.lon, 0, dist)
	}
	tr.last = ts
	return models.LocationSample{
		Latitude:           tr.lat,
		Longitude:          tr.lon,
		Timestamp:          ts,
		HorizontalAccuracy: 5,
		Course:             0,
		Speed:              speed,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StillnessTimeout = 20 * time.Second
	cfg.SlowTimeout = 0
	cfg.GracePeriod = 30 * time.Second
	cfg.MinTripDuration = 30 * time.Second
	cfg.MinMotorizedLength = 0
	cfg.MinLocationCount = 2
	return cfg
}

func TestScenarioShortTripIsDiscarded(t *testing.T) {
	for _, tt := range []struct {
		name        string
		minDuration time.Duration
		wantSealed  bool
	}{
		{"below minimum duration", 30 * time.Second, false},
		{"above minimum duration", 5 * time.Second, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MinTripDuration = tt.minDuration
			sink := &recordingSink{}
			m := New(cfg, sink)
			tr := newTrack()

			m.Arm()
			for _, sec := range []float64{0, 5, 10} {
				m.HandleFlush([]models.LocationSample{tr.sample(sec, 4)}, at(sec))
				if sec == 0 {
					if m.State() != StateActive {
						t.Fatalf("expected active at t=0, got %s", m.State())
					}
					trip, _ := m.CurrentTrip()
					if !trip.StartTime.Equal(at(0)) {
						t.Fatalf("expected start at t=0, got %v", trip.StartTime)
					}
				}
			}

			m.IdleZoneEntered(at(40))
			if m.State() != StateEnding {
				t.Fatalf("expected ending after idle zone entry, got %s", m.State())
			}
			if !m.endingSince.Equal(at(30)) {
				t.Errorf("expected ending to start at t=30, got %v", m.endingSince.Sub(t0))
			}

			m.Tick(at(59))
			if m.State() != StateEnding {
				t.Fatalf("sealed before grace expiry")
			}
			m.Tick(at(60))
			if m.State() != StateIdle {
				t.Fatalf("expected idle after seal, got %s", m.State())
			}

			var trip models.Trip
			if tt.wantSealed {
				if len(sink.sealed) != 1 || len(sink.discarded) != 0 {
					t.Fatalf("expected 1 sealed trip, got %d sealed / %d discarded", len(sink.sealed), len(sink.discarded))
				}
				trip = sink.sealed[0]
			} else {
				if len(sink.sealed) != 0 || len(sink.discarded) != 1 {
					t.Fatalf("expected 1 discarded trip, got %d sealed / %d discarded", len(sink.sealed), len(sink.discarded))
				}
				trip = sink.discarded[0]
			}
			if !trip.EndTime.Equal(at(10)) {
				t.Errorf("expected end at t=10, got %v", trip.EndTime)
			}
			if trip.Duration() != 10*time.Second {
				t.Errorf("expected 10s duration, got %v", trip.Duration())
			}
		})
	}
}

func TestResumeKeepsStartTime(t *testing.T) {
	sink := &recordingSink{}
	m := New(testConfig(), sink)
	tr := newTrack()
	m.Arm()

	m.HandleFlush([]models.LocationSample{tr.sample(0, 5), tr.sample(5, 5)}, at(5))
	original, _ := m.CurrentTrip()

	m.Tick(at(25))
	if m.State() != StateEnding {
		t.Fatalf("expected ending after stillness, got %s", m.State())
	}

	// A stop at a light: stationary fixes, then motion
	m.HandleFlush([]models.LocationSample{tr.sample(30, 0)}, at(30))
	if m.State() != StateEnding {
		t.Fatalf("stationary sample must not resume the trip")
	}
	m.HandleFlush([]models.LocationSample{tr.sample(40, 6)}, at(40))
	if m.State() != StateActive {
		t.Fatalf("expected resume, got %s", m.State())
	}

	resumed, _ := m.CurrentTrip()
	if resumed.UUID != original.UUID || !resumed.StartTime.Equal(original.StartTime) {
		t.Errorf("resume changed the trip: %s@%v -> %s@%v", original.UUID, original.StartTime, resumed.UUID, resumed.StartTime)
	}
	if len(resumed.Locations) != 4 {
		t.Errorf("expected held samples to be appended on resume, got %d locations", len(resumed.Locations))
	}

	m.HandleFlush([]models.LocationSample{tr.sample(60, 6)}, at(60))
	m.ForceEnd(at(61), "test")
	if len(sink.sealed) != 1 {
		t.Fatalf("expected exactly one trip, got %d", len(sink.sealed))
	}
}

func TestEveryArmedSampleLandsInExactlyOneTrip(t *testing.T) {
	sink := &recordingSink{}
	m := New(testConfig(), sink)
	tr := newTrack()
	m.Arm()

	var fed []models.LocationSample
	feed := func(now float64, samples ...models.LocationSample) {
		fed = append(fed, samples...)
		m.HandleFlush(samples, at(now))
	}

	// Stationary samples before motion are dropped
	feed(0, tr.sample(0, 0), tr.sample(1, 0.5))
	feed(10, tr.sample(5, 3), tr.sample(10, 3))
	feed(20, tr.sample(20, 3))
	// Crawling during the grace period, then the trip seals
	feed(50, tr.sample(50, 0.5))
	m.Tick(at(100))
	feed(110, tr.sample(110, 0.2), tr.sample(111, 4))
	feed(130, tr.sample(130, 4), tr.sample(140, 4))
	m.Tick(at(300))

	seen := make(map[time.Time]int)
	for _, trip := range append(sink.sealed, sink.discarded...) {
		for _, s := range trip.Locations {
			seen[s.Timestamp]++
		}
	}
	for ts, n := range seen {
		if n != 1 {
			t.Errorf("sample at %v appears %d times", ts.Sub(t0), n)
		}
	}
	if _, ok := seen[at(0)]; ok {
		t.Errorf("pre-motion sample should have been discarded")
	}
	if _, ok := seen[at(110)]; ok {
		t.Errorf("pre-motion sample of second trip should have been discarded")
	}
	if len(seen) != len(fed)-3 {
		t.Errorf("expected %d samples across trips, got %d", len(fed)-3, len(seen))
	}
	if total := len(sink.sealed) + len(sink.discarded); total != 2 {
		t.Errorf("expected 2 trips, got %d", total)
	}
}

func TestDataHeldDuringEndingJoinsSealedTrip(t *testing.T) {
	sink := &recordingSink{}
	m := New(testConfig(), sink)
	tr := newTrack()
	m.Arm()

	m.HandleFlush([]models.LocationSample{tr.sample(0, 5), tr.sample(40, 5)}, at(40))
	m.Tick(at(60))
	if m.State() != StateEnding {
		t.Fatalf("expected ending after stillness, got %s", m.State())
	}
	m.HandleFlush([]models.LocationSample{tr.sample(65, 0.5)}, at(65))
	m.HandleClassification(prediction(at(60), models.ActivityCycling, 0.9), at(66))
	if m.State() != StateEnding {
		t.Fatalf("slow sample resumed the trip: %s", m.State())
	}
	m.Tick(at(200))

	if len(sink.sealed) != 1 {
		t.Fatalf("expected a sealed trip, got %d sealed (%v)", len(sink.sealed), sink.reasons)
	}
	trip := sink.sealed[0]
	if len(trip.Locations) != 3 {
		t.Errorf("expected 3 samples in the trip, got %d", len(trip.Locations))
	}
	if len(trip.Predictions) != 1 {
		t.Errorf("expected the held window in the trip, got %d", len(trip.Predictions))
	}
	if !trip.EndTime.Equal(at(65)) {
		t.Errorf("expected end at the last appended sample t=65, got %v", trip.EndTime.Sub(t0))
	}
}

func TestDefaultMinLocationCount(t *testing.T) {
	for _, tt := range []struct {
		samples    int
		wantSealed bool
	}{
		{6, false},
		{7, true},
	} {
		cfg := testConfig()
		cfg.MinLocationCount = DefaultConfig().MinLocationCount
		sink := &recordingSink{}
		m := New(cfg, sink)
		tr := newTrack()
		m.Arm()

		for i := 0; i < tt.samples; i++ {
			sec := float64(i * 10)
			m.HandleFlush([]models.LocationSample{tr.sample(sec, 5)}, at(sec))
		}
		m.ForceEnd(at(float64(tt.samples*10)), "test")

		if got := len(sink.sealed) == 1; got != tt.wantSealed {
			t.Errorf("%d samples: sealed=%v, want %v (%v)", tt.samples, got, tt.wantSealed, sink.reasons)
		}
	}
}

func TestSealedTripIsNotMutated(t *testing.T) {
	sink := &recordingSink{}
	m := New(testConfig(), sink)
	tr := newTrack()
	m.Arm()

	m.HandleFlush([]models.LocationSample{tr.sample(0, 5), tr.sample(40, 5)}, at(40))
	m.Tick(at(100))
	if len(sink.sealed) != 1 {
		t.Fatalf("expected a sealed trip, got %d", len(sink.sealed))
	}
	sealed := sink.sealed[0]
	count := len(sealed.Locations)

	m.HandleFlush([]models.LocationSample{tr.sample(110, 5)}, at(110))
	m.HandleClassification(prediction(at(110), models.ActivityCycling, 1), at(111))
	if len(sealed.Locations) != count || len(sealed.Predictions) != 0 {
		t.Errorf("sealed trip changed after a new trip started")
	}
	current, _ := m.CurrentTrip()
	if current.UUID == sealed.UUID {
		t.Errorf("new trip reused the sealed trip's uuid")
	}
}

func TestStillnessAndSlowTimeouts(t *testing.T) {
	cfg := testConfig()
	cfg.StillnessTimeout = time.Minute
	cfg.SlowTimeout = 45 * time.Second
	m := New(cfg, &recordingSink{})
	tr := newTrack()
	m.Arm()

	m.HandleFlush([]models.LocationSample{tr.sample(0, 5)}, at(0))
	// Flushes keep arriving but the device crawls
	m.HandleFlush([]models.LocationSample{tr.sample(20, 0.3)}, at(20))
	m.HandleFlush([]models.LocationSample{tr.sample(40, 0.3)}, at(40))
	if m.State() != StateActive {
		t.Fatalf("ended too early: %s", m.State())
	}
	m.HandleFlush([]models.LocationSample{tr.sample(50, 0.3)}, at(50))
	if m.State() != StateEnding {
		t.Fatalf("expected slow-movement timeout, got %s", m.State())
	}
	if !m.endingSince.Equal(at(45)) {
		t.Errorf("expected ending at t=45, got %v", m.endingSince.Sub(t0))
	}
}

func TestDisarmIgnoredDuringTrip(t *testing.T) {
	m := New(testConfig(), &recordingSink{})
	tr := newTrack()

	m.HandleFlush([]models.LocationSample{tr.sample(0, 5)}, at(0))
	if m.State() != StateIdle {
		t.Fatalf("disarmed machine must not start a trip")
	}

	m.Arm()
	m.HandleFlush([]models.LocationSample{tr.sample(1, 5)}, at(1))
	if m.Disarm() {
		t.Errorf("expected disarm to be refused during a trip")
	}
	if !m.Armed() || m.State() != StateActive {
		t.Errorf("trip was disturbed by disarm")
	}
}

func TestCalculatedSpeedQualifies(t *testing.T) {
	m := New(testConfig(), &recordingSink{})
	tr := newTrack()
	m.Arm()

	a := tr.sample(0, 4)
	b := tr.sample(10, 4)
	a.Speed, b.Speed = -1, -1
	m.HandleFlush([]models.LocationSample{a, b}, at(10))
	if m.State() != StateActive {
		t.Fatalf("expected calculated speed to start a trip")
	}
	trip, _ := m.CurrentTrip()
	if !trip.StartTime.Equal(at(10)) {
		t.Errorf("expected the second sample to start the trip, got %v", trip.StartTime.Sub(t0))
	}

	// A teleport is not motion
	m2 := New(testConfig(), &recordingSink{})
	m2.Arm()
	c := models.LocationSample{Latitude: 45, Longitude: -122, Timestamp: at(0), HorizontalAccuracy: 5, Speed: -1}
	d := models.LocationSample{Latitude: 46, Longitude: -122, Timestamp: at(10), HorizontalAccuracy: 5, Speed: -1}
	m2.HandleFlush([]models.LocationSample{c, d}, at(10))
	if m2.State() != StateIdle {
		t.Errorf("implausible calculated speed started a trip")
	}
}

func TestInaccurateSamplesDoNotStartTrips(t *testing.T) {
	m := New(testConfig(), &recordingSink{})
	tr := newTrack()
	m.Arm()

	s := tr.sample(0, 10)
	s.HorizontalAccuracy = 150
	m.HandleFlush([]models.LocationSample{s}, at(0))
	if m.State() != StateIdle {
		t.Errorf("inaccurate fix started a trip")
	}
}

func TestActivityFromPredictions(t *testing.T) {
	sink := &recordingSink{}
	m := New(testConfig(), sink)
	tr := newTrack()
	m.Arm()

	// Classified before GPS confirmed motion
	m.HandleClassification(prediction(at(-10), models.ActivityCycling, 0.9), at(-10))
	m.HandleFlush([]models.LocationSample{tr.sample(0, 5)}, at(0))
	trip, _ := m.CurrentTrip()
	if len(trip.Predictions) != 1 || trip.ActivityType != models.ActivityCycling {
		t.Fatalf("expected pre-trip window to be attached, got %d predictions (%s)", len(trip.Predictions), trip.ActivityType)
	}

	for i := 1; i <= 4; i++ {
		m.HandleClassification(prediction(at(float64(i*10)), models.ActivityCycling, 0.8), at(float64(i*10)))
		m.HandleFlush([]models.LocationSample{tr.sample(float64(i*10), 5)}, at(float64(i*10)))
	}
	m.ForceEnd(at(45), "test")

	if len(sink.sealed) != 1 {
		t.Fatalf("expected sealed trip, got %d (%v)", len(sink.sealed), sink.reasons)
	}
	if got := sink.sealed[0].ActivityType; got != models.ActivityCycling {
		t.Errorf("expected cycling, got %s", got)
	}
	if len(sink.sealed[0].SummaryPath) < 2 {
		t.Errorf("expected a summary path")
	}
}

func TestLocationOnlyFallbackAndSlowCycling(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		preds []models.Prediction
		want  models.ActivityType
	}{
		{"no model, car speed", 15, nil, models.ActivityAutomotive},
		{"no model, bike speed", 5, nil, models.ActivityCycling},
		{"slow cycling becomes walking", 1.5, []models.Prediction{prediction(at(0), models.ActivityCycling, 0.9)}, models.ActivityWalking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MinMotionSpeed = 1
			sink := &recordingSink{}
			m := New(cfg, sink)
			tr := newTrack()
			m.Arm()

			m.HandleFlush([]models.LocationSample{tr.sample(0, tt.speed)}, at(0))
			for _, p := range tt.preds {
				m.HandleClassification(p, at(1))
			}
			for sec := 10.0; sec <= 60; sec += 10 {
				m.HandleFlush([]models.LocationSample{tr.sample(sec, tt.speed)}, at(sec))
			}
			m.ForceEnd(at(61), "test")

			if len(sink.sealed) != 1 {
				t.Fatalf("expected sealed trip, got %v", sink.reasons)
			}
			if got := sink.sealed[0].ActivityType; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestShortMotorizedTripIsDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.MinMotorizedLength = 250
	sink := &recordingSink{}
	m := New(cfg, sink)
	tr := newTrack()
	m.Arm()

	m.HandleFlush([]models.LocationSample{tr.sample(0, 3)}, at(0))
	m.HandleClassification(prediction(at(0), models.ActivityAutomotive, 1), at(1))
	m.HandleFlush([]models.LocationSample{tr.sample(40, 3)}, at(40))
	m.ForceEnd(at(41), "test")

	if len(sink.discarded) != 1 {
		t.Fatalf("expected short car trip to be discarded, got %d sealed", len(sink.sealed))
	}
}

func TestForceEndIsNoopWhenIdle(t *testing.T) {
	sink := &recordingSink{}
	m := New(testConfig(), sink)
	m.ForceEnd(at(0), "budget expired")
	if len(sink.sealed)+len(sink.discarded) != 0 || m.State() != StateIdle {
		t.Errorf("ForceEnd on idle machine had effects")
	}
}
