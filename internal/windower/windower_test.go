package windower

import (
	"math"
	"testing"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

// 128 samples at 20 Hz
var testConfig = Config{
	SessionDuration: 6350 * time.Millisecond,
	SampleInterval:  50 * time.Millisecond,
	MinFillRatio:    0.5,
	MaxGap:          time.Second,
}

var wall = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

type feeder struct {
	uptime time.Duration
	wall   time.Time
	i      int
}

func (f *feeder) next(step time.Duration) models.AccelerometerSample {
	f.uptime += step
	f.wall = f.wall.Add(step)
	f.i++
	return models.AccelerometerSample{
		X:         0.3 * math.Sin(float64(f.i)),
		Y:         0.2 * math.Cos(float64(f.i)),
		Z:         9.81,
		Uptime:    f.uptime,
		Timestamp: f.wall,
	}
}

func newFeeder() *feeder {
	return &feeder{uptime: time.Hour, wall: wall}
}

func collect(t *testing.T) (*Windower, *[]models.FeatureWindow) {
	t.Helper()
	var got []models.FeatureWindow
	w, err := New(testConfig, func(fw models.FeatureWindow) { got = append(got, fw) })
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w.Arm()
	return w, &got
}

func TestFullWindowIsEmitted(t *testing.T) {
	w, got := collect(t)
	f := newFeeder()

	w.Ingest(f.next(0))
	for i := 1; i < 128; i++ {
		w.Ingest(f.next(50 * time.Millisecond))
	}

	if len(*got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(*got))
	}
	fw := (*got)[0]
	if fw.Duration != testConfig.SessionDuration {
		t.Errorf("expected duration %v, got %v", testConfig.SessionDuration, fw.Duration)
	}
	if len(fw.Samples) != 128 || fw.FillRatio != 1 {
		t.Errorf("expected 128 samples at fill 1.0, got %d at %.2f", len(fw.Samples), fw.FillRatio)
	}
	if len(fw.Features) == 0 {
		t.Errorf("expected features to be computed")
	}
}

func TestFillRatioGate(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		emitted  bool
	}{
		{"native duty cycle at half rate", 100 * time.Millisecond, true},
		{"too sparse", 150 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, got := collect(t)
			f := newFeeder()
			w.Ingest(f.next(0))
			for i := 0; i < 200 && w.Stats().Emitted+w.Stats().Underfilled == 0; i++ {
				w.Ingest(f.next(tt.interval))
			}

			if tt.emitted && len(*got) != 1 {
				t.Fatalf("expected window to be classified, got %d", len(*got))
			}
			if !tt.emitted && (len(*got) != 0 || w.Stats().Underfilled != 1) {
				t.Fatalf("expected underfilled window to be discarded, stats %+v", w.Stats())
			}
		})
	}
}

func TestGapDiscardsWindow(t *testing.T) {
	w, got := collect(t)
	f := newFeeder()

	w.Ingest(f.next(0))
	for i := 0; i < 60; i++ {
		w.Ingest(f.next(50 * time.Millisecond))
	}
	w.Ingest(f.next(5 * time.Second))

	if w.Stats().Gaps != 1 {
		t.Fatalf("expected 1 gap, got %+v", w.Stats())
	}
	// The window restarted at the late sample; 127 more complete it
	for i := 0; i < 127; i++ {
		w.Ingest(f.next(50 * time.Millisecond))
	}
	if len(*got) != 1 || len((*got)[0].Samples) != 128 {
		t.Fatalf("expected one fresh full window after the gap, got %d", len(*got))
	}
}

func TestBackwardsUptimeDiscardsWindow(t *testing.T) {
	w, _ := collect(t)
	f := newFeeder()

	w.Ingest(f.next(0))
	w.Ingest(f.next(50 * time.Millisecond))
	w.Ingest(f.next(-time.Second))

	if w.Stats().Gaps != 1 {
		t.Errorf("expected backwards step to count as a gap, got %+v", w.Stats())
	}
}

func TestWallClockJumpDoesNotAffectDuration(t *testing.T) {
	w, got := collect(t)
	f := newFeeder()

	w.Ingest(f.next(0))
	for i := 1; i < 128; i++ {
		if i == 64 {
			f.wall = f.wall.Add(-time.Hour)
		}
		w.Ingest(f.next(50 * time.Millisecond))
	}

	if len(*got) != 1 {
		t.Fatalf("expected wall clock jump to be ignored, got %d windows", len(*got))
	}
	if (*got)[0].Duration != testConfig.SessionDuration {
		t.Errorf("expected monotonic duration %v, got %v", testConfig.SessionDuration, (*got)[0].Duration)
	}
}

func TestDisarmClosesPartialWindow(t *testing.T) {
	w, got := collect(t)
	f := newFeeder()
	w.Ingest(f.next(0))
	for i := 1; i < 100; i++ {
		w.Ingest(f.next(50 * time.Millisecond))
	}
	w.Disarm()
	if len(*got) != 1 {
		t.Fatalf("expected partial window above fill ratio to be emitted, got %d", len(*got))
	}

	w.Arm()
	for i := 0; i < 30; i++ {
		w.Ingest(f.next(50 * time.Millisecond))
	}
	w.Disarm()
	if len(*got) != 1 || w.Stats().Underfilled != 1 {
		t.Errorf("expected short partial window to be discarded, stats %+v", w.Stats())
	}

	// Disarmed windower ignores samples
	w.Ingest(f.next(50 * time.Millisecond))
	w.Disarm()
	if w.Stats().Underfilled != 1 {
		t.Errorf("disarmed windower accepted samples")
	}
}
