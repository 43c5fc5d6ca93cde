// Package windower cuts the accelerometer stream into fixed-duration windows
// for classification.
package windower

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/features"
	"github.com/jengzang/trip-recorder-go/internal/models"
)

// ErrWindowGapTooLarge marks a window dropped because the sample stream
// stalled or ran backwards. It is logged, never returned to callers.
var ErrWindowGapTooLarge = errors.New("window gap too large")

// Config describes the windows the loaded model expects
type Config struct {
	SessionDuration time.Duration `yaml:"session_duration"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
	MinFillRatio    float64       `yaml:"min_fill_ratio"`
	MaxGap          time.Duration `yaml:"max_gap"`
}

// Stats counts what happened to closed windows
type Stats struct {
	Emitted     int
	Underfilled int
	Gaps        int
	Failed      int
}

// Windower accumulates samples into the current window. It is driven from a
// single goroutine.
type Windower struct {
	cfg   Config
	emit  func(models.FeatureWindow)
	cur   []models.AccelerometerSample
	armed bool
	stats Stats
}

// New creates a windower. emit receives every window that passes the fill
// and gap checks, with features already computed.
func New(cfg Config, emit func(models.FeatureWindow)) (*Windower, error) {
	if cfg.SessionDuration <= 0 || cfg.SampleInterval <= 0 {
		return nil, fmt.Errorf("invalid window config: session=%v interval=%v", cfg.SessionDuration, cfg.SampleInterval)
	}
	if cfg.MinFillRatio <= 0 {
		cfg.MinFillRatio = 0.5
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = time.Second
	}
	return &Windower{cfg: cfg, emit: emit}, nil
}

// Arm opens a fresh window
func (w *Windower) Arm() {
	w.armed = true
	w.cur = w.cur[:0]
}

// Disarm closes the current partial window
func (w *Windower) Disarm() {
	if !w.armed {
		return
	}
	w.close()
	w.armed = false
}

// Stats returns the window counters
func (w *Windower) Stats() Stats {
	return w.stats
}

// Ingest adds one sample to the open window, closing it once it spans the
// session duration.
func (w *Windower) Ingest(s models.AccelerometerSample) {
	if !w.armed {
		return
	}

	if n := len(w.cur); n > 0 {
		delta := s.Uptime - w.cur[n-1].Uptime
		if delta <= 0 || delta > w.cfg.MaxGap {
			w.stats.Gaps++
			log.Printf("[Windower] Dropping %d samples: %v (delta %v)", n, ErrWindowGapTooLarge, delta)
			w.cur = w.cur[:0]
		}
	}

	w.cur = append(w.cur, s)
	if w.span() >= w.cfg.SessionDuration {
		w.close()
	}
}

func (w *Windower) span() time.Duration {
	if len(w.cur) < 2 {
		return 0
	}
	return w.cur[len(w.cur)-1].Uptime - w.cur[0].Uptime
}

// expectedSamples is the sample count of a full window at the model's rate
func (w *Windower) expectedSamples() float64 {
	return float64(w.cfg.SessionDuration/w.cfg.SampleInterval) + 1
}

func (w *Windower) close() {
	if len(w.cur) == 0 {
		return
	}

	samples := make([]models.AccelerometerSample, len(w.cur))
	copy(samples, w.cur)
	w.cur = w.cur[:0]

	fill := float64(len(samples)) / w.expectedSamples()
	if fill < w.cfg.MinFillRatio || len(samples) < features.MinSamples {
		w.stats.Underfilled++
		log.Printf("[Windower] Discarding window with %d samples (fill %.2f < %.2f)", len(samples), fill, w.cfg.MinFillRatio)
		return
	}

	vec, err := features.Extract(samples)
	if err != nil {
		w.stats.Failed++
		log.Printf("[Windower] Failed to extract features: %v", err)
		return
	}

	// Wall clock may have jumped inside the window; date it by monotonic span
	first, last := samples[0], samples[len(samples)-1]
	duration := last.Uptime - first.Uptime
	w.stats.Emitted++
	if w.emit != nil {
		w.emit(models.FeatureWindow{
			Start:     first.Timestamp,
			End:       first.Timestamp.Add(duration),
			Duration:  duration,
			Samples:   samples,
			Features:  vec,
			FillRatio: fill,
		})
	}
}
