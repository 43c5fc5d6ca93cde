// Package batcher holds location samples back into bounded batches so the
// state machine wakes up once per batch instead of once per fix.
package batcher

import (
	"log"
	"sort"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

// Deferrer asks the location provider to hold fixes back
type Deferrer interface {
	RequestDeferral(maxDistance float64, timeout time.Duration) error
}

// Config bounds a batch
type Config struct {
	Capacity         int           `yaml:"capacity"`
	MaxDeferral      time.Duration `yaml:"max_deferral"`
	DeferralDistance float64       `yaml:"deferral_distance"` // meters, 0 = unbounded
}

// DefaultConfig returns the batching limits used on device
func DefaultConfig() Config {
	return Config{
		Capacity:    50,
		MaxDeferral: 120 * time.Second,
	}
}

// Batcher buffers location samples. It is not safe for concurrent use; the
// pipeline drives it from a single goroutine.
type Batcher struct {
	cfg      Config
	deferrer Deferrer
	deliver  func([]models.LocationSample)

	buf     []models.LocationSample
	firstAt time.Time
	armed   bool
}

// New creates a batcher that hands every non-empty flush to deliver
func New(cfg Config, deferrer Deferrer, deliver func([]models.LocationSample)) *Batcher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.MaxDeferral <= 0 {
		cfg.MaxDeferral = DefaultConfig().MaxDeferral
	}
	return &Batcher{
		cfg:      cfg,
		deferrer: deferrer,
		deliver:  deliver,
		buf:      make([]models.LocationSample, 0, cfg.Capacity),
	}
}

// Arm starts accepting samples and asks the provider to defer delivery
func (b *Batcher) Arm() error {
	if b.armed {
		return nil
	}
	b.armed = true
	log.Printf("[Batcher] Armed (capacity=%d, max deferral=%v)", b.cfg.Capacity, b.cfg.MaxDeferral)
	return b.requestDeferral()
}

// Disarm flushes what is buffered and stops accepting samples
func (b *Batcher) Disarm() {
	if !b.armed {
		return
	}
	b.Flush()
	b.armed = false
	log.Printf("[Batcher] Disarmed")
}

// Armed reports whether samples are being accepted
func (b *Batcher) Armed() bool {
	return b.armed
}

// Pending is the number of buffered samples
func (b *Batcher) Pending() int {
	return len(b.buf)
}

// Ingest buffers one sample. Samples arriving while disarmed are dropped.
// A full buffer, or one holding a sample older than MaxDeferral, is flushed.
func (b *Batcher) Ingest(sample models.LocationSample, now time.Time) bool {
	if !b.armed {
		return false
	}

	if len(b.buf) == 0 {
		b.firstAt = now
	}
	b.buf = append(b.buf, sample)

	if len(b.buf) >= b.cfg.Capacity {
		b.Flush()
		b.rearm()
	} else if now.Sub(b.firstAt) >= b.cfg.MaxDeferral {
		b.Flush()
		b.rearm()
	}
	return true
}

// Tick flushes a batch whose oldest sample has waited MaxDeferral
func (b *Batcher) Tick(now time.Time) {
	if len(b.buf) == 0 {
		return
	}
	if now.Sub(b.firstAt) >= b.cfg.MaxDeferral {
		b.Flush()
		b.rearm()
	}
}

// DeferralFailed flushes immediately and asks for deferral again
func (b *Batcher) DeferralFailed(err error) {
	log.Printf("[Batcher] Deferral failed, flushing %d samples: %v", len(b.buf), err)
	b.Flush()
	b.rearm()
}

// Flush consumes the buffer and returns it ordered by sample timestamp.
// An empty buffer returns nil and delivers nothing.
func (b *Batcher) Flush() []models.LocationSample {
	if len(b.buf) == 0 {
		return nil
	}

	batch := make([]models.LocationSample, len(b.buf))
	copy(batch, b.buf)
	b.buf = b.buf[:0]
	b.firstAt = time.Time{}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Timestamp.Before(batch[j].Timestamp)
	})

	if b.deliver != nil {
		b.deliver(batch)
	}
	return batch
}

func (b *Batcher) rearm() {
	if !b.armed {
		return
	}
	if err := b.requestDeferral(); err != nil {
		log.Printf("[Batcher] Failed to re-arm deferral: %v", err)
	}
}

func (b *Batcher) requestDeferral() error {
	if b.deferrer == nil {
		return nil
	}
	return b.deferrer.RequestDeferral(b.cfg.DeferralDistance, b.cfg.MaxDeferral)
}
