package pipeline

import (
	"time"

	"github.com/jengzang/trip-recorder-go/internal/batcher"
	"github.com/jengzang/trip-recorder-go/internal/tripmachine"
)

// WindowConfig holds the windowing knobs that do not come from the model
type WindowConfig struct {
	MinFillRatio float64       `yaml:"min_fill_ratio"`
	MaxGap       time.Duration `yaml:"max_gap"`
}

// Config is the full set of pipeline tuning knobs
type Config struct {
	Batcher  batcher.Config     `yaml:"batcher"`
	Windower WindowConfig       `yaml:"windower"`
	Trip     tripmachine.Config `yaml:"trip"`

	// BackgroundBudget bounds how long the keepalive token may be held.
	// Zero leaves it to the host.
	BackgroundBudget time.Duration `yaml:"background_budget"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	QueueSize        int           `yaml:"queue_size"`
}

// DefaultConfig returns the on-device defaults
func DefaultConfig() Config {
	return Config{
		Batcher:      batcher.DefaultConfig(),
		Windower:     WindowConfig{MinFillRatio: 0.5, MaxGap: time.Second},
		Trip:         tripmachine.DefaultConfig(),
		TickInterval: 5 * time.Second,
		QueueSize:    256,
	}
}
