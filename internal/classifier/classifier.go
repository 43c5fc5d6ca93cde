// Package classifier runs the pre-trained random forest over feature windows.
package classifier

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jengzang/trip-recorder-go/internal/features"
	"github.com/jengzang/trip-recorder-go/internal/models"
)

var ErrModelNotLoaded = errors.New("model not loaded")

// Classifier owns the loaded model handle. Classify calls are serialized.
type Classifier struct {
	mu    sync.Mutex
	model *Model
}

// New creates a classifier with no model loaded
func New() *Classifier {
	return &Classifier{}
}

// Load replaces the current model with the one in dir. On failure the
// classifier is left without a model.
func (c *Classifier) Load(dir string) error {
	m, err := LoadModel(dir)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.model = nil
		return err
	}
	c.model = m
	log.Printf("[Classifier] Loaded model %s (%d classes, %d samples @ %.1f Hz)",
		m.Identifier, len(m.ClassLabels), m.SampleCount, m.SamplingRateHz)
	return nil
}

// Release drops the model handle
func (c *Classifier) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = nil
}

// CanPredict reports whether a model is loaded
func (c *Classifier) CanPredict() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model != nil
}

// Model returns the loaded model
func (c *Classifier) Model() (*Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model, c.model != nil
}

// Classify returns the vote fraction for every class label of the model.
// Scores are the raw forest output: no renormalization, no threshold.
func (c *Classifier) Classify(window models.FeatureWindow) (models.ClassConfidence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model == nil {
		return nil, ErrModelNotLoaded
	}

	vec := window.Features
	if vec == nil {
		var err error
		vec, err = features.Extract(window.Samples)
		if err != nil {
			return nil, fmt.Errorf("failed to extract features: %w", err)
		}
	}
	if len(vec) != features.VectorSize {
		return nil, fmt.Errorf("feature vector has %d values, model expects %d", len(vec), features.VectorSize)
	}

	return c.model.predict(vec), nil
}

// Predict classifies window and dates the result by the window bounds
func (c *Classifier) Predict(window models.FeatureWindow) (models.Prediction, error) {
	conf, err := c.Classify(window)
	if err != nil {
		return models.Prediction{}, err
	}

	id := ""
	if m, ok := c.Model(); ok {
		id = m.Identifier
	}
	return models.Prediction{
		StartTime:       window.Start,
		EndTime:         window.End,
		ModelIdentifier: id,
		Confidences:     conf,
	}, nil
}

func (m *Model) predict(vec []float64) models.ClassConfidence {
	votes := make(map[int]int, len(m.ClassLabels))
	for _, tree := range m.forest.Trees {
		votes[tree.walk(vec)]++
	}

	out := make(models.ClassConfidence, len(m.ClassLabels))
	total := float64(len(m.forest.Trees))
	for _, label := range m.ClassLabels {
		out[label] = float64(votes[int(label)]) / total
	}
	return out
}

func (t Tree) walk(vec []float64) int {
	i := 0
	for {
		n := t.Nodes[i]
		if n.isLeaf() {
			return n.Label
		}
		if vec[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
