package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/features"
	"github.com/jengzang/trip-recorder-go/internal/models"
	"gopkg.in/yaml.v3"
)

// DescriptorFile is the name of the model descriptor inside a model directory
const DescriptorFile = "config.json"

// MaxMetadataVersion is the newest descriptor layout this build understands
const MaxMetadataVersion = 1

var ErrModelLoadFailed = errors.New("model load failed")

var sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Descriptor is the config.json shipped next to a model file
type Descriptor struct {
	MetadataVersion int      `json:"model_metadata_version"`
	Identifier      string   `json:"cv_sha256"`
	Sampling        Sampling `json:"sampling"`
	ClassLabels     []int    `json:"class_labels"`
}

// Sampling is the sensor schedule the model was trained on
type Sampling struct {
	SampleCount    int     `json:"sample_count"`
	SamplingRateHz float64 `json:"sampling_rate_hz"`
}

// Forest is the on-disk random forest, stored as YAML in <identifier>.cv
type Forest struct {
	VarCount    int    `yaml:"var_count"`
	ClassLabels []int  `yaml:"class_labels"`
	Trees       []Tree `yaml:"trees"`
}

// Tree is a flat list of nodes; index 0 is the root. A node without
// children is a leaf voting for Label.
type Tree struct {
	Nodes []Node `yaml:"nodes"`
}

// Node splits on Feature <= Threshold (left) or > Threshold (right)
type Node struct {
	Feature   int     `yaml:"feature"`
	Threshold float64 `yaml:"threshold"`
	Left      int     `yaml:"left,omitempty"`
	Right     int     `yaml:"right,omitempty"`
	Label     int     `yaml:"label,omitempty"`
}

func (n Node) isLeaf() bool {
	return n.Left == 0 && n.Right == 0
}

// Model is a loaded, validated model. It is never mutated after load.
type Model struct {
	Identifier     string
	ClassLabels    []models.ActivityType
	SampleCount    int
	SamplingRateHz float64
	forest         Forest
}

// DesiredSampleInterval is the accelerometer period the model was trained on
func (m *Model) DesiredSampleInterval() time.Duration {
	return time.Duration(float64(time.Second) / m.SamplingRateHz)
}

// DesiredSessionDuration is the span of one full window
func (m *Model) DesiredSessionDuration() time.Duration {
	return time.Duration(float64(m.SampleCount-1) / m.SamplingRateHz * float64(time.Second))
}

// ModelPath is where the forest for identifier lives inside dir
func ModelPath(dir, identifier string) string {
	return filepath.Join(dir, identifier+".cv")
}

// LoadModel reads and validates a model directory. Any problem is wrapped in
// ErrModelLoadFailed.
func LoadModel(dir string) (*Model, error) {
	raw, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read descriptor: %v", ErrModelLoadFailed, err)
	}

	var desc Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse descriptor: %v", ErrModelLoadFailed, err)
	}
	if err := desc.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}

	body, err := os.ReadFile(ModelPath(dir, desc.Identifier))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model file: %v", ErrModelLoadFailed, err)
	}
	if sha256Pattern.MatchString(desc.Identifier) {
		sum := sha256.Sum256(body)
		if hex.EncodeToString(sum[:]) != desc.Identifier {
			return nil, fmt.Errorf("%w: model file digest does not match %s", ErrModelLoadFailed, desc.Identifier)
		}
	}

	var forest Forest
	if err := yaml.Unmarshal(body, &forest); err != nil {
		return nil, fmt.Errorf("%w: failed to parse model file: %v", ErrModelLoadFailed, err)
	}
	if err := forest.validate(desc.ClassLabels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}

	labels := make([]models.ActivityType, len(desc.ClassLabels))
	for i, l := range desc.ClassLabels {
		labels[i] = models.ActivityType(l)
	}

	return &Model{
		Identifier:     desc.Identifier,
		ClassLabels:    labels,
		SampleCount:    desc.Sampling.SampleCount,
		SamplingRateHz: desc.Sampling.SamplingRateHz,
		forest:         forest,
	}, nil
}

func (d Descriptor) validate() error {
	if d.MetadataVersion > MaxMetadataVersion {
		return fmt.Errorf("unsupported model metadata version %d", d.MetadataVersion)
	}
	if d.Identifier == "" {
		return errors.New("descriptor has no model identifier")
	}
	if filepath.Base(d.Identifier) != d.Identifier {
		return fmt.Errorf("invalid model identifier %q", d.Identifier)
	}
	if d.Sampling.SampleCount < features.MinSamples || bits.OnesCount(uint(d.Sampling.SampleCount)) != 1 {
		return fmt.Errorf("sample count %d is not a power of two >= %d", d.Sampling.SampleCount, features.MinSamples)
	}
	if d.Sampling.SamplingRateHz <= 0 {
		return fmt.Errorf("invalid sampling rate %f", d.Sampling.SamplingRateHz)
	}
	if len(d.ClassLabels) == 0 {
		return errors.New("descriptor has no class labels")
	}
	for _, l := range d.ClassLabels {
		if !models.ActivityType(l).IsKnown() {
			return fmt.Errorf("descriptor lists unknown activity label %d", l)
		}
	}
	return nil
}

func (f Forest) validate(labels []int) error {
	if f.VarCount != features.VectorSize {
		return fmt.Errorf("model expects %d features, extractor produces %d", f.VarCount, features.VectorSize)
	}
	if len(f.ClassLabels) != len(labels) {
		return fmt.Errorf("model has %d classes, descriptor lists %d", len(f.ClassLabels), len(labels))
	}
	known := make(map[int]bool, len(labels))
	for i, l := range labels {
		if f.ClassLabels[i] != l {
			return fmt.Errorf("class label %d is %d in the model but %d in the descriptor", i, f.ClassLabels[i], l)
		}
		known[l] = true
	}
	if len(f.Trees) == 0 {
		return errors.New("model has no trees")
	}

	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, n := range tree.Nodes {
			if n.isLeaf() {
				if !known[n.Label] {
					return fmt.Errorf("tree %d node %d votes for unknown class %d", t, i, n.Label)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= f.VarCount {
				return fmt.Errorf("tree %d node %d splits on feature %d", t, i, n.Feature)
			}
			// Children after the parent keeps every walk finite
			if n.Left <= i || n.Right <= i || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children %d/%d", t, i, n.Left, n.Right)
			}
		}
	}
	return nil
}

// WriteArtifact stores forest and a matching descriptor in dir, using the
// sha256 of the encoded forest as identifier.
func WriteArtifact(dir string, forest Forest, sampling Sampling) (string, error) {
	body, err := yaml.Marshal(forest)
	if err != nil {
		return "", fmt.Errorf("failed to encode forest: %w", err)
	}
	sum := sha256.Sum256(body)
	id := hex.EncodeToString(sum[:])

	desc := Descriptor{
		MetadataVersion: MaxMetadataVersion,
		Identifier:      id,
		Sampling:        sampling,
		ClassLabels:     forest.ClassLabels,
	}
	raw, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode descriptor: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := os.WriteFile(ModelPath(dir, id), body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write model file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DescriptorFile), raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write descriptor: %w", err)
	}
	return id, nil
}
