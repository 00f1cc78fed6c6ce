// Package tinyyolo - Tiny-YOLO grid decoding and detection post-processing.
//
// The network emits, for each of A anchors, 5+C channels over a G x G grid: tx, ty, tw, th,
// an objectness logit and C class logits. Decode turns that tensor into scored candidates in
// normalized-letterboxed space, and TinyYOLO chains decoding, suppression and back-projection.
package tinyyolo

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("invalid tiny-yolo config")

const (
	// DefaultInputSize is the side of the square network input.
	DefaultInputSize = 416
	// DefaultGridSize is the number of cells along each side of the output grid.
	DefaultGridSize = 13
	// DefaultNumClasses is the number of COCO classes.
	DefaultNumClasses = 80
	// DefaultConfThreshold is the minimum objectness and final score.
	DefaultConfThreshold = 0.3
	// DefaultNMSThreshold is the IoU at which same-class boxes are suppressed.
	DefaultNMSThreshold = 0.4
	// DefaultLogitClip bounds the logistic input.
	DefaultLogitClip = 500
	// DefaultExpClip bounds the exponential input of the box size terms.
	DefaultExpClip = 10
)

// Anchor is a prior box shape in grid-cell units.
type Anchor struct {
	W float32 `json:"w" yaml:"w" mapstructure:"w"`
	H float32 `json:"h" yaml:"h" mapstructure:"h"`
}

// DefaultAnchors returns the five Tiny-YOLO VOC/COCO anchors.
func DefaultAnchors() []Anchor {
	return []Anchor{
		{W: 1.08, H: 1.19},
		{W: 3.42, H: 4.41},
		{W: 6.63, H: 11.38},
		{W: 9.42, H: 5.11},
		{W: 16.62, H: 10.52},
	}
}

// Config is the read-only configuration of a Tiny-YOLO model. It is established once and shared
// by every decode call.
type Config struct {
	// InputSize is the side of the square network input in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`
	// GridSize is the number of cells along each side of the output grid.
	GridSize int `json:"grid_size" yaml:"grid_size"`
	// NumClasses is the number of class logits per anchor.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Anchors are the prior box shapes, one per anchor slot, in grid-cell units.
	Anchors []Anchor `json:"anchors" yaml:"anchors"`
	// ConfThreshold filters on objectness first, then on objectness times class probability.
	ConfThreshold float32 `json:"conf_threshold" yaml:"conf_threshold"`
	// NMS configures the suppression of overlapping same-class boxes.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// LogitClip bounds the input of every sigmoid.
	LogitClip float32 `json:"logit_clip" yaml:"logit_clip"`
	// ExpClip bounds the input of the box size exponentials.
	ExpClip float32 `json:"exp_clip" yaml:"exp_clip"`
	// Labels are optional class names indexed by class.
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// IsOptions marks Config as model-specific options.
func (c Config) IsOptions() {}

// DefaultConfig returns the stock 416x416, 13x13, 5-anchor, 80-class configuration.
func DefaultConfig() Config {
	return Config{
		InputSize:     DefaultInputSize,
		GridSize:      DefaultGridSize,
		NumClasses:    DefaultNumClasses,
		Anchors:       DefaultAnchors(),
		ConfThreshold: DefaultConfThreshold,
		NMS:           postprocess.NMSConfig{IoUThreshold: DefaultNMSThreshold},
		LogitClip:     DefaultLogitClip,
		ExpClip:       DefaultExpClip,
	}
}

// NumAnchors returns the number of anchor slots per grid cell.
func (c Config) NumAnchors() int {
	return len(c.Anchors)
}

// Channels returns the number of channels per anchor: four box terms, objectness and classes.
func (c Config) Channels() int {
	return 5 + c.NumClasses
}

// Validate checks every field of the configuration.
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the offending field, or nil.
func (c Config) Validate() error {
	switch {
	case c.InputSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "input size %d must be positive", c.InputSize)
	case c.GridSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "grid size %d must be positive", c.GridSize)
	case c.NumClasses <= 0:
		return errors.Wrapf(ErrInvalidConfig, "class count %d must be positive", c.NumClasses)
	case len(c.Anchors) == 0:
		return errors.Wrap(ErrInvalidConfig, "at least one anchor is required")
	case !inUnitInterval(c.ConfThreshold):
		return errors.Wrapf(ErrInvalidConfig, "confidence threshold %v must be in (0, 1)", c.ConfThreshold)
	case !positive(c.LogitClip):
		return errors.Wrapf(ErrInvalidConfig, "logit clip %v must be positive", c.LogitClip)
	case !positive(c.ExpClip):
		return errors.Wrapf(ErrInvalidConfig, "exp clip %v must be positive", c.ExpClip)
	case len(c.Labels) != 0 && len(c.Labels) != c.NumClasses:
		return errors.Wrapf(ErrInvalidConfig, "%d labels for %d classes", len(c.Labels), c.NumClasses)
	}

	for i, a := range c.Anchors {
		if !positive(a.W) || !positive(a.H) || math32.IsInf(a.W, 0) || math32.IsInf(a.H, 0) {
			return errors.Wrapf(ErrInvalidConfig, "anchor %d (%v, %v) must have positive finite sides", i, a.W, a.H)
		}
	}

	if err := c.NMS.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "nms: %v", err)
	}

	return nil
}

func inUnitInterval(v float32) bool {
	return v > 0 && v < 1
}

// positive is false for NaN.
func positive(v float32) bool {
	return v > 0
}
