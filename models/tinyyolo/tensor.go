package tinyyolo

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrShapeMismatch is returned when a prediction tensor does not match the configured layout.
var ErrShapeMismatch = errors.New("prediction tensor shape mismatch")

// Shape returns the canonical prediction layout (anchors, 5+classes, grid, grid).
func (c Config) Shape() tensor.Shape {
	return tensor.Shape{c.NumAnchors(), c.Channels(), c.GridSize, c.GridSize}
}

// Len returns the number of values in a prediction tensor.
func (c Config) Len() int {
	return c.NumAnchors() * c.Channels() * c.GridSize * c.GridSize
}

// NewPredictionTensor wraps raw network output in a tensor of the canonical layout.
//
// Arguments:
//   - data: Row-major values in (anchor, channel, row, col) order. The slice is not copied.
//   - c: The model configuration.
//
// Returns:
//   - *tensor.Dense: A float32 tensor of shape c.Shape().
//   - error: ErrShapeMismatch if len(data) does not match c.Len().
func NewPredictionTensor(data []float32, c Config) (*tensor.Dense, error) {
	if len(data) != c.Len() {
		return nil, errors.Wrapf(ErrShapeMismatch, "got %d values, want %d for shape %v", len(data), c.Len(), c.Shape())
	}
	return tensor.New(tensor.WithShape(c.Shape()...), tensor.WithBacking(data)), nil
}

// predictionData validates t against c and returns its backing values in canonical order.
//
// Besides the canonical 4D shape, the network's native (1, A*(5+C), G, G) output and the
// batchless (A*(5+C), G, G) form are accepted: all three share one memory order.
func predictionData(t *tensor.Dense, c Config) ([]float32, error) {
	if t == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "nil prediction tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return nil, errors.Wrapf(ErrShapeMismatch, "dtype %v, want float32", t.Dtype())
	}

	a, ch, g := c.NumAnchors(), c.Channels(), c.GridSize
	shape := t.Shape()
	accepted := []tensor.Shape{
		{a, ch, g, g},
		{1, a * ch, g, g},
		{a * ch, g, g},
	}

	ok := false
	for _, s := range accepted {
		if shape.Eq(s) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, errors.Wrapf(ErrShapeMismatch, "got %v, want %v", shape, c.Shape())
	}

	if t.IsMaterializable() {
		m, isDense := t.Materialize().(*tensor.Dense)
		if !isDense {
			return nil, errors.Wrap(ErrShapeMismatch, "cannot materialize prediction view")
		}
		t = m
	}

	data, isFloat := t.Data().([]float32)
	if !isFloat || len(data) != c.Len() {
		return nil, errors.Wrapf(ErrShapeMismatch, "backing holds %d values, want %d", len(data), c.Len())
	}

	return data, nil
}
