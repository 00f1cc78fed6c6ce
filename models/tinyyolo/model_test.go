package tinyyolo

import (
	"testing"

	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero input size", func(c *Config) { c.InputSize = 0 }},
		{"zero grid", func(c *Config) { c.GridSize = 0 }},
		{"no classes", func(c *Config) { c.NumClasses = 0 }},
		{"no anchors", func(c *Config) { c.Anchors = nil }},
		{"negative anchor", func(c *Config) { c.Anchors[1].W = -1 }},
		{"confidence of zero", func(c *Config) { c.ConfThreshold = 0 }},
		{"confidence of one", func(c *Config) { c.ConfThreshold = 1 }},
		{"nms of one", func(c *Config) { c.NMS.IoUThreshold = 1 }},
		{"nms negative", func(c *Config) { c.NMS.IoUThreshold = -0.2 }},
		{"zero logit clip", func(c *Config) { c.LogitClip = 0 }},
		{"zero exp clip", func(c *Config) { c.ExpClip = 0 }},
		{"label count mismatch", func(c *Config) { c.Labels = []string{"person"} }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)

			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "unexpected error: %v", err)

			_, err = New(c)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, 416, c.InputSize)
	assert.Equal(t, 13, c.GridSize)
	assert.Equal(t, 80, c.NumClasses)
	assert.Equal(t, 5, c.NumAnchors())
	assert.Equal(t, 85, c.Channels())
	assert.Equal(t, 5*85*13*13, c.Len())
	assert.Equal(t, Anchor{W: 6.63, H: 11.38}, c.Anchors[2])

	// DefaultAnchors hands out a fresh slice every time.
	c.Anchors[0].W = 99
	assert.Equal(t, float32(1.08), DefaultAnchors()[0].W)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{Path: "/models/tiny-yolov2.onnx"})
	require.NoError(t, err)

	base := m.Options()
	assert.Equal(t, model.ModelNameTinyYOLO, base.Name)
	assert.Equal(t, model.ModelFamilyYOLO, base.Family)
	assert.Equal(t, "/models/tiny-yolov2.onnx", base.Path)
	assert.Equal(t, 416, m.InputSize())

	_, err = NewModel(model.NewModelArgs{Options: foreignOptions{}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

type foreignOptions struct{}

func (foreignOptions) IsOptions() {}

// TestTinyYOLO_Detect runs decode, NMS and back-projection on a 1000x500 frame letterboxed into
// 416. A detection centered on the canvas lands on the frame center (500, 250).
func TestTinyYOLO_Detect(t *testing.T) {
	c := DefaultConfig()
	c.Labels = make([]string, c.NumClasses)
	c.Labels[2] = "car"

	m, err := New(c)
	require.NoError(t, err)

	lb, err := images.NewLetterbox(500, 1000, c.InputSize)
	require.NoError(t, err)
	require.InDelta(t, 0.416, lb.Scale, 1e-9)
	require.Equal(t, 0, lb.PadX)
	require.Equal(t, 104, lb.PadY)

	out := mustTensor(t, c, cell{
		row: 6, col: 6, anchor: 0,
		objectness: logit(0.9),
		classes:    map[int]float32{2: logit(0.9)},
	})

	detections, err := m.Detect(out, lb)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	d := detections[0]
	assert.Equal(t, 2, d.Class)
	assert.Equal(t, "car", d.Label)
	assert.InDelta(t, 0.81, d.Score, 1e-4)

	// Anchor 0 spans 1.08 x 1.19 cells: about 35 x 38 letterboxed pixels, 83 x 91 source pixels.
	assert.InDelta(t, 500, (d.Box.X1+d.Box.X2)/2, 1)
	assert.InDelta(t, 250, (d.Box.Y1+d.Box.Y2)/2, 1)
	assert.InDelta(t, 458, d.Box.X1, 1)
	assert.InDelta(t, 541, d.Box.X2, 1)
	assert.InDelta(t, 204, d.Box.Y1, 1)
	assert.InDelta(t, 295, d.Box.Y2, 1)
}

// TestTinyYOLO_PostProcessSuppressesNeighbors feeds two adjacent cells whose large anchor boxes
// clamp to the same region; only the stronger one survives.
func TestTinyYOLO_PostProcessSuppressesNeighbors(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)

	out := mustTensor(t, m.Config(),
		cell{row: 6, col: 6, anchor: 4, objectness: logit(0.8), classes: map[int]float32{0: logit(0.9)}},
		cell{row: 6, col: 7, anchor: 4, objectness: logit(0.9), classes: map[int]float32{0: logit(0.9)}},
		cell{row: 6, col: 7, anchor: 3, objectness: logit(0.7), classes: map[int]float32{5: logit(0.9)}},
	)

	detections, err := m.PostProcess(out)
	require.NoError(t, err)
	require.Len(t, detections, 2)

	assert.Equal(t, 6*65+7*5+4, detections[0].Index)
	assert.Equal(t, 0, detections[0].Class)
	assert.Equal(t, 5, detections[1].Class, "other classes are kept regardless of overlap")
}

func TestTinyYOLO_DetectShapeMismatch(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)

	small := DefaultConfig()
	small.GridSize = 7

	lb, err := images.NewLetterbox(10, 10, 416)
	require.NoError(t, err)

	_, err = m.Detect(mustTensor(t, small), lb)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}
