package tinyyolo

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// background is an objectness or class logit whose sigmoid is effectively zero.
const background = -20

// logit returns the inverse sigmoid of p.
func logit(p float64) float32 {
	return float32(math.Log(p / (1 - p)))
}

// cell describes the raw values written for one (row, col, anchor) slot.
type cell struct {
	row, col, anchor int
	tx, ty, tw, th   float32
	objectness       float32
	classes          map[int]float32
}

// buildPredictions returns canonical-layout values with every objectness and class logit set to
// background, then writes the given cells.
func buildPredictions(c Config, cells ...cell) []float32 {
	g := c.GridSize
	plane := g * g
	data := make([]float32, c.Len())

	for a := 0; a < c.NumAnchors(); a++ {
		for ch := 4; ch < c.Channels(); ch++ {
			for p := 0; p < plane; p++ {
				data[a*c.Channels()*plane+ch*plane+p] = background
			}
		}
	}

	for _, cl := range cells {
		at := func(ch int) *float32 {
			return &data[cl.anchor*c.Channels()*plane+ch*plane+cl.row*g+cl.col]
		}
		*at(0), *at(1), *at(2), *at(3) = cl.tx, cl.ty, cl.tw, cl.th
		*at(4) = cl.objectness
		for k, v := range cl.classes {
			*at(5 + k) = v
		}
	}

	return data
}

func mustTensor(t *testing.T, c Config, cells ...cell) *tensor.Dense {
	t.Helper()
	out, err := NewPredictionTensor(buildPredictions(c, cells...), c)
	require.NoError(t, err)
	return out
}

// TestDecode_SingleConfidentCell decodes one cell with objectness 0.9 and class probability
// 0.95 into exactly one detection scored 0.855.
//
// @example go test -v -run TestDecode_SingleConfidentCell ./models/tinyyolo
func TestDecode_SingleConfidentCell(t *testing.T) {
	c := DefaultConfig()
	out := mustTensor(t, c, cell{
		row: 4, col: 7, anchor: 2,
		objectness: logit(0.9),
		classes:    map[int]float32{17: logit(0.95)},
	})

	detections, err := Decode(out, c)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	d := detections[0]
	assert.InDelta(t, 0.855, d.Score, 1e-4)
	assert.Equal(t, 17, d.Class)
	assert.Equal(t, 4*13*5+7*5+2, d.Index)

	// tx = ty = tw = th = 0: center in the middle of the cell, size equal to the anchor.
	assert.InDelta(t, (7.5-6.63/2)/13, d.Box.X1, 1e-5)
	assert.InDelta(t, (7.5+6.63/2)/13, d.Box.X2, 1e-5)
	assert.Equal(t, float32(0), d.Box.Y1, "top corner clamps to the canvas")
	assert.InDelta(t, (4.5+11.38/2)/13, d.Box.Y2, 1e-5)
}

func TestDecode_ConfidenceFilter(t *testing.T) {
	tests := []struct {
		name     string
		cell     cell
		expected int
	}{
		{
			name:     "low objectness is dropped before class scoring",
			cell:     cell{objectness: logit(0.2), classes: map[int]float32{0: logit(0.99)}},
			expected: 0,
		},
		{
			name:     "high objectness but low combined score is dropped",
			cell:     cell{objectness: logit(0.9), classes: map[int]float32{0: logit(0.3)}},
			expected: 0,
		},
		{
			name:     "both stages pass",
			cell:     cell{objectness: logit(0.8), classes: map[int]float32{0: logit(0.5)}},
			expected: 1,
		},
		{
			name:     "NaN objectness is dropped",
			cell:     cell{objectness: float32(math.NaN()), classes: map[int]float32{0: logit(0.99)}},
			expected: 0,
		},
	}

	c := DefaultConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections, err := Decode(mustTensor(t, c, tt.cell), c)
			require.NoError(t, err)
			assert.Len(t, detections, tt.expected)
		})
	}
}

func TestDecode_EmptyResult(t *testing.T) {
	c := DefaultConfig()
	detections, err := Decode(mustTensor(t, c), c)
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestDecode_FirstClassWinsTies(t *testing.T) {
	c := DefaultConfig()
	out := mustTensor(t, c, cell{
		objectness: logit(0.9),
		classes:    map[int]float32{12: 40, 3: 40, 50: 40},
	})

	detections, err := Decode(out, c)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, 3, detections[0].Class)
}

func TestDecode_EnumerationOrder(t *testing.T) {
	c := DefaultConfig()
	out := mustTensor(t, c,
		cell{row: 12, col: 0, anchor: 0, objectness: 5, classes: map[int]float32{0: 5}},
		cell{row: 0, col: 1, anchor: 4, objectness: 5, classes: map[int]float32{0: 5}},
		cell{row: 0, col: 1, anchor: 0, objectness: 5, classes: map[int]float32{0: 5}},
	)

	detections, err := Decode(out, c)
	require.NoError(t, err)
	require.Len(t, detections, 3)
	assert.Equal(t, []int{5, 9, 12 * 65}, []int{detections[0].Index, detections[1].Index, detections[2].Index})
}

func TestDecode_ExtremeLogitsStayFinite(t *testing.T) {
	c := DefaultConfig()
	out := mustTensor(t, c, cell{
		row: 6, col: 6,
		tx: 1e30, ty: -1e30, tw: 1e30, th: -1e30,
		objectness: 1e30,
		classes:    map[int]float32{1: 1e30},
	})

	detections, err := Decode(out, c)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	b := detections[0].Box
	for _, v := range []float32{b.X1, b.Y1, b.X2, b.Y2, detections[0].Score} {
		assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestDecode_ShapeMismatch(t *testing.T) {
	c := DefaultConfig()

	tests := []struct {
		name   string
		tensor *tensor.Dense
	}{
		{"nil tensor", nil},
		{"wrong grid", tensor.New(tensor.WithShape(5, 85, 12, 12), tensor.WithBacking(make([]float32, 5*85*12*12)))},
		{"wrong class count", tensor.New(tensor.WithShape(5, 25, 13, 13), tensor.WithBacking(make([]float32, 5*25*13*13)))},
		{"batch of two", tensor.New(tensor.WithShape(2, 425, 13, 13), tensor.WithBacking(make([]float32, 2*425*13*13)))},
		{"float64 values", tensor.New(tensor.WithShape(5, 85, 13, 13), tensor.WithBacking(make([]float64, 5*85*13*13)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections, err := Decode(tt.tensor, c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShapeMismatch), "unexpected error: %v", err)
			assert.Nil(t, detections)
		})
	}

	_, err := NewPredictionTensor(make([]float32, 10), c)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestDecode_AcceptsNetworkLayouts(t *testing.T) {
	c := DefaultConfig()
	data := buildPredictions(c, cell{row: 2, col: 3, anchor: 1, objectness: 5, classes: map[int]float32{9: 5}})

	for _, shape := range []tensor.Shape{{5, 85, 13, 13}, {1, 425, 13, 13}, {425, 13, 13}} {
		t.Run(fmt.Sprintf("%v", shape), func(t *testing.T) {
			out := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))

			detections, err := Decode(out, c)
			require.NoError(t, err)
			require.Len(t, detections, 1)
			assert.Equal(t, 9, detections[0].Class)
			assert.Equal(t, 2*65+3*5+1, detections[0].Index)
		})
	}
}

// TestCellCenter_SaturatedOffset pins offsets whose sigmoid rounds the center onto the next
// cell edge.
func TestCellCenter_SaturatedOffset(t *testing.T) {
	tests := []struct {
		name      string
		tx        float32
		row, col  int
		g         int
		logitClip float32
	}{
		{name: "sigmoid just below 1", tx: 16, col: 12, g: 13, logitClip: 500},
		{name: "sigmoid equal to 1", tx: 40, row: 60, col: 60, g: 64, logitClip: 500},
		{name: "default clip", tx: 100, row: 63, col: 63, g: 64, logitClip: DefaultLogitClip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bx, by := cellCenter(tt.tx, tt.tx, tt.row, tt.col, tt.g, tt.logitClip)
			gf := float32(tt.g)
			assert.Less(t, bx, float32(tt.col+1)/gf)
			assert.GreaterOrEqual(t, bx, float32(tt.col)/gf)
			assert.Less(t, by, float32(tt.row+1)/gf)
			assert.GreaterOrEqual(t, by, float32(tt.row)/gf)
		})
	}
}

// TestDecode_CenterInsideCell checks that the decoded center never leaves the producing cell.
func TestDecode_CenterInsideCell(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("col/G <= bx < (col+1)/G and row/G <= by < (row+1)/G", prop.ForAll(
		func(tx, ty float32, row, col, g int) bool {
			row, col = row%g, col%g
			bx, by := cellCenter(tx, ty, row, col, g, DefaultLogitClip)
			gf := float32(g)
			return float32(col)/gf <= bx && bx < float32(col+1)/gf &&
				float32(row)/gf <= by && by < float32(row+1)/gf
		},
		gen.Float32Range(-100, 100),
		gen.Float32Range(-100, 100),
		gen.IntRange(0, 63),
		gen.IntRange(0, 63),
		gen.IntRange(1, 64),
	))

	properties.Property("decoded detections lie in the unit square", prop.ForAll(
		func(values []float32) bool {
			c := Config{
				InputSize: 64, GridSize: 2, NumClasses: 2,
				Anchors:       []Anchor{{W: 0.5, H: 0.5}, {W: 3, H: 1}},
				ConfThreshold: 0.3,
				LogitClip:     DefaultLogitClip,
				ExpClip:       DefaultExpClip,
			}
			out, err := NewPredictionTensor(values, c)
			if err != nil {
				return false
			}
			detections, err := Decode(out, c)
			if err != nil {
				return false
			}
			for _, d := range detections {
				b := d.Box
				if b.X1 < 0 || b.Y1 < 0 || b.X2 > 1 || b.Y2 > 1 || b.X1 > b.X2 || b.Y1 > b.Y2 {
					return false
				}
				if d.Score < c.ConfThreshold || d.Score > 1 || d.Class < 0 || d.Class >= c.NumClasses {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(2*7*2*2, gen.Float32Range(-12, 12)),
	))

	properties.TestingRun(t)
}
