package images

import (
	"image"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		a        Box
		b        Box
		expected float32
	}{
		{
			name:     "Identical boxes",
			a:        Box{0, 0, 0.5, 0.5},
			b:        Box{0, 0, 0.5, 0.5},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			a:        Box{0, 0, 0.1, 0.1},
			b:        Box{0.2, 0.2, 0.3, 0.3},
			expected: 0.0,
		},
		{
			name:     "Touching edges",
			a:        Box{0, 0, 0.1, 0.1},
			b:        Box{0.1, 0, 0.2, 0.1},
			expected: 0.0,
		},
		{
			name:     "Quarter overlap",
			a:        Box{0, 0, 100, 100},
			b:        Box{50, 50, 150, 150},
			expected: 0.142857, // 2500 / (10000 + 10000 - 2500)
		},
		{
			name:     "One inside other",
			a:        Box{0, 0, 100, 100},
			b:        Box{25, 25, 75, 75},
			expected: 0.25, // 2500 / 10000
		},
		{
			name:     "Inverted box has no area",
			a:        Box{0.5, 0.5, 0.1, 0.1},
			b:        Box{0, 0, 1, 1},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.a, tt.b)
			assert.InDelta(t, tt.expected, result, 1e-3)

			// IoU(A, B) must equal IoU(B, A) exactly.
			assert.Equal(t, result, CalculateIoU(tt.b, tt.a), "IoU should be symmetric")
		})
	}
}

// TestIoU_DegenerateBoxes checks that zero-area boxes never divide by zero.
func TestIoU_DegenerateBoxes(t *testing.T) {
	tests := []struct {
		name string
		a    Box
		b    Box
	}{
		{"Zero area box 1", Box{0, 0, 0, 0}, Box{0, 0, 1, 1}},
		{"Zero area box 2", Box{0, 0, 1, 1}, Box{0.5, 0.5, 0.5, 0.5}},
		{"Both zero area", Box{0, 0, 0, 0}, Box{0, 0, 0, 0}},
		{"Line segments", Box{0, 0, 1, 0}, Box{0, 0, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.a, tt.b)
			assert.False(t, math.IsNaN(float64(result)), "IoU must not be NaN")
			assert.Equal(t, float32(0), result)
		})
	}
}

// TestIoU_vs_ImageRectangle compares pixel-aligned boxes against image.Rectangle overlap.
func TestIoU_vs_ImageRectangle(t *testing.T) {
	testCases := []struct {
		name string
		r1   image.Rectangle
		r2   image.Rectangle
	}{
		{"No overlap", image.Rect(0, 0, 100, 100), image.Rect(200, 200, 300, 300)},
		{"Partial overlap", image.Rect(0, 0, 100, 100), image.Rect(50, 50, 150, 150)},
		{"Full overlap", image.Rect(50, 50, 150, 150), image.Rect(50, 50, 150, 150)},
		{"Large boxes", image.Rect(0, 0, 1920, 1080), image.Rect(960, 540, 1920, 1080)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateIoU(boxFromImageRect(tc.r1), boxFromImageRect(tc.r2))
			assert.InDelta(t, imageRectangleIoU(tc.r1, tc.r2), got, 1e-4)
		})
	}
}

func TestRect_ToImageRect(t *testing.T) {
	r := Rect{X1: 10, Y1: 20, X2: 29, Y2: 59}
	ir := r.ToImageRect()

	assert.Equal(t, image.Rect(10, 20, 30, 60), ir)
	assert.Equal(t, 20, ir.Dx())
	assert.Equal(t, 40, ir.Dy())
}

func TestBox_Center(t *testing.T) {
	x, y := Box{X1: 0.2, Y1: 0.4, X2: 0.6, Y2: 0.8}.Center()
	assert.InDelta(t, 0.4, x, 1e-6)
	assert.InDelta(t, 0.6, y, 1e-6)
}

// TestIoU_Properties checks symmetry and bounds over random normalized boxes.
func TestIoU_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("IoU is symmetric and bounded by [0, 1]", prop.ForAll(
		func(a, b Box) bool {
			ab := CalculateIoU(a, b)
			ba := CalculateIoU(b, a)
			return ab == ba && ab >= 0 && ab <= 1
		},
		genBox(),
		genBox(),
	))

	properties.Property("IoU of a non-degenerate box with itself is 1", prop.ForAll(
		func(a Box) bool {
			iou := CalculateIoU(a, a)
			return iou > 0.999 && iou <= 1
		},
		genBox(),
	))

	properties.TestingRun(t)
}

// genBox generates a non-degenerate normalized box with sides of at least 0.05.
func genBox() gopter.Gen {
	return gopter.CombineGens(
		gen.Float32Range(0, 0.9),
		gen.Float32Range(0, 0.9),
		gen.Float32Range(0.05, 0.5),
		gen.Float32Range(0.05, 0.5),
	).Map(func(vals []interface{}) Box {
		x, _ := vals[0].(float32)
		y, _ := vals[1].(float32)
		w, _ := vals[2].(float32)
		h, _ := vals[3].(float32)
		return Box{X1: x, Y1: y, X2: min(1, x+w), Y2: min(1, y+h)}
	})
}

func boxFromImageRect(r image.Rectangle) Box {
	return Box{X1: float32(r.Min.X), Y1: float32(r.Min.Y), X2: float32(r.Max.X), Y2: float32(r.Max.Y)}
}

// imageRectangleIoU implements IoU using Go's standard library image.Rectangle.
func imageRectangleIoU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0.0
	}

	intersectArea := intersect.Dx() * intersect.Dy()
	union := r1.Dx()*r1.Dy() + r2.Dx()*r2.Dy() - intersectArea

	return float32(intersectArea) / float32(union)
}
