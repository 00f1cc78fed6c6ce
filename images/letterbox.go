package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ErrInvalidDimensions is returned when an image or target size is not strictly positive.
var ErrInvalidDimensions = errors.New("invalid dimensions")

// DefaultFill is the canvas color used for letterbox padding.
var DefaultFill = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// Letterbox is the scale/pad mapping between a source image and the square model input.
//
// The same Letterbox value must be used to build the input tensor and to back-project the
// detections produced from it. Recomputing it from different dimensions silently yields wrong
// boxes, so callers thread it through the call chain instead.
type Letterbox struct {
	// Scale is TargetSize / max(SourceHeight, SourceWidth).
	Scale float64 `json:"scale" yaml:"scale"`
	// PadX is the left padding in letterboxed pixels.
	PadX int `json:"pad_x" yaml:"pad_x"`
	// PadY is the top padding in letterboxed pixels.
	PadY int `json:"pad_y" yaml:"pad_y"`
	// TargetSize is the side of the square model input.
	TargetSize int `json:"target_size" yaml:"target_size"`
	// ResizedWidth is the width of the unpadded, resized image.
	ResizedWidth int `json:"resized_width" yaml:"resized_width"`
	// ResizedHeight is the height of the unpadded, resized image.
	ResizedHeight int `json:"resized_height" yaml:"resized_height"`
	// SourceWidth is the width of the original image.
	SourceWidth int `json:"source_width" yaml:"source_width"`
	// SourceHeight is the height of the original image.
	SourceHeight int `json:"source_height" yaml:"source_height"`
}

// NewLetterbox computes the letterbox mapping for an image of the given size.
//
// The resized dimensions are floor(dim * scale), computed with integer arithmetic so that the
// longer side always maps to exactly target. Padding is split before/after with floor division.
//
// Arguments:
//   - height: The source image height in pixels.
//   - width: The source image width in pixels.
//   - target: The side of the square model input.
//
// Returns:
//   - Letterbox: The mapping for this image.
//   - error: ErrInvalidDimensions if any argument is not positive.
//
// @example
// lb, _ := NewLetterbox(500, 1000, 416)
// // lb.Scale == 0.416, lb.ResizedWidth == 416, lb.ResizedHeight == 208, lb.PadX == 0, lb.PadY == 104
func NewLetterbox(height, width, target int) (Letterbox, error) {
	if height <= 0 || width <= 0 || target <= 0 {
		return Letterbox{}, errors.Wrapf(ErrInvalidDimensions,
			"letterbox requires positive sizes, got %dx%d -> %d", width, height, target)
	}

	longest := max(height, width)
	resizedW := width * target / longest
	resizedH := height * target / longest

	return Letterbox{
		Scale:         float64(target) / float64(longest),
		PadX:          (target - resizedW) / 2,
		PadY:          (target - resizedH) / 2,
		TargetSize:    target,
		ResizedWidth:  resizedW,
		ResizedHeight: resizedH,
		SourceWidth:   width,
		SourceHeight:  height,
	}, nil
}

// Forward maps a source-pixel point to normalized-letterboxed coordinates.
func (l Letterbox) Forward(x, y float64) (float64, float64) {
	s := float64(l.TargetSize)
	return (x*l.Scale + float64(l.PadX)) / s, (y*l.Scale + float64(l.PadY)) / s
}

// ForwardBox maps a source-pixel box to normalized-letterboxed space.
func (l Letterbox) ForwardBox(r Rect) Box {
	x1, y1 := l.Forward(float64(r.X1), float64(r.Y1))
	x2, y2 := l.Forward(float64(r.X2), float64(r.Y2))
	return Box{X1: float32(x1), Y1: float32(y1), X2: float32(x2), Y2: float32(y2)}
}

// BackProject maps a normalized-letterboxed box to integer source-pixel coordinates.
//
// Each coordinate is scaled to letterboxed pixels, shifted by the padding, divided by the
// scale, truncated toward zero and clamped to [0, width-1] or [0, height-1]. It is the inverse
// of Forward for the same Letterbox.
//
// Arguments:
//   - b: The box in normalized-letterboxed space.
//   - l: The letterbox mapping used to build the input that produced b.
//   - height: The original image height.
//   - width: The original image width.
//
// Returns:
//   - Rect: The box in source-pixel space.
func BackProject(b Box, l Letterbox, height, width int) Rect {
	return Rect{
		X1: l.unletterbox(b.X1, l.PadX, width),
		Y1: l.unletterbox(b.Y1, l.PadY, height),
		X2: l.unletterbox(b.X2, l.PadX, width),
		Y2: l.unletterbox(b.Y2, l.PadY, height),
	}
}

// BackProject maps b to source pixels using the source dimensions recorded in l.
func (l Letterbox) BackProject(b Box) Rect {
	return BackProject(b, l, l.SourceHeight, l.SourceWidth)
}

func (l Letterbox) unletterbox(v float32, pad, limit int) int {
	p := int((float64(v)*float64(l.TargetSize) - float64(pad)) / l.Scale)
	return min(max(p, 0), limit-1)
}

// Apply renders img onto the square letterbox canvas.
//
// The image is resized to ResizedWidth x ResizedHeight and drawn at (PadX, PadY). The rest of
// the canvas is filled with fill, or DefaultFill when fill is nil.
//
// Arguments:
//   - img: The source image. Its bounds should match SourceWidth x SourceHeight.
//   - fill: The padding color.
//
// Returns:
//   - *image.RGBA: A TargetSize x TargetSize canvas.
func (l Letterbox) Apply(img image.Image, fill color.Color) *image.RGBA {
	if fill == nil {
		fill = DefaultFill
	}

	canvas := image.NewRGBA(image.Rect(0, 0, l.TargetSize, l.TargetSize))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	// A very thin source can floor to zero rows or columns; nfnt/resize treats 0 as "keep aspect".
	if l.ResizedWidth == 0 || l.ResizedHeight == 0 {
		return canvas
	}

	resized := resize.Resize(uint(l.ResizedWidth), uint(l.ResizedHeight), img, resize.Bilinear)
	dst := image.Rect(l.PadX, l.PadY, l.PadX+l.ResizedWidth, l.PadY+l.ResizedHeight)
	draw.Draw(canvas, dst, resized, resized.Bounds().Min, draw.Src)

	return canvas
}
