// Package images - Geometry and letterbox utilities shared by the detection pipeline.
package images

import (
	"fmt"
	"image"
)

// iouEpsilon keeps the IoU denominator positive for zero-area boxes.
const iouEpsilon = 1e-6

// Box is an axis-aligned bounding box in normalized-letterboxed space.
//
// Both axes are relative to the square model input, so valid coordinates lie in [0, 1].
// A Box must never be compared against a Rect without going through BackProject.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Rect is an axis-aligned bounding box in source-pixel space.
//
// X1,Y1 and X2,Y2 are corner pixels, both inclusive and clamped to the image bounds.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Width returns the horizontal extent of the box, or 0 if the box is inverted.
func (b Box) Width() float32 {
	return max(0, b.X2-b.X1)
}

// Height returns the vertical extent of the box, or 0 if the box is inverted.
func (b Box) Height() float32 {
	return max(0, b.Y2-b.Y1)
}

// Area returns the area of the box.
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Center returns the center point of the box.
func (b Box) Center() (x, y float32) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

func (b Box) String() string {
	return fmt.Sprintf("(%.4f, %.4f), (%.4f, %.4f)", b.X1, b.Y1, b.X2, b.Y2)
}

// ToImageRect converts the pixel box to an image.Rectangle.
//
// The image.Rectangle maximum point is exclusive, so one pixel is added to X2 and Y2.
//
// Returns:
//   - image.Rectangle: The canonical rectangle covering every pixel of r.
func (r Rect) ToImageRect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2+1, r.Y2+1).Canon()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d, %d), (%d, %d)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU computes the Intersection over Union of two boxes that share one coordinate
// space.
//
// IoU is the ratio of the overlapping area to the combined area of both boxes:
//
//	IoU = Area of Intersection / Area of Union
//
//	- 1.0 means the boxes are identical.
//	- 0.0 means the boxes do not overlap at all (touching edges included).
//
// The intersection corners are the maximum of the top-left corners and the minimum of the
// bottom-right corners. Each axis of the intersection is clamped at zero, so disjoint boxes
// yield exactly 0 and never a negative value. The union follows inclusion-exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// A small epsilon is added to the union so that two zero-area boxes do not divide by zero.
// IoU is scale-invariant, so normalized and pixel boxes both work as long as a and b are in
// the same space.
//
// Arguments:
//   - a: The first box.
//   - b: The other box to compare against.
//
// Returns:
//   - float32: A value in [0, 1]. CalculateIoU(a, b) == CalculateIoU(b, a).
//
// Example Usage:
// ```go
//
//	a := Box{X1: 0, Y1: 0, X2: 0.5, Y2: 0.5}
//	b := Box{X1: 0.25, Y1: 0.25, X2: 0.75, Y2: 0.75}
//
//	iou := CalculateIoU(a, b) // intersection 0.0625, union 0.4375. Output: ~0.142857
//
// ```
func CalculateIoU(a, b Box) float32 {
	interW := max(0, min(a.X2, b.X2)-max(a.X1, b.X1))
	interH := max(0, min(a.Y2, b.Y2)-max(a.Y1, b.Y1))
	inter := interW * interH

	union := a.Area() + b.Area() - inter
	return min(1, inter/(union+iouEpsilon))
}
