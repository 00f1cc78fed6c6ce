// Package postprocess - Detection types, Non-Maximum Suppression and back-projection of results.
package postprocess

import (
	"cmp"
	"slices"

	"github.com/nvr-ai/go-tinyyolo/images"
)

// Detection is a single candidate produced by a grid decoder.
//
// Box is in normalized-letterboxed space. Index is the flat enumeration index of the grid cell
// and anchor that produced the candidate; it breaks score ties deterministically.
type Detection struct {
	// The bounding box in normalized-letterboxed space.
	Box images.Box `json:"box"`
	// The combined objectness and class confidence.
	Score float32 `json:"score"`
	// The predicted class index.
	Class int `json:"class"`
	// The decoder enumeration index.
	Index int `json:"index"`
}

// PixelDetection is a detection back-projected into source-pixel space.
type PixelDetection struct {
	// The bounding box in source-pixel space.
	Box images.Rect `json:"box"`
	// The combined objectness and class confidence.
	Score float32 `json:"score"`
	// The predicted class index.
	Class int `json:"class"`
	// The human-readable class name, if known.
	Label string `json:"label,omitempty"`
}

// Project back-projects detections to the source image and attaches labels.
//
// Arguments:
//   - detections: Detections in normalized-letterboxed space.
//   - lb: The letterbox mapping used to build the model input.
//   - height: The source image height.
//   - width: The source image width.
//   - labels: Class names indexed by class. May be nil.
//
// Returns:
//   - []PixelDetection: One entry per detection, in the same order.
func Project(detections []Detection, lb images.Letterbox, height, width int, labels []string) []PixelDetection {
	out := make([]PixelDetection, 0, len(detections))
	for _, d := range detections {
		pd := PixelDetection{
			Box:   images.BackProject(d.Box, lb, height, width),
			Score: d.Score,
			Class: d.Class,
		}
		if d.Class >= 0 && d.Class < len(labels) {
			pd.Label = labels[d.Class]
		}
		out = append(out, pd)
	}
	return out
}

// SortByScore orders detections by descending score, then by ascending Index.
// The sort is stable, so remaining ties keep their input order.
func SortByScore(detections []Detection) {
	slices.SortStableFunc(detections, func(a, b Detection) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
}
