package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/pkg/errors"
)

// ErrInvalidThreshold is returned when an IoU threshold lies outside (0, 1).
var ErrInvalidThreshold = errors.New("invalid IoU threshold")

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap at or above which same-class boxes are suppressed.
}

// Validate checks that the threshold lies strictly between 0 and 1.
func (c *NMSConfig) Validate() error {
	if math32.IsNaN(c.IoUThreshold) || c.IoUThreshold <= 0 || c.IoUThreshold >= 1 {
		return errors.Wrapf(ErrInvalidThreshold, "iou threshold %v must be in (0, 1)", c.IoUThreshold)
	}
	return nil
}

// ApplyNMS filters overlapping detections using greedy, class-aware Non-Maximum Suppression.
//
// Detections are ordered by descending score (ties by ascending Index). The best remaining
// detection is kept and every remaining detection of the same class whose IoU with it is at
// least the threshold is dropped. Detections of different classes never suppress each other.
//
// Arguments:
//   - detections: Candidates sharing one coordinate space, in any order. The slice is not
//     modified.
//   - config: NMS configuration. The zero value suppresses every same-class overlap.
//
// Returns:
//   - []Detection: The surviving detections sorted by descending score. If no detections are
//     provided, returns nil.
//
// @example
// kept := ApplyNMS(candidates, NMSConfig{IoUThreshold: 0.4})
func ApplyNMS(detections []Detection, config NMSConfig) []Detection {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]Detection, n)
	copy(sorted, detections)
	SortByScore(sorted)

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] || sorted[j].Class != anchor.Class {
				continue
			}

			if images.CalculateIoU(anchor.Box, sorted[j].Box) >= config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
