package tinyyolo

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"gorgonia.org/tensor"
)

// Decode converts a raw prediction tensor into scored candidate detections.
//
// Cells are enumerated in (row, col, anchor) order as one flat index i in [0, G*G*A):
//
//	row = i / (G*A), col = (i / A) % G, anchor = i % A
//
// A candidate is kept when its objectness and its objectness times best class probability both
// reach c.ConfThreshold. Its box is centered at ((col+sigmoid(tx))/G, (row+sigmoid(ty))/G) with
// size anchor*exp(t)/G, and its corners are clamped into [0, 1]. No candidates are merged; that
// is left to NMS.
//
// Arguments:
//   - t: The raw network output, float32, in one of the layouts accepted by the model.
//   - c: A validated model configuration.
//
// Returns:
//   - []postprocess.Detection: Candidates in enumeration order. Empty when nothing passes.
//   - error: ErrShapeMismatch if t does not match c.
func Decode(t *tensor.Dense, c Config) ([]postprocess.Detection, error) {
	data, err := predictionData(t, c)
	if err != nil {
		return nil, err
	}

	g, a, nc := c.GridSize, c.NumAnchors(), c.NumClasses
	plane := g * g
	anchorStride := c.Channels() * plane

	var detections []postprocess.Detection

	for i := 0; i < g*g*a; i++ {
		row, col, anchor := i/(g*a), (i/a)%g, i%a
		base := anchor*anchorStride + row*g + col
		channel := func(ch int) float32 { return data[base+ch*plane] }

		// Negated comparisons also drop NaN outputs.
		objectness := sigmoid(channel(4), c.LogitClip)
		if !(objectness >= c.ConfThreshold) {
			continue
		}

		class, prob := 0, float32(-1)
		for k := 0; k < nc; k++ {
			// Strictly greater keeps the first class among equal probabilities.
			if p := sigmoid(channel(5+k), c.LogitClip); p > prob {
				class, prob = k, p
			}
		}

		score := objectness * prob
		if !(score >= c.ConfThreshold) {
			continue
		}

		bx, by := cellCenter(channel(0), channel(1), row, col, g, c.LogitClip)
		bw := c.Anchors[anchor].W * math32.Exp(clip(channel(2), c.ExpClip)) / float32(g)
		bh := c.Anchors[anchor].H * math32.Exp(clip(channel(3), c.ExpClip)) / float32(g)

		detections = append(detections, postprocess.Detection{
			Box: images.Box{
				X1: unit(bx - bw/2),
				Y1: unit(by - bh/2),
				X2: unit(bx + bw/2),
				Y2: unit(by + bh/2),
			},
			Score: score,
			Class: class,
			Index: i,
		})
	}

	return detections, nil
}

// cellCenter returns the normalized box center predicted by a cell, kept inside the cell:
// col/g <= bx < (col+1)/g. A saturated offset rounds up to the next cell edge in float32, so
// the result is capped one ulp below it.
func cellCenter(tx, ty float32, row, col, g int, logitClip float32) (bx, by float32) {
	return inCell(tx, col, g, logitClip), inCell(ty, row, g, logitClip)
}

func inCell(t float32, cell, g int, logitClip float32) float32 {
	gf := float32(g)
	lo, hi := float32(cell)/gf, float32(cell+1)/gf
	v := (float32(cell) + sigmoid(t, logitClip)) / gf
	return min(max(v, lo), math32.Nextafter(hi, lo))
}

func sigmoid(x, bound float32) float32 {
	return 1 / (1 + math32.Exp(-clip(x, bound)))
}

func clip(x, bound float32) float32 {
	return min(max(x, -bound), bound)
}

func unit(v float32) float32 {
	return min(max(v, 0), 1)
}
