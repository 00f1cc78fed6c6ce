package inference

import (
	"image"

	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/pkg/errors"
)

var (
	// ImageNetMean is the per-channel RGB mean subtracted after scaling to [0, 1].
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	// ImageNetStd is the per-channel RGB standard deviation divided out after the mean.
	ImageNetStd = [3]float32{0.229, 0.224, 0.225}
)

// PrepareInput renders img through the letterbox and writes it into dst as a standardized CHW
// tensor, typically right before the network is run.
//
// Padding uses images.DefaultFill. Each channel value v is written as (v/255 - mean) / std.
//
// Arguments:
//   - img: The image to prepare.
//   - lb: The letterbox mapping for img. The same value must be used for back-projection.
//   - dst: The destination tensor, at least 3 * TargetSize * TargetSize values.
//
// Returns:
//   - error: An error if dst is too small.
func PrepareInput(img image.Image, lb images.Letterbox, dst []float32) error {
	size := lb.TargetSize
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d "+
			"(make sure it's the right shape!)", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	canvas := lb.Apply(img, nil)

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := canvas.RGBAAt(x, y)
			red[i] = standardize(c.R, 0)
			green[i] = standardize(c.G, 1)
			blue[i] = standardize(c.B, 2)
			i++
		}
	}
	return nil
}

// NewInput computes the letterbox for img and returns a freshly allocated input tensor.
//
// Arguments:
//   - img: The image to prepare.
//   - size: The side of the square network input.
//
// Returns:
//   - []float32: The (3, size, size) input values.
//   - images.Letterbox: The mapping to back-project detections with.
//   - error: images.ErrInvalidDimensions for empty images.
func NewInput(img image.Image, size int) ([]float32, images.Letterbox, error) {
	b := img.Bounds()
	lb, err := images.NewLetterbox(b.Dy(), b.Dx(), size)
	if err != nil {
		return nil, images.Letterbox{}, err
	}

	input := make([]float32, 3*size*size)
	if err := PrepareInput(img, lb, input); err != nil {
		return nil, images.Letterbox{}, err
	}
	return input, lb, nil
}

func standardize(v uint8, channel int) float32 {
	return (float32(v)/255 - ImageNetMean[channel]) / ImageNetStd[channel]
}
