package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DetectFrames runs Detect over frames with at most workers concurrent calls and returns the
// results in frame order. The first failure cancels the remaining frames.
//
// Arguments:
//   - ctx: The context for the batch.
//   - frames: The frames to process.
//   - workers: The maximum number of concurrent frames. Values below 1 mean one.
//
// Returns:
//   - []FrameResult: One result per frame, results[i].Frame == i.
//   - error: The first frame error, wrapped with the frame index.
func (d *Detector) DetectFrames(ctx context.Context, frames []image.Image, workers int) ([]FrameResult, error) {
	results := make([]FrameResult, len(frames))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i, frame := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := d.Detect(ctx, frame)
			if err != nil {
				return errors.Wrapf(err, "frame %d", i)
			}
			r.Frame = i
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
