package cmd

import (
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-tinyyolo/benchmark"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/util"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// frameOutput is the JSON record written for each processed frame.
type frameOutput struct {
	Path       string                       `json:"path"`
	Frame      int                          `json:"frame"`
	Width      int                          `json:"width"`
	Height     int                          `json:"height"`
	ElapsedMs  float64                      `json:"elapsed_ms"`
	Detections []postprocess.PixelDetection `json:"detections"`
}

func newDetectCommand(a *app) *cobra.Command {
	var (
		output      string
		pretty      bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "detect <image|directory>",
		Short: "Detect objects in an image or a directory of frames",
		Long: `Detect objects in a single image, or in every image of a directory processed in
frame order ("frame-12.jpg" is frame 12). Results are written as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Model.Path == "" {
				return errors.New("no model configured: set --model or model.path")
			}

			paths, frames, err := loadInput(args[0])
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			detector, err := a.buildDetector(inference.NewMetrics(registry))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := detector.Close(); cerr != nil {
					a.logger.Warn("failed to close detector", zap.Error(cerr))
				}
			}()

			results, err := detector.DetectFrames(cmd.Context(), frames, a.cfg.Batch.Workers)
			if err != nil {
				return err
			}

			fps := benchmark.NewFPSMeter(benchmark.DefaultFPSWindow)
			records := make([]frameOutput, len(results))
			total := 0
			for i, r := range results {
				fps.Observe(r.Elapsed)
				total += len(r.Detections)
				records[i] = frameOutput{
					Path:       paths[i],
					Frame:      r.Frame,
					Width:      r.Width,
					Height:     r.Height,
					ElapsedMs:  float64(r.Elapsed.Microseconds()) / 1000,
					Detections: r.Detections,
				}
			}

			a.logger.Info("detection complete",
				zap.Int("frames", len(results)),
				zap.Int("detections", total),
				zap.Float64("fps", fps.FPS()),
			)

			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
					return errors.Wrap(err, "failed to write metrics")
				}
			}

			return writeJSON(cmd.OutOrStdout(), output, records, pretty)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")

	return cmd
}

// buildDetector wires the configured model to its engine.
func (a *app) buildDetector(metrics *inference.Metrics) (*inference.Detector, error) {
	builder := inference.NewDetectorBuilder().
		WithModel(a.cfg.ModelArgs()).
		WithLogger(a.logger).
		WithMetrics(metrics)

	if a.newEngine == nil {
		return builder.WithSession(a.cfg.Session()).Build()
	}

	engine, err := a.newEngine(a.cfg, a.cfg.Model.TinyYOLO())
	if err != nil {
		return nil, err
	}
	return builder.WithEngine(engine).Build()
}

// loadInput loads one image, or every image of a directory in frame order.
func loadInput(path string) ([]string, []image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to stat input")
	}

	if !info.IsDir() {
		img, err := util.LoadImage(path)
		if err != nil {
			return nil, nil, err
		}
		return []string{path}, []image.Image{img}, nil
	}

	frames, files, err := util.LoadFrames(path)
	if err != nil {
		return nil, nil, err
	}
	if len(frames) == 0 {
		return nil, nil, errors.Errorf("no images found in %s", path)
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, frames, nil
}

func writeJSON(stdout io.Writer, path string, v any, pretty bool) (err error) {
	w := stdout
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "failed to create output directory")
			}
		}
		var f *os.File
		if f, err = os.Create(path); err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
