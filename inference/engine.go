// Package inference - Runs a detection model end to end: input preparation, the network engine,
// post-processing and back-projection.
package inference

import (
	"context"
	"image"
	"time"

	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Engine runs the network: a prepared (3, S, S) input in, the raw prediction tensor out.
type Engine interface {
	Run(ctx context.Context, input []float32) (*tensor.Dense, error)
	Close() error
}

// FrameResult is the outcome of detecting one frame.
type FrameResult struct {
	// Frame is the position of the frame in its batch.
	Frame int `json:"frame"`
	// Width is the source frame width.
	Width int `json:"width"`
	// Height is the source frame height.
	Height int `json:"height"`
	// Letterbox is the mapping used to build the network input.
	Letterbox images.Letterbox `json:"letterbox"`
	// Detections are the labeled boxes in source-pixel space.
	Detections []postprocess.PixelDetection `json:"detections"`
	// Elapsed is the wall time spent on the frame.
	Elapsed time.Duration `json:"elapsed"`
}

// Detector chains input preparation, an Engine and a Model.
type Detector struct {
	engine  Engine
	model   model.Model
	logger  *zap.Logger
	metrics *Metrics
}

// Detect runs the full pipeline on one image.
//
// Arguments:
//   - ctx: The context for the engine call.
//   - img: The source image.
//
// Returns:
//   - FrameResult: Detections in img's pixel space.
//   - error: An error from input preparation, the engine or post-processing.
func (d *Detector) Detect(ctx context.Context, img image.Image) (FrameResult, error) {
	result, err := d.detect(ctx, img)
	d.metrics.frameDone(err)
	if err != nil {
		d.logger.Warn("detection failed", zap.Error(err))
		return FrameResult{}, err
	}

	d.metrics.detected(result.Detections)
	d.logger.Debug("frame processed",
		zap.Int("width", result.Width),
		zap.Int("height", result.Height),
		zap.Int("detections", len(result.Detections)),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (d *Detector) detect(ctx context.Context, img image.Image) (FrameResult, error) {
	start := time.Now()

	input, lb, err := NewInput(img, d.model.InputSize())
	if err != nil {
		return FrameResult{}, errors.Wrap(err, "error preparing input")
	}
	d.metrics.observeStage(StagePreprocess, time.Since(start))

	inferStart := time.Now()
	output, err := d.engine.Run(ctx, input)
	if err != nil {
		return FrameResult{}, errors.Wrap(err, "error running engine")
	}
	d.metrics.observeStage(StageInference, time.Since(inferStart))

	postStart := time.Now()
	detections, err := d.model.Detect(output, lb)
	if err != nil {
		return FrameResult{}, errors.Wrap(err, "error post-processing output")
	}
	d.metrics.observeStage(StagePostprocess, time.Since(postStart))

	return FrameResult{
		Width:      lb.SourceWidth,
		Height:     lb.SourceHeight,
		Letterbox:  lb,
		Detections: detections,
		Elapsed:    time.Since(start),
	}, nil
}

// Model returns the detector's model.
func (d *Detector) Model() model.Model {
	return d.model
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}

// DetectorBuilder assembles a Detector with a fluent API.
type DetectorBuilder struct {
	engine  Engine
	model   model.Model
	logger  *zap.Logger
	metrics *Metrics
	err     error
}

// NewDetectorBuilder creates a new detector builder.
//
// Returns:
//   - *DetectorBuilder: The detector builder.
//
// @example
// d, err := NewDetectorBuilder().
//
//	WithModel(model.NewModelArgs{Name: model.ModelNameTinyYOLO, Path: "tiny-yolov2.onnx"}).
//	WithSession(SessionConfig{ModelPath: "tiny-yolov2.onnx"}).
//	WithLogger(logger).
//	Build()
func NewDetectorBuilder() *DetectorBuilder {
	return &DetectorBuilder{}
}

// WithModel creates the model through the registry.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *DetectorBuilder: The detector builder.
func (b *DetectorBuilder) WithModel(args model.NewModelArgs) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	return b
}

// WithEngine sets an already constructed engine.
func (b *DetectorBuilder) WithEngine(engine Engine) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	b.engine = engine
	return b
}

// WithSession opens an ONNX Runtime session shaped for the configured model. WithModel must be
// called first.
//
// Arguments:
//   - cfg: The session configuration.
//
// Returns:
//   - *DetectorBuilder: The detector builder.
func (b *DetectorBuilder) WithSession(cfg SessionConfig) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	ty, ok := b.model.(*tinyyolo.TinyYOLO)
	if !ok {
		b.err = errors.New("session requires a configured tiny-yolo model")
		return b
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = ty.Options().Path
	}

	session, err := NewSession(cfg, ty.Config())
	if err != nil {
		b.err = err
		return b
	}
	b.engine = session
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *DetectorBuilder) WithLogger(logger *zap.Logger) *DetectorBuilder {
	b.logger = logger
	return b
}

// WithMetrics sets the Prometheus collectors. The default records nothing.
func (b *DetectorBuilder) WithMetrics(metrics *Metrics) *DetectorBuilder {
	b.metrics = metrics
	return b
}

// HasError checks if the detector builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *DetectorBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the detector.
//
// Returns:
//   - *Detector: The detector.
//   - error: The first error recorded by the builder, or a missing component.
func (b *DetectorBuilder) Build() (*Detector, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}
	if b.engine == nil {
		return nil, errors.New("engine not configured")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		engine:  b.engine,
		model:   b.model,
		logger:  logger.With(zap.String("model", string(b.model.Options().Name))),
		metrics: b.metrics,
	}, nil
}

// MustBuild builds the detector and panics if there is an error.
//
// Returns:
//   - *Detector: The detector.
func (b *DetectorBuilder) MustBuild() *Detector {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
