package tinyyolo

import (
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// TinyYOLO is an instance of the Tiny-YOLO grid detector post-processor.
type TinyYOLO struct {
	base   model.BaseModel
	config Config
}

// NewModel creates a new Tiny-YOLO model.
//
// Arguments:
//   - args: The arguments for creating a new model. args.Options must be a Config or nil, in
//     which case DefaultConfig is used.
//
// Returns:
//   - *TinyYOLO: The model.
//   - error: ErrInvalidConfig if the configuration is rejected.
func NewModel(args model.NewModelArgs) (*TinyYOLO, error) {
	config := DefaultConfig()
	if args.Options != nil {
		c, ok := args.Options.(Config)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidConfig, "unexpected options type %T", args.Options)
		}
		config = c
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	family := args.Family
	if family == "" {
		family = model.ModelFamilyYOLO
	}

	return &TinyYOLO{
		base: model.BaseModel{
			Name:      model.ModelNameTinyYOLO,
			Family:    family,
			Path:      args.Path,
			InputSize: config.InputSize,
			Inputs:    args.Inputs,
			Outputs:   args.Outputs,
		},
		config: config,
	}, nil
}

// New creates a Tiny-YOLO model from a configuration alone.
func New(config Config) (*TinyYOLO, error) {
	return NewModel(model.NewModelArgs{Options: config})
}

// Options returns the model description.
func (m *TinyYOLO) Options() model.BaseModel {
	return m.base
}

// Config returns the model configuration.
func (m *TinyYOLO) Config() Config {
	return m.config
}

// InputSize returns the side of the square network input.
func (m *TinyYOLO) InputSize() int {
	return m.config.InputSize
}

// PostProcess decodes the raw output and applies class-aware NMS.
//
// Arguments:
//   - output: The raw network output.
//
// Returns:
//   - []postprocess.Detection: Surviving detections in normalized-letterboxed space, sorted by
//     descending score.
//   - error: ErrShapeMismatch if output does not match the configuration.
func (m *TinyYOLO) PostProcess(output *tensor.Dense) ([]postprocess.Detection, error) {
	candidates, err := Decode(output, m.config)
	if err != nil {
		return nil, err
	}

	return postprocess.ApplyNMS(candidates, m.config.NMS), nil
}

// Detect post-processes the raw output and back-projects the result to the source image
// described by lb.
//
// Arguments:
//   - output: The raw network output.
//   - lb: The letterbox mapping used to build the network input.
//
// Returns:
//   - []postprocess.PixelDetection: Labeled detections in source-pixel space.
//   - error: ErrShapeMismatch if output does not match the configuration.
func (m *TinyYOLO) Detect(output *tensor.Dense, lb images.Letterbox) ([]postprocess.PixelDetection, error) {
	detections, err := m.PostProcess(output)
	if err != nil {
		return nil, err
	}

	return postprocess.Project(detections, lb, lb.SourceHeight, lb.SourceWidth, m.config.Labels), nil
}
