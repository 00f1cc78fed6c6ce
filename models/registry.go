package models

import (
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
)

// NewModel creates a new detection model instance based on the specified model name.
//
// This factory function is the primary entry point for model creation. It routes requests to
// the model-specific constructors and attaches the class labels of the model family when the
// options do not carry their own.
//
// Arguments:
//   - args: Configuration parameters specifying the model name, family and options.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: An error if the model name is unsupported or its options fail validation.
//
// Example:
//
// ```go
//
//	m, err := NewModel(model.NewModelArgs{
//	    Name:    model.ModelNameTinyYOLO,
//	    Family:  model.ModelFamilyYOLO,
//	    Path:    "/models/tiny-yolov2.onnx",
//	    Options: tinyyolo.DefaultConfig(),
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameTinyYOLO:
		config := tinyyolo.DefaultConfig()
		if args.Options != nil {
			c, ok := args.Options.(tinyyolo.Config)
			if !ok {
				return nil, errors.Wrapf(tinyyolo.ErrInvalidConfig, "unexpected options type %T", args.Options)
			}
			config = c
		}

		if len(config.Labels) == 0 {
			if set, err := ClassSet(args.Family); err == nil && len(set.Classes) == config.NumClasses {
				config.Labels = set.Names()
			}
		}

		args.Options = config
		m, err := tinyyolo.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Errorf("unsupported model name: %s", args.Name)
	}
}
