// Package model - Definitions shared by every detection model: names, families and the Model
// interface.
package model

import (
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"gorgonia.org/tensor"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
	// ModelFamilyVOC is the Pascal VOC model family.
	ModelFamilyVOC Family = "voc"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameTinyYOLO is the name of the Tiny-YOLO grid detector.
	ModelNameTinyYOLO Name = "tinyyolo"
)

// BaseModel describes a model independently of its architecture.
type BaseModel struct {
	Name      Name     `json:"name" yaml:"name"`
	Family    Family   `json:"family" yaml:"family"`
	Path      string   `json:"path" yaml:"path"`
	InputSize int      `json:"input_size" yaml:"input_size"`
	Inputs    []string `json:"inputs" yaml:"inputs"`
	Outputs   []string `json:"outputs" yaml:"outputs"`
}

// Options is a marker interface for model-specific options.
type Options interface {
	IsOptions()
}

// Model turns raw network output into detections.
type Model interface {
	// Options returns the model description.
	Options() BaseModel
	// InputSize returns the side of the square network input.
	InputSize() int
	// PostProcess decodes and suppresses raw output in normalized-letterboxed space.
	PostProcess(output *tensor.Dense) ([]postprocess.Detection, error)
	// Detect runs PostProcess and back-projects the survivors through lb.
	Detect(output *tensor.Dense, lb images.Letterbox) ([]postprocess.PixelDetection, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name    Name     `json:"name" yaml:"name"`
	Path    string   `json:"path" yaml:"path"`
	Family  Family   `json:"family" yaml:"family"`
	Inputs  []string `json:"inputs" yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`
	// Options holds the architecture-specific configuration. Nil selects the defaults.
	Options Options `json:"options" yaml:"options"`
}
