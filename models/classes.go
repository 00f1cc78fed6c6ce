// Package models - Model registry and the class label sets detection models index into.
package models

import (
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
)

// ErrUnknownClass is returned when a class index or name is not part of a set.
var ErrUnknownClass = errors.New("unknown class")

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a model family to its full, zero-based list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Family model.Family
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

func newClassSet(family model.Family, names ...string) *OutputClassSet {
	s := &OutputClassSet{
		Family:    family,
		Classes:   make([]OutputClass, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		s.Classes[i] = OutputClass{Index: i, Name: name}
		s.nameToIdx[name] = i
	}
	return s
}

// Names returns a fresh slice of labels indexed by class.
func (s *OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// Name returns the label of a class index.
func (s *OutputClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Wrapf(ErrUnknownClass, "index %d out of range for %q", idx, s.Family)
	}
	return s.Classes[idx].Name, nil
}

// Index returns the class index of a label.
func (s *OutputClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Wrapf(ErrUnknownClass, "name %q not found in %q", name, s.Family)
	}
	return idx, nil
}

// COCOClasses is the 80 COCO classes, no background. YOLO models index directly into it.
var COCOClasses = newClassSet(model.ModelFamilyCOCO,
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard",
	"cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase",
	"scissors", "teddy bear", "hair drier", "toothbrush",
)

// VOCClasses is the 20 Pascal VOC classes used by the VOC-trained Tiny-YOLO weights.
var VOCClasses = newClassSet(model.ModelFamilyVOC,
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
)

// ClassSet returns the label set of a model family. YOLO models use the COCO labels.
func ClassSet(family model.Family) (*OutputClassSet, error) {
	switch family {
	case model.ModelFamilyCOCO, model.ModelFamilyYOLO, "":
		return COCOClasses, nil
	case model.ModelFamilyVOC:
		return VOCClasses, nil
	default:
		return nil, errors.Errorf("no class set registered for family %q", family)
	}
}
