// Package config - Configuration for the detection pipeline, loaded from files, environment
// variables and command-line flags.
package config

import (
	"slices"
	"strings"

	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
)

// Config represents the complete configuration of the tinyyolo tool.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Model and post-processing settings
	Model ModelConfig `mapstructure:"model" yaml:"model" json:"model"`

	// ONNX Runtime settings
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime" json:"runtime"`

	// Multi-frame processing
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// ModelConfig describes the network output layout and the post-processing thresholds. It is
// fixed for the lifetime of the process.
type ModelConfig struct {
	Name          string            `mapstructure:"name" yaml:"name" json:"name"`
	Family        string            `mapstructure:"family" yaml:"family" json:"family"`
	Path          string            `mapstructure:"path" yaml:"path" json:"path"`
	InputSize     int               `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	GridSize      int               `mapstructure:"grid_size" yaml:"grid_size" json:"grid_size"`
	NumClasses    int               `mapstructure:"num_classes" yaml:"num_classes" json:"num_classes"`
	Anchors       []tinyyolo.Anchor `mapstructure:"anchors" yaml:"anchors" json:"anchors"`
	ConfThreshold float32           `mapstructure:"conf_threshold" yaml:"conf_threshold" json:"conf_threshold"`
	NMSThreshold  float32           `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	LogitClip     float32           `mapstructure:"logit_clip" yaml:"logit_clip" json:"logit_clip"`
	ExpClip       float32           `mapstructure:"exp_clip" yaml:"exp_clip" json:"exp_clip"`
	// Labels overrides the class names of the model family.
	Labels []string `mapstructure:"labels" yaml:"labels,omitempty" json:"labels,omitempty"`
}

// RuntimeConfig contains ONNX Runtime session settings.
type RuntimeConfig struct {
	LibraryPath    string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	Provider       string `mapstructure:"provider" yaml:"provider" json:"provider"`
	InputName      string `mapstructure:"input_name" yaml:"input_name" json:"input_name"`
	OutputName     string `mapstructure:"output_name" yaml:"output_name" json:"output_name"`
	IntraOpThreads int    `mapstructure:"intra_op_threads" yaml:"intra_op_threads" json:"intra_op_threads"`
	InterOpThreads int    `mapstructure:"inter_op_threads" yaml:"inter_op_threads" json:"inter_op_threads"`
}

// BatchConfig contains multi-frame processing settings.
type BatchConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	m := tinyyolo.DefaultConfig()

	return Config{
		LogLevel: "info",
		Model: ModelConfig{
			Name:          string(model.ModelNameTinyYOLO),
			Family:        string(model.ModelFamilyYOLO),
			InputSize:     m.InputSize,
			GridSize:      m.GridSize,
			NumClasses:    m.NumClasses,
			Anchors:       m.Anchors,
			ConfThreshold: m.ConfThreshold,
			NMSThreshold:  m.NMS.IoUThreshold,
			LogitClip:     m.LogitClip,
			ExpClip:       m.ExpClip,
		},
		Runtime: RuntimeConfig{
			Provider:   string(inference.CPUExecutionProvider),
			InputName:  "image",
			OutputName: "grid",
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// TinyYOLO converts the model settings to a tinyyolo.Config.
func (m ModelConfig) TinyYOLO() tinyyolo.Config {
	c := tinyyolo.Config{
		InputSize:     m.InputSize,
		GridSize:      m.GridSize,
		NumClasses:    m.NumClasses,
		Anchors:       slices.Clone(m.Anchors),
		ConfThreshold: m.ConfThreshold,
		NMS:           postprocess.NMSConfig{IoUThreshold: m.NMSThreshold},
		LogitClip:     m.LogitClip,
		ExpClip:       m.ExpClip,
	}
	if len(m.Labels) > 0 {
		c.Labels = slices.Clone(m.Labels)
	}
	return c
}

// ModelArgs returns the registry arguments for the configured model.
func (c *Config) ModelArgs() model.NewModelArgs {
	return model.NewModelArgs{
		Name:    model.Name(c.Model.Name),
		Family:  model.Family(c.Model.Family),
		Path:    c.Model.Path,
		Inputs:  []string{c.Runtime.InputName},
		Outputs: []string{c.Runtime.OutputName},
		Options: c.Model.TinyYOLO(),
	}
}

// Session returns the ONNX Runtime session settings.
func (c *Config) Session() inference.SessionConfig {
	return inference.SessionConfig{
		ModelPath:      c.Model.Path,
		LibraryPath:    c.Runtime.LibraryPath,
		InputName:      c.Runtime.InputName,
		OutputName:     c.Runtime.OutputName,
		Provider:       inference.Provider(c.Runtime.Provider),
		IntraOpThreads: c.Runtime.IntraOpThreads,
		InterOpThreads: c.Runtime.InterOpThreads,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return errors.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if model.Name(c.Model.Name) != model.ModelNameTinyYOLO {
		return errors.Errorf("unsupported model: %s", c.Model.Name)
	}

	if err := c.Model.TinyYOLO().Validate(); err != nil {
		return err
	}

	if _, err := inference.ParseProvider(c.Runtime.Provider); err != nil {
		return err
	}

	if c.Runtime.IntraOpThreads < 0 || c.Runtime.InterOpThreads < 0 {
		return errors.New("runtime thread counts must not be negative")
	}

	if c.Batch.Workers < 1 {
		return errors.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers)
	}

	return nil
}
