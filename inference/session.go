package inference

import (
	"context"
	"os"
	"sync"

	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// SessionConfig describes an ONNX Runtime session for a Tiny-YOLO network.
type SessionConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath is the path to the ONNX Runtime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName is the graph input node name.
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputName is the graph output node name.
	OutputName string `json:"output_name" yaml:"output_name"`
	// Provider selects the execution provider.
	Provider Provider `json:"provider" yaml:"provider"`
	// IntraOpThreads parallelizes work inside graph nodes. 0 uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes independent graph nodes. 0 uses the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// Session is an Engine backed by an ONNX Runtime session with preallocated tensors.
//
// The input and output buffers are bound to the native session, so Run calls are serialized.
type Session struct {
	mu          sync.Mutex
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	outputShape tensor.Shape
}

var ortInit sync.Mutex

// NewSession creates a new ONNX Runtime session for a model configuration.
//
// Order of operations:
//  1. Library path check: Ensures the native runtime is accessible.
//  2. Environment setup: Loads the native library once per process.
//  3. Tensor allocation: Input (1, 3, S, S) and output (1, A*(5+C), G, G) buffers.
//  4. Session options: Threading, graph optimization and the execution provider.
//  5. Session creation: Loads the model and binds the buffers.
//
// Arguments:
//   - cfg: The session configuration.
//   - model: The model configuration the network was exported with.
//
// Returns:
//   - *Session: The session. Close must be called to release native resources.
//   - error: An error if any step fails.
func NewSession(cfg SessionConfig, model tinyyolo.Config) (*Session, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = DefaultSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "ONNX Runtime library not found at %q", libPath)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model not found at %q", cfg.ModelPath)
	}

	if err := initializeEnvironment(libPath); err != nil {
		return nil, err
	}

	size := int64(model.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	channels := int64(model.NumAnchors() * model.Channels())
	grid := int64(model.GridSize)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, channels, grid, grid))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := sessionOptions(cfg)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	inputName, outputName := cfg.InputName, cfg.OutputName
	if inputName == "" {
		inputName = "image"
	}
	if outputName == "" {
		outputName = "grid"
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &Session{
		session:     session,
		input:       input,
		output:      output,
		outputShape: tensor.Shape{1, int(channels), int(grid), int(grid)},
	}, nil
}

func initializeEnvironment(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

func sessionOptions(cfg SessionConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	fail := func(err error, msg string) (*ort.SessionOptions, error) {
		options.Destroy()
		return nil, errors.Wrap(err, msg)
	}

	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return fail(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		return fail(err, "error setting inter-op threads")
	}
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	switch cfg.Provider {
	case CoreMLExecutionProvider:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fail(err, "error enabling CoreML")
		}
	case OpenVINOExecutionProvider:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{"device_type": "CPU"}); err != nil {
			return fail(err, "error enabling OpenVINO")
		}
	}

	return options, nil
}

// Run copies input into the bound input tensor, runs the network and returns a copy of the raw
// output as a (1, A*(5+C), G, G) tensor.
func (s *Session) Run(ctx context.Context, input []float32) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, errors.Errorf("input holds %d values, session expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}

	out := make([]float32, len(s.output.GetData()))
	copy(out, s.output.GetData())

	return tensor.New(tensor.WithShape(s.outputShape.Clone()...), tensor.WithBacking(out)), nil
}

// Close releases the native session and its tensors.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}
