package inference

import (
	"runtime"

	"github.com/pkg/errors"
)

// Provider is an ONNX Runtime execution provider.
type Provider string

const (
	// CPUExecutionProvider uses the default CPU kernels.
	CPUExecutionProvider Provider = "cpu"
	// CoreMLExecutionProvider uses Apple CoreML for macOS acceleration.
	CoreMLExecutionProvider Provider = "coreml"
	// OpenVINOExecutionProvider uses Intel OpenVINO.
	OpenVINOExecutionProvider Provider = "openvino"
)

// Providers is a list of all supported execution providers.
var Providers = []Provider{CPUExecutionProvider, CoreMLExecutionProvider, OpenVINOExecutionProvider}

// ParseProvider validates a provider name. An empty name selects the CPU provider.
func ParseProvider(name string) (Provider, error) {
	if name == "" {
		return CPUExecutionProvider, nil
	}
	for _, p := range Providers {
		if string(p) == name {
			return p, nil
		}
	}
	return "", errors.Errorf("unsupported execution provider %q", name)
}

// DefaultSharedLibPath returns the conventional ONNX Runtime library path for the current
// platform, or "" when none is known.
func DefaultSharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}
