// Package cmd - Command-line interface of the Tiny-YOLO detector.
package cmd

import (
	"context"

	"github.com/nvr-ai/go-tinyyolo/config"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "unknown"
)

// engineFactory creates the network engine for a model. Nil opens an ONNX Runtime session.
type engineFactory func(cfg *config.Config, model tinyyolo.Config) (inference.Engine, error)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	cfgFile   string
	loader    *config.Loader
	cfg       *config.Config
	logger    *zap.Logger
	newEngine engineFactory
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// NewRootCommand builds the command tree with a fresh configuration loader.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{loader: config.NewLoader()})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tinyyolo",
		Short: "Tiny-YOLO object detection",
		Long: `Runs a Tiny-YOLO network through ONNX Runtime and turns its grid output into
labeled bounding boxes in original-image coordinates.

Examples:
  tinyyolo detect street.jpg --model tiny-yolov2.onnx
  tinyyolo detect ./frames --model tiny-yolov2.onnx --workers 8 --output detections.json
  tinyyolo bench --set density`,
		Version:           version + " (commit: " + commit + ")",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is search in ., $XDG_CONFIG_HOME/tinyyolo, /etc/tinyyolo)")
	flags.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("model", "", "path to the Tiny-YOLO ONNX model")
	flags.String("provider", string(inference.CPUExecutionProvider), "execution provider (cpu, coreml, openvino)")
	flags.String("library", "", "path to the ONNX Runtime shared library")
	flags.Float32("conf-threshold", tinyyolo.DefaultConfThreshold, "minimum objectness and class score")
	flags.Float32("nms-threshold", tinyyolo.DefaultNMSThreshold, "IoU at which same-class boxes are suppressed")
	flags.Int("workers", 4, "frames processed concurrently")

	v := a.loader.Viper()
	for key, flag := range map[string]string{
		"verbose":              "verbose",
		"log_level":            "log-level",
		"model.path":           "model",
		"runtime.provider":     "provider",
		"runtime.library_path": "library",
		"model.conf_threshold": "conf-threshold",
		"model.nms_threshold":  "nms-threshold",
		"batch.workers":        "workers",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newDetectCommand(a), newBenchCommand(a))

	return root
}

// setup loads the configuration and builds the logger before any subcommand runs.
func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := a.loader.Load(a.cfgFile)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger

	if used := a.loader.ConfigFileUsed(); used != "" {
		logger.Debug("configuration loaded", zap.String("file", used))
	}

	return nil
}

// newLogger builds a JSON production logger at the configured level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
