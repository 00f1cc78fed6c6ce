package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "tinyyolo"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "TINYYOLO"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Viper returns the underlying viper instance, e.g. for binding command-line flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from defaults, the config file, environment variables and bound
// flags, in increasing order of precedence, then validates it.
//
// Arguments:
//   - configFile: An explicit config file path. When empty, ConfigFileName is searched for in
//     the standard paths and a missing file is not an error.
//
// Returns:
//   - *Config: The loaded configuration.
//   - error: A read, decode or validation error.
func (l *Loader) Load(configFile string) (*Config, error) {
	config, err := l.LoadWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// LoadWithoutValidation is Load without the final validation.
func (l *Loader) LoadWithoutValidation(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, errors.Wrapf(err, "config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file in the search paths falls back to defaults and env vars.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	return &config, nil
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range SearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// SearchPaths returns the paths where configuration files are searched.
func SearchPaths() []string {
	paths := []string{"."}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "tinyyolo"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tinyyolo"))
	}

	return append(paths, "/etc/tinyyolo")
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("model.name", defaults.Model.Name)
	l.v.SetDefault("model.family", defaults.Model.Family)
	l.v.SetDefault("model.path", defaults.Model.Path)
	l.v.SetDefault("model.input_size", defaults.Model.InputSize)
	l.v.SetDefault("model.grid_size", defaults.Model.GridSize)
	l.v.SetDefault("model.num_classes", defaults.Model.NumClasses)
	l.v.SetDefault("model.anchors", anchorMaps(defaults.Model.Anchors))
	l.v.SetDefault("model.conf_threshold", defaults.Model.ConfThreshold)
	l.v.SetDefault("model.nms_threshold", defaults.Model.NMSThreshold)
	l.v.SetDefault("model.logit_clip", defaults.Model.LogitClip)
	l.v.SetDefault("model.exp_clip", defaults.Model.ExpClip)

	l.v.SetDefault("runtime.library_path", defaults.Runtime.LibraryPath)
	l.v.SetDefault("runtime.provider", defaults.Runtime.Provider)
	l.v.SetDefault("runtime.input_name", defaults.Runtime.InputName)
	l.v.SetDefault("runtime.output_name", defaults.Runtime.OutputName)
	l.v.SetDefault("runtime.intra_op_threads", defaults.Runtime.IntraOpThreads)
	l.v.SetDefault("runtime.inter_op_threads", defaults.Runtime.InterOpThreads)

	l.v.SetDefault("batch.workers", defaults.Batch.Workers)
}

// anchorMaps converts anchors to the generic form viper produces when reading a config file.
func anchorMaps(anchors []tinyyolo.Anchor) []map[string]any {
	out := make([]map[string]any, len(anchors))
	for i, a := range anchors {
		out[i] = map[string]any{"w": a.W, "h": a.H}
	}
	return out
}
