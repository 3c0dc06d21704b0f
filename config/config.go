// Package config - Configuration loading for the detector.
package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolox/inference"
	"github.com/nvr-ai/go-yolox/models/yolox"
)

// EnvPrefix is the prefix of environment variables overriding file values,
// e.g. YOLOX_DETECTOR_MAXDETECTIONS=20.
const EnvPrefix = "YOLOX_"

// ModelConfig locates the model and its labels.
type ModelConfig struct {
	inference.SessionConfig `koanf:",squash"`
	// Labels is a newline separated label file. Empty uses the built-in COCO labels.
	Labels string `koanf:"labels"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `koanf:"level"`
	Debug bool   `koanf:"debug"`
}

// Config is the application configuration.
type Config struct {
	Model    ModelConfig   `koanf:"model"`
	Detector yolox.Options `koanf:"detector"`
	Log      LogConfig     `koanf:"log"`
}

func defaults() map[string]any {
	opts := yolox.DefaultOptions()
	return map[string]any{
		"model.width":            416,
		"model.height":           416,
		"detector.maxdetections": opts.MaxDetections,
		"detector.probthreshold": opts.ProbThreshold,
		"detector.nmsthreshold":  opts.NMSThreshold,
		"detector.workers":       opts.Workers,
		"log.level":              "info",
	}
}

// Load reads the configuration from defaults, then the YAML file at path (if
// not empty), then YOLOX_ environment variables, and validates the result.
//
// Arguments:
//   - path: Path to a YAML configuration file, or "" for defaults and env only.
//
// Returns:
//   - *Config: The configuration.
//   - error: An error if loading or validation fails.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the detector cannot run with.
func (c *Config) Validate() error {
	if c.Model.Width <= 0 || c.Model.Height <= 0 {
		return errors.Errorf("model input size must be positive, got %dx%d", c.Model.Width, c.Model.Height)
	}
	if c.Model.Width%32 != 0 || c.Model.Height%32 != 0 {
		return errors.Errorf("model input size must be a multiple of 32, got %dx%d", c.Model.Width, c.Model.Height)
	}
	return errors.Wrap(c.Detector.Validate(), "detector")
}
