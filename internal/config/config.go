// Package config loads correlation settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"piescope/internal/alignment"
	"piescope/internal/image"
	"piescope/internal/overlay"
	"piescope/internal/resample"
	"piescope/pkg/colorutil"
)

const fileName = "config.yaml"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report lines are positional; a title must not add lines.
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	return v
}

// Config holds every tunable of a correlation run.
type Config struct {
	Estimation EstimationConfig  `yaml:"estimation"`
	Resample   ResampleConfig    `yaml:"resample"`
	Overlay    OverlayConfig     `yaml:"overlay"`
	Output     OutputConfig      `yaml:"output"`
	Capture    CaptureConfig     `yaml:"capture"`
	Adjust     image.Adjustments `yaml:"adjust"`
	LogLevel   string            `yaml:"log_level" validate:"oneof=debug info warn error"`
}

type EstimationConfig struct {
	Model        string  `yaml:"model" validate:"oneof=affine rigid"`
	MaxCondition float64 `yaml:"max_condition" validate:"gt=1"`
}

type ResampleConfig struct {
	Interpolation string  `yaml:"interpolation" validate:"oneof=bilinear nearest opencv"`
	Fill          float64 `yaml:"fill"`
	Multichannel  bool    `yaml:"multichannel"`
}

type OverlayConfig struct {
	Transparency float64 `yaml:"transparency" validate:"gte=0,lte=1"`
	Mode         string  `yaml:"mode" validate:"oneof=normal screen difference"`
	Tint         string  `yaml:"tint"` // colorizes a single-channel source; empty keeps gray
}

type OutputConfig struct {
	Dir         string `yaml:"dir" validate:"required"`
	ReportTitle string `yaml:"report_title" validate:"required,singleline"`
	Annotate    bool   `yaml:"annotate"` // also save the overlay with landmarks marked
}

type CaptureConfig struct {
	QuietPeriod time.Duration `yaml:"quiet_period" validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Estimation: EstimationConfig{
			Model:        "affine",
			MaxCondition: alignment.DefaultMaxCondition,
		},
		Resample: ResampleConfig{
			Interpolation: "bilinear",
			Multichannel:  true,
		},
		Overlay: OverlayConfig{
			Transparency: 0.5,
			Mode:         "normal",
		},
		Output: OutputConfig{
			Dir:         ".",
			ReportTitle: "PIEScope correlation report",
			Annotate:    true,
		},
		Capture: CaptureConfig{
			QuietPeriod: 500 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "piescope", fileName)
}

// Load reads path over the defaults. An empty path, or a missing file at the
// default location, yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field constraints and that every named option resolves.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Overlay.Tint != "" {
		if _, err := colorutil.Parse(c.Overlay.Tint); err != nil {
			return fmt.Errorf("invalid config: overlay tint: %w", err)
		}
	}
	return nil
}

// Estimator builds the transform estimator.
func (c Config) Estimator() (*alignment.Estimator, error) {
	model, err := alignment.ParseModel(c.Estimation.Model)
	if err != nil {
		return nil, err
	}
	return &alignment.Estimator{Model: model, MaxCondition: c.Estimation.MaxCondition}, nil
}

// WarpOptions returns resampling options for an output of the given size.
func (c Config) WarpOptions(width, height int) (resample.Options, error) {
	interp, err := resample.ParseInterpolation(c.Resample.Interpolation)
	if err != nil {
		return resample.Options{}, err
	}
	opts := resample.DefaultOptions()
	opts.Interpolation = interp
	opts.Fill = c.Resample.Fill
	opts.Multichannel = c.Resample.Multichannel
	opts.OutputWidth = width
	opts.OutputHeight = height
	return opts, nil
}

// BlendMode returns the configured overlay mode.
func (c Config) BlendMode() (overlay.Mode, error) {
	return overlay.ParseMode(c.Overlay.Mode)
}

// SlogLevel maps LogLevel onto slog.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
