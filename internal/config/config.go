// Package config provides configuration helpers for animal-detect commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultPort             = "8080"
	DefaultWebDir           = "./web"
	DefaultModelPath        = "models/yolov8n.onnx"
	DefaultConfidenceThresh = 0.25
	DefaultNMSThresh        = 0.45
	DefaultFrameInterval    = 33 * time.Millisecond
	DefaultJPEGQuality      = 85
	DefaultViewportWidth    = 560
	DefaultViewportHeight   = 560
)

// Environment variable names.
const (
	EnvPort          = "ANIMALDETECT_PORT"
	EnvWebDir        = "ANIMALDETECT_WEB_DIR"
	EnvModelPath     = "ANIMALDETECT_MODEL"
	EnvDetectorURL   = "ANIMALDETECT_DETECTOR_URL"
	EnvCatalogPath   = "ANIMALDETECT_CATALOG"
	EnvFrameInterval = "ANIMALDETECT_FRAME_INTERVAL"
	EnvRecordDir     = "ANIMALDETECT_RECORD_DIR"
	EnvLogLevel      = "ANIMALDETECT_LOG_LEVEL"
)

// Config holds all configuration for the animal-detect server.
// Flag parsing is done in cmd/animaldetect; this struct is data only.
type Config struct {
	// Port the web shell listens on.
	Port string

	// WebDir holds static assets for the dashboard.
	WebDir string

	// ModelPath is the ONNX weights file used by the local detector.
	ModelPath string

	// DetectorURL selects the remote inference service instead of the
	// local model when set.
	DetectorURL string

	// CatalogPath is an optional YAML file with class names and the
	// carnivorous list. Empty uses the built-in animal catalog.
	CatalogPath string

	// Detector thresholds.
	ConfidenceThresh float64
	NMSThresh        float64

	// FrameInterval is the fixed pause after each played frame.
	FrameInterval time.Duration

	// RecordDir enables the per-run detection log when set.
	RecordDir string

	// Display settings.
	JPEGQuality    int
	ViewportWidth  int
	ViewportHeight int

	LogLevel string
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Port:             DefaultPort,
		WebDir:           DefaultWebDir,
		ModelPath:        DefaultModelPath,
		ConfidenceThresh: DefaultConfidenceThresh,
		NMSThresh:        DefaultNMSThresh,
		FrameInterval:    DefaultFrameInterval,
		JPEGQuality:      DefaultJPEGQuality,
		ViewportWidth:    DefaultViewportWidth,
		ViewportHeight:   DefaultViewportHeight,
		LogLevel:         "info",
	}
}

// LoadEnv applies environment overrides. Call this before flag parsing so
// flags win over the environment.
func (c *Config) LoadEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		c.Port = v
	}
	if v := os.Getenv(EnvWebDir); v != "" {
		c.WebDir = v
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv(EnvDetectorURL); v != "" {
		c.DetectorURL = v
	}
	if v := os.Getenv(EnvCatalogPath); v != "" {
		c.CatalogPath = v
	}
	if v := os.Getenv(EnvRecordDir); v != "" {
		c.RecordDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvFrameInterval); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvFrameInterval, err)
		}
		c.FrameInterval = d
	}
	return nil
}

// parseInterval accepts a Go duration ("33ms") or a bare millisecond count.
func parseInterval(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("config: port required"))
	}
	if c.ModelPath == "" && c.DetectorURL == "" {
		errs = append(errs, errors.New("config: model path or detector URL required"))
	}
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		errs = append(errs, fmt.Errorf("config: confidence threshold %.2f outside [0,1]", c.ConfidenceThresh))
	}
	if c.NMSThresh < 0 || c.NMSThresh > 1 {
		errs = append(errs, fmt.Errorf("config: NMS threshold %.2f outside [0,1]", c.NMSThresh))
	}
	if c.FrameInterval < 0 {
		errs = append(errs, errors.New("config: frame interval must not be negative"))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("config: JPEG quality %d outside [1,100]", c.JPEGQuality))
	}
	return errors.Join(errs...)
}
