// Package config loads capture settings for the command line tools.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eyehal/eye/format"
	"gopkg.in/yaml.v3"
)

type SourceConfig struct {
	Device    string `yaml:"device"`     // V4L2 device node, used when replay is empty
	Replay    string `yaml:"replay"`     // image, animation or raw dump to play back
	Loop      bool   `yaml:"loop"`       // replay forever
	FPS       int    `yaml:"fps"`        // device frame rate
	ReplayFPS int    `yaml:"replay_fps"` // fixed replay rate, 0 keeps the delays stored in the file
}

type CaptureConfig struct {
	Resolution  string `yaml:"resolution"`   // WIDTHxHEIGHT
	PixelFormat string `yaml:"pixel_format"` // rgb24, gray8, bgr24, mjpeg, yuyv, ...
	Frames      int    `yaml:"frames"`       // frames to capture, 0 until end of stream
	BackoffMS   int    `yaml:"backoff_ms"`   // handoff polling interval
	Retries     int    `yaml:"retries"`      // recoverable errors tolerated in a row
}

type OutputConfig struct {
	Pattern     string `yaml:"pattern"`      // per frame files, fmt verb receives the frame number
	Record      string `yaml:"record"`       // animated PNG of all frames
	Raw         string `yaml:"raw"`          // zstd raw dump of all frames
	JPEGQuality int    `yaml:"jpeg_quality"` // 1-100
}

type Config struct {
	Source   SourceConfig  `yaml:"source"`
	Capture  CaptureConfig `yaml:"capture"`
	Output   OutputConfig  `yaml:"output"`
	LogLevel string        `yaml:"log_level"` // debug, info, warn, error
}

func Default() *Config {
	return &Config{
		Source: SourceConfig{Device: "/dev/video0", FPS: 30},
		Capture: CaptureConfig{
			Resolution:  "640x480",
			PixelFormat: "rgb24",
			Frames:      1,
			BackoffMS:   1,
			Retries:     3,
		},
		Output:   OutputConfig{Pattern: "frame-%03d.png", JPEGQuality: 95},
		LogLevel: "info",
	}
}

// Load reads a YAML (or JSON) config file over the defaults, so files need
// only mention what they change. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var ErrResolution = errors.New("resolution must be WIDTHxHEIGHT")

func ParseResolution(s string) (width, height uint32, err error) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, fmt.Errorf("%w: %q", ErrResolution, s)
	}
	pw, err := strconv.ParseUint(w, 10, 32)
	if err != nil || pw == 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrResolution, s)
	}
	ph, err := strconv.ParseUint(h, 10, 32)
	if err != nil || ph == 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrResolution, s)
	}
	return uint32(pw), uint32(ph), nil
}

func Validate(cfg *Config) error {
	if cfg.Source.Device == "" && cfg.Source.Replay == "" {
		return errors.New("source needs a device or a replay file")
	}
	if cfg.Source.FPS < 0 || cfg.Source.ReplayFPS < 0 {
		return fmt.Errorf("fps and replay_fps must not be negative: %d, %d", cfg.Source.FPS, cfg.Source.ReplayFPS)
	}
	if _, _, err := ParseResolution(cfg.Capture.Resolution); err != nil {
		return err
	}
	if _, err := format.Parse(cfg.Capture.PixelFormat); err != nil {
		return err
	}
	if cfg.Capture.Frames < 0 || cfg.Capture.Retries < 0 || cfg.Capture.BackoffMS < 0 {
		return errors.New("frames, retries and backoff_ms must not be negative")
	}
	if q := cfg.Output.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100: %d", q)
	}
	if _, err := parse_level(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

func parse_level(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("unknown log level: %q", s)
	}
	return l, nil
}

// ImageFormat is the requested capture format.
func (c *Config) ImageFormat() (format.ImageFormat, error) {
	w, h, err := ParseResolution(c.Capture.Resolution)
	if err != nil {
		return format.ImageFormat{}, err
	}
	pf, err := format.Parse(c.Capture.PixelFormat)
	if err != nil {
		return format.ImageFormat{}, err
	}
	return format.NewImageFormat(w, h, pf), nil
}

func (c *Config) Level() slog.Level {
	l, _ := parse_level(c.LogLevel)
	return l
}

func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Capture.BackoffMS) * time.Millisecond
}

// Interval is the fixed replay frame interval, zero to honour the delays
// stored in the replayed file.
func (c *Config) Interval() time.Duration {
	if c.Source.ReplayFPS <= 0 || c.Source.Replay == "" {
		return 0
	}
	return time.Second / time.Duration(c.Source.ReplayFPS)
}
