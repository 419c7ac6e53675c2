//go:build linux

package main

import (
	"log/slog"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/handoff"
	"github.com/eyehal/eye/internal/config"
	"github.com/eyehal/eye/platform"
	"github.com/eyehal/eye/platform/v4l2"
)

func open_device(cfg *config.Config, want format.ImageFormat, logger *slog.Logger) (closing_stream, error) {
	dev, err := v4l2.Open(cfg.Source.Device, want, v4l2.WithFPS(uint32(cfg.Source.FPS)), v4l2.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s, err := dev.Stream(platform.WithBufferOptions(handoff.WithBackoff(cfg.Backoff())))
	if err != nil {
		dev.Close()
		return nil, err
	}
	// closing the stream closes the device
	return s.(closing_stream), nil
}
