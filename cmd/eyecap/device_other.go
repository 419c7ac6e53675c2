//go:build !linux

package main

import (
	"errors"
	"log/slog"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/internal/config"
)

func open_device(cfg *config.Config, want format.ImageFormat, logger *slog.Logger) (closing_stream, error) {
	return nil, errors.New("capture devices are only supported on Linux, use -replay")
}
