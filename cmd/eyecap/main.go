package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eyehal/eye"
	"github.com/eyehal/eye/convert"
	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/handoff"
	"github.com/eyehal/eye/internal/config"
	"github.com/eyehal/eye/platform"
	"github.com/eyehal/eye/platform/replay"
	"github.com/eyehal/eye/stream"
)

var _ = fmt.Print

// closing_stream is a stream with its underlying capture attached
type closing_stream interface {
	stream.Stream
	Close() error
}

// emulate wraps s so it yields want when it produces a different format the
// default converter can turn into want.
func emulate(s closing_stream, produced format.ImageFormat, want format.PixelFormat, logger *slog.Logger) closing_stream {
	if produced.PixFmt == want {
		return s
	}
	if !convert.Supported(produced.PixFmt, want) {
		logger.Warn("eyecap: cannot emulate format, capturing as produced", "produced", produced.PixFmt.String(), "wanted", want.String())
		return s
	}
	t := stream.NewTransparent(s, produced, stream.WithLogger(logger))
	t.Map(produced.PixFmt, want)
	logger.Info("eyecap: emulating format", "produced", produced.PixFmt.String(), "wanted", want.String())
	return t
}

func open_replay(cfg *config.Config, want format.ImageFormat, logger *slog.Logger) (closing_stream, error) {
	seq, err := replay.Open(cfg.Source.Replay, time.Second/30)
	if err != nil {
		return nil, err
	}
	b := replay.New(seq,
		replay.WithLoop(cfg.Source.Loop),
		replay.WithInterval(cfg.Interval()),
		replay.WithJPEGQuality(cfg.Output.JPEGQuality),
		replay.WithLogger(logger),
	)
	ps, err := b.Stream(want.PixFmt, platform.WithBufferOptions(handoff.WithBackoff(cfg.Backoff())))
	if err != nil {
		return nil, err
	}
	return emulate(ps, ps.Format(), want.PixFmt, logger), nil
}

func main() {
	config_path := flag.String("config", "", "YAML or JSON config file")
	device := flag.String("device", "", "V4L2 device to capture from")
	replay_path := flag.String("replay", "", "image, animation or raw dump to play back instead of a device")
	loop := flag.Bool("loop", false, "replay forever")
	replay_fps := flag.Int("replay-fps", 0, "fixed replay frame rate, 0 keeps the delays stored in the file")
	resolution := flag.String("resolution", "", "capture size, WIDTHxHEIGHT")
	pixfmt := flag.String("format", "", "pixel format: rgb24, bgr24, rgb48, gray8, gray16, depth16, mjpeg or a fourcc")
	frames := flag.Int("frames", -1, "frames to capture, 0 until end of stream")
	pattern := flag.String("output", "", "per frame output files, e.g. frame-%03d.png, empty string to skip")
	record_path := flag.String("record", "", "also record all frames to this animated PNG")
	raw_path := flag.String("raw", "", "also dump all frames to this zstd raw file")
	debug := flag.Bool("debug", false, "enable debug logging")
	show_version := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *show_version {
		fmt.Printf("eyecap %s\n", eye.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*config_path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Source.Device, cfg.Source.Replay = *device, ""
		case "replay":
			cfg.Source.Replay = *replay_path
		case "loop":
			cfg.Source.Loop = *loop
		case "replay-fps":
			cfg.Source.ReplayFPS = *replay_fps
		case "resolution":
			cfg.Capture.Resolution = *resolution
		case "format":
			cfg.Capture.PixelFormat = *pixfmt
		case "frames":
			cfg.Capture.Frames = *frames
		case "output":
			cfg.Output.Pattern = *pattern
		case "record":
			cfg.Output.Record = *record_path
		case "raw":
			cfg.Output.Raw = *raw_path
		case "debug":
			if *debug {
				cfg.LogLevel = "debug"
			}
		}
	})
	if err = config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	want, _ := cfg.ImageFormat()
	var s closing_stream
	if cfg.Source.Replay != "" {
		s, err = open_replay(cfg, want, logger)
	} else {
		s, err = open_device(cfg, want, logger)
	}
	if err != nil {
		logger.Error("eyecap: failed to open source", "error", err)
		os.Exit(1)
	}

	// closing the stream wakes a blocked Next with end of stream
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sig; ok {
			logger.Info("eyecap: interrupted, stopping")
			s.Close()
		}
	}()

	summary, err := capture(s, cfg, logger)
	signal.Stop(sig)
	close(sig)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	logger.Info("eyecap: done", "frames", summary.Frames, "recoverable_errors", summary.Recovered, "elapsed", summary.Elapsed)
	if err != nil {
		logger.Error("eyecap: capture failed", "error", err)
		os.Exit(1)
	}
}
