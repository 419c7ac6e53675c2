package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/eyehal/eye/internal/config"
	"github.com/eyehal/eye/record"
	"github.com/eyehal/eye/stream"
)

type summary struct {
	Frames    int
	Recovered int
	Elapsed   time.Duration
}

type sinks struct {
	pattern  string
	opts     []record.EncodeOption
	recorder *record.Recorder
	raw      *record.RawWriter
	raw_file *os.File
}

func open_sinks(cfg *config.Config) (*sinks, error) {
	ans := &sinks{pattern: cfg.Output.Pattern, opts: []record.EncodeOption{record.JPEGQuality(cfg.Output.JPEGQuality)}}
	if cfg.Output.Record != "" {
		ans.recorder = record.NewRecorder()
	}
	if cfg.Output.Raw != "" {
		f, err := os.Create(cfg.Output.Raw)
		if err != nil {
			return nil, err
		}
		if ans.raw, err = record.NewRawWriter(f); err != nil {
			f.Close()
			return nil, err
		}
		ans.raw_file = f
	}
	return ans, nil
}

func (self *sinks) close(cfg *config.Config) (err error) {
	if self.raw != nil {
		err = self.raw.Close()
		if cerr := self.raw_file.Close(); err == nil {
			err = cerr
		}
	}
	if self.recorder != nil && self.recorder.Len() > 0 {
		if rerr := self.recorder.Save(cfg.Output.Record); err == nil {
			err = rerr
		}
	}
	return
}

// capture pulls frames from s until the configured count or end of stream,
// writing each to the configured sinks. Recoverable stream errors are
// retried up to the configured number in a row.
func capture(s stream.Stream, cfg *config.Config, logger *slog.Logger) (ans summary, err error) {
	out, err := open_sinks(cfg)
	if err != nil {
		return
	}
	start := time.Now()
	last := start
	failures := 0
	defer func() {
		ans.Elapsed = time.Since(start)
		if cerr := out.close(cfg); err == nil {
			err = cerr
		}
	}()
	for cfg.Capture.Frames == 0 || ans.Frames < cfg.Capture.Frames {
		img, nerr := s.Next()
		if nerr != nil {
			if stream.IsEOS(nerr) {
				var de interface{ Unwrap() error }
				if errors.As(nerr, &de) {
					logger.Info("eyecap: stream ended", "cause", de.Unwrap())
				}
				return
			}
			var se *stream.Error
			if errors.As(nerr, &se) && failures < cfg.Capture.Retries {
				failures++
				ans.Recovered++
				logger.Warn("eyecap: recoverable error", "op", se.Op, "error", se.Err, "attempt", failures)
				continue
			}
			return ans, nerr
		}
		failures = 0
		now := time.Now()
		ans.Frames++
		logger.Debug("eyecap: frame", "number", ans.Frames, "format", img.Format().String(), "bytes", img.Len())
		if out.pattern != "" {
			name := fmt.Sprintf(out.pattern, ans.Frames)
			if err = record.Save(img, name, out.opts...); err != nil {
				return ans, fmt.Errorf("saving frame %d: %w", ans.Frames, err)
			}
		}
		if out.raw != nil {
			if err = out.raw.Write(img); err != nil {
				return ans, fmt.Errorf("dumping frame %d: %w", ans.Frames, err)
			}
		}
		if out.recorder != nil {
			// shown for as long as the camera took to deliver it
			if err = out.recorder.Add(img, now.Sub(last)); err != nil {
				return ans, fmt.Errorf("recording frame %d: %w", ans.Frames, err)
			}
		}
		last = now
	}
	return
}
