// Package platform turns capture backends that deliver frames through a
// callback into pull based streams.
//
// A Backend calls the function passed to StartStream once per captured
// frame, from a goroutine of its own. The callback decodes the frame into a
// handoff.Buffer and returns promptly, dropping the frame if the previous
// one has not been pulled yet. Stream.Next waits on that buffer.
package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
	"github.com/eyehal/eye/handoff"
	"github.com/google/uuid"
)

var _ = fmt.Print

// NativeFrame is a frame as delivered by a backend. It is only valid for the
// duration of the callback it was passed to.
type NativeFrame interface {
	// DecodeInto decodes the frame into dst as pf, growing dst if needed,
	// and returns the result.
	DecodeInto(dst []byte, pf format.PixelFormat) ([]byte, error)
}

// FrameFunc receives captured frames. Backends may call it from any
// goroutine but never concurrently with itself, and must not reuse the
// frame's memory until it returns.
type FrameFunc func(NativeFrame)

type Backend interface {
	StartStream(cb FrameFunc) error
	// Close stops capture. The callback is not invoked after Close returns.
	Close() error
}

// NativeFrameFunc adapts a function to the NativeFrame interface.
type NativeFrameFunc func(dst []byte, pf format.PixelFormat) ([]byte, error)

func (f NativeFrameFunc) DecodeInto(dst []byte, pf format.PixelFormat) ([]byte, error) {
	return f(dst, pf)
}

type end_of_stream struct{ err error }

func (e end_of_stream) DecodeInto(dst []byte, pf format.PixelFormat) ([]byte, error) {
	return dst, e.err
}

// EndOfStream returns the frame a backend passes to the callback, once, when
// it has no more frames to deliver. The stream ends with err as its cause
// after the consumer has pulled any frame still waiting.
func EndOfStream(err error) NativeFrame { return end_of_stream{err: err} }

type config struct {
	buffer_opts []handoff.Option
	logger      *slog.Logger
}

type Option func(*config)

// WithBufferOptions passes options to the handoff buffer.
func WithBufferOptions(opts ...handoff.Option) Option {
	return func(c *config) {
		c.buffer_opts = append(c.buffer_opts, opts...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Stream is the pull side of a callback driven backend.
type Stream struct {
	id      string
	backend Backend
	buffer  *handoff.Buffer
	format  format.ImageFormat
	logger  *slog.Logger

	// frame storage owned by the stream between Next calls
	data []byte

	close_once sync.Once
	close_err  error
}

// New starts b and returns a stream over it. f is the negotiated format: its
// pixel format is what the decode step produces, which may differ from what
// was originally requested.
func New(b Backend, f format.ImageFormat, opts ...Option) (*Stream, error) {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	id := uuid.New().String()
	logger := cfg.logger.With("stream_id", id)
	ans := &Stream{
		id:      id,
		backend: b,
		buffer:  handoff.New(append([]handoff.Option{handoff.WithLogger(logger)}, cfg.buffer_opts...)...),
		format:  f,
		logger:  logger,
	}
	if err := b.StartStream(ans.on_frame); err != nil {
		return nil, fmt.Errorf("platform: starting capture: %w", err)
	}
	logger.Info("platform: stream started", "format", f.String())
	return ans, nil
}

func (s *Stream) on_frame(nf NativeFrame) {
	if e, ok := nf.(end_of_stream); ok {
		s.buffer.Fail(e.err)
		return
	}
	s.buffer.Produce(func(dst []byte) ([]byte, error) {
		return nf.DecodeInto(dst, s.format.PixFmt)
	})
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Format() format.ImageFormat { return s.format }

func (s *Stream) Stats() handoff.Stats { return s.buffer.Stats() }

// Next blocks until the backend has delivered a frame. The returned image is
// a view over storage the stream reuses on the following call.
func (s *Stream) Next() (*frame.Image, error) {
	data, err := s.buffer.Consume(s.data)
	s.data = data
	if err != nil {
		return nil, err
	}
	return frame.View(s.data, s.format), nil
}

// Close stops the backend and ends the stream. Pending and future Next
// calls report end of stream.
func (s *Stream) Close() error {
	s.close_once.Do(func() {
		s.close_err = s.backend.Close()
		s.buffer.Close()
		st := s.buffer.Stats()
		s.logger.Info("platform: stream stopped",
			"delivered", st.Delivered,
			"dropped", st.Dropped,
			"drop_rate", st.DropRate(),
		)
	})
	return s.close_err
}
