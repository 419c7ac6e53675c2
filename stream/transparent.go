package stream

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/eyehal/eye/convert"
	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
)

var _ = fmt.Print

type mapping struct {
	src, dst format.PixelFormat
}

type transparentConfig struct {
	converter convert.Converter
	logger    *slog.Logger
}

// Option sets an optional parameter of a Transparent stream.
type Option func(*transparentConfig)

// WithConverter sets the converter used to emulate formats. Defaults to
// convert.New().
func WithConverter(c convert.Converter) Option {
	return func(cfg *transparentConfig) {
		cfg.converter = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *transparentConfig) {
		cfg.logger = l
	}
}

// TransparentStats counts what a Transparent stream did with the frames it
// pulled.
type TransparentStats struct {
	Passed    uint64
	Converted uint64
	Failed    uint64
}

// Transparent wraps a native stream and emulates a pixel format the device
// cannot produce by converting every frame.
type Transparent struct {
	stream  Stream
	format  format.ImageFormat
	mapping *mapping
	cfg     transparentConfig

	// conversion output, reused across calls and only touched by Next
	buf []byte

	passed, converted, failed atomic.Uint64
}

// NewTransparent wraps s. f is the format the caller believes s produces.
func NewTransparent(s Stream, f format.ImageFormat, opts ...Option) *Transparent {
	ans := &Transparent{stream: s, format: f}
	for _, o := range opts {
		o(&ans.cfg)
	}
	if ans.cfg.converter == nil {
		ans.cfg.converter = convert.New()
	}
	if ans.cfg.logger == nil {
		ans.cfg.logger = slog.Default()
	}
	return ans
}

// Map tells the stream that the wrapped stream yields src frames, because
// that is the closest format the device supports, and that every frame has
// to be converted to dst before it is returned.
func (self *Transparent) Map(src, dst format.PixelFormat) {
	self.mapping = &mapping{src: src, dst: dst}
	self.cfg.logger.Debug("stream: emulating pixel format", "native", src, "emulated", dst)
}

// Mapping returns the active source and destination formats.
func (self *Transparent) Mapping() (src, dst format.PixelFormat, ok bool) {
	if self.mapping == nil {
		return
	}
	return self.mapping.src, self.mapping.dst, true
}

// Format returns the format of the frames Next returns.
func (self *Transparent) Format() format.ImageFormat {
	if self.mapping == nil {
		return self.format
	}
	return format.NewImageFormat(self.format.Width, self.format.Height, self.mapping.dst)
}

func (self *Transparent) Stats() TransparentStats {
	return TransparentStats{Passed: self.passed.Load(), Converted: self.converted.Load(), Failed: self.failed.Load()}
}

func (self *Transparent) fail(err error) (*frame.Image, error) {
	self.failed.Add(1)
	self.cfg.logger.Debug("stream: format conversion failed", "error", err)
	return nil, &Error{Op: "convert", Err: err}
}

// Next pulls one frame from the wrapped stream. Without a mapping the frame
// is returned as is. With one, it is converted into a buffer owned by this
// stream. A failed conversion is reported as an *Error and leaves the
// wrapped stream usable.
func (self *Transparent) Next() (*frame.Image, error) {
	img, err := self.stream.Next()
	if err != nil {
		return nil, err
	}
	if self.mapping == nil {
		self.passed.Add(1)
		return img, nil
	}
	sf := img.Format()
	if sf.PixFmt != self.mapping.src {
		return self.fail(fmt.Errorf("%w: stream produced %s, expected %s", convert.ErrUnsupported, sf.PixFmt, self.mapping.src))
	}
	df := format.NewImageFormat(sf.Width, sf.Height, self.mapping.dst)
	sz, ok := df.Size()
	if !ok {
		return self.fail(fmt.Errorf("%w: cannot emulate %s which has no fixed size", convert.ErrUnsupported, df.PixFmt))
	}
	if cap(self.buf) < sz {
		self.buf = make([]byte, sz)
	}
	self.buf = self.buf[:sz]
	if err = self.cfg.converter.Convert(img.Bytes(), sf, self.buf, df); err != nil {
		return self.fail(err)
	}
	self.converted.Add(1)
	return frame.View(self.buf, df), nil
}

// Close closes the wrapped stream if it is an io.Closer.
func (self *Transparent) Close() error {
	if c, ok := self.stream.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
