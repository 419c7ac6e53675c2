package replay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/eyehal/eye/convert"
	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/platform"
)

var _ = fmt.Print

var ErrStarted = errors.New("replay: stream already started")

// ErrExhausted is the cause reported after the last frame of a
// sequence that does not loop. It ends the platform stream.
var ErrExhausted = errors.New("replay: sequence exhausted")

type config struct {
	loop         bool
	interval     time.Duration
	logger       *slog.Logger
	jpeg_quality int
}

type Option func(*config)

// WithLoop replays the sequence forever, ignoring its loop count.
func WithLoop(loop bool) Option {
	return func(c *config) {
		c.loop = loop
	}
}

// WithInterval overrides the per frame delays with a fixed frame interval,
// as a camera running at 1/d frames per second would.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		c.interval = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithJPEGQuality sets the quality used when the negotiated format is Jpeg.
func WithJPEGQuality(q int) Option {
	return func(c *config) {
		c.jpeg_quality = q
	}
}

// Backend is a platform.Backend playing a Sequence.
type Backend struct {
	seq  *Sequence
	cfg  config
	conv *convert.Default

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

func New(seq *Sequence, opts ...Option) *Backend {
	cfg := config{jpeg_quality: 90}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Backend{seq: seq, cfg: cfg, conv: convert.New()}
}

// Format returns the format frames will be decoded into when pf is
// requested. Formats the virtual camera cannot produce fall back to Rgb(24).
func (self *Backend) Format(pf format.PixelFormat) format.ImageFormat {
	if pf.Kind() != format.KindJpeg && !convert.Supported(format.Rgb(24), pf) {
		pf = format.Rgb(24)
	}
	return format.NewImageFormat(uint32(self.seq.Width), uint32(self.seq.Height), pf)
}

// Stream starts playback and returns the pull side, negotiating pf as
// Format does.
func (self *Backend) Stream(pf format.PixelFormat, opts ...platform.Option) (*platform.Stream, error) {
	return platform.New(self, self.Format(pf), append([]platform.Option{platform.WithLogger(self.cfg.logger)}, opts...)...)
}

func (self *Backend) StartStream(cb platform.FrameFunc) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.started {
		return ErrStarted
	}
	if len(self.seq.Frames) == 0 {
		return ErrEmpty
	}
	self.started = true
	self.stop, self.done = make(chan struct{}), make(chan struct{})
	go self.run(cb)
	return nil
}

func (self *Backend) delay(f Frame) time.Duration {
	switch {
	case self.cfg.interval > 0:
		return self.cfg.interval
	case f.Delay > 0:
		return f.Delay
	}
	return time.Second / 30
}

// wait returns false if the backend was closed while waiting.
func (self *Backend) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-self.stop:
		return false
	case <-t.C:
		return true
	}
}

func (self *Backend) run(cb platform.FrameFunc) {
	defer close(self.done)
	logger := self.cfg.logger
	var plays uint
	for {
		for _, f := range self.seq.Frames {
			select {
			case <-self.stop:
				return
			default:
			}
			cb(&native_frame{img: f.Image, conv: self.conv, quality: self.cfg.jpeg_quality})
			if !self.wait(self.delay(f)) {
				return
			}
		}
		plays++
		if self.cfg.loop || self.seq.LoopCount == 0 || plays < self.seq.LoopCount {
			continue
		}
		break
	}
	logger.Debug("replay: sequence exhausted", "frames", len(self.seq.Frames), "plays", plays)
	cb(platform.EndOfStream(ErrExhausted))
	<-self.stop
}

// Close stops playback. The callback is not invoked after it returns.
func (self *Backend) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.started || self.stop == nil {
		return nil
	}
	close(self.stop)
	<-self.done
	self.stop = nil
	return nil
}

type native_frame struct {
	img     image.Image
	conv    *convert.Default
	quality int
}

func (self *native_frame) DecodeInto(dst []byte, pf format.PixelFormat) ([]byte, error) {
	b := self.img.Bounds()
	if pf.Kind() == format.KindJpeg {
		buf := bytes.NewBuffer(dst[:0])
		if err := jpeg.Encode(buf, self.img, &jpeg.Options{Quality: self.quality}); err != nil {
			return dst, err
		}
		return buf.Bytes(), nil
	}
	f := format.NewImageFormat(uint32(b.Dx()), uint32(b.Dy()), pf)
	sz, ok := f.Size()
	if !ok {
		return dst, fmt.Errorf("%w: cannot render %s", convert.ErrUnsupported, pf)
	}
	if cap(dst) < sz {
		dst = make([]byte, sz)
	}
	dst = dst[:sz]
	return dst, self.conv.FromImage(self.img, dst, f)
}
