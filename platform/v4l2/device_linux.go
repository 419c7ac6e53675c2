//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eyehal/eye/convert"
	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/platform"
	"github.com/eyehal/eye/stream"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/vladimirvivien/go4vl/device"
	vl "github.com/vladimirvivien/go4vl/v4l2"
)

var _ = fmt.Print

const DefaultDevice = "/dev/video0"
const DefaultFPS = 30

var ErrStarted = errors.New("v4l2: capture already started")

// ErrDisconnected ends the stream when the device stops delivering frames
// without being closed.
var ErrDisconnected = errors.New("v4l2: device stopped delivering frames")

type config struct {
	fps    uint32
	logger *slog.Logger
}

type Option func(*config)

func WithFPS(fps uint32) Option {
	return func(c *config) {
		c.fps = fps
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Device is a platform.Backend capturing from a V4L2 device node.
type Device struct {
	path    string
	dev     *device.Device
	neg     Negotiation
	layout  native_layout
	format  format.ImageFormat
	decoder frame.Decoder
	conv    *convert.Default
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Open opens the device at path and configures it for the native format
// closest to want. The driver may adjust the size, Format reports what was
// actually negotiated.
func Open(path string, want format.ImageFormat, opts ...Option) (*Device, error) {
	cfg := config{fps: DefaultFPS}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	neg, err := Negotiate(want.PixFmt)
	if err != nil {
		return nil, err
	}
	dev, err := device.Open(path,
		device.WithFPS(cfg.fps),
		device.WithPixFormat(vl.PixFormat{
			Width: want.Width, Height: want.Height, PixelFormat: vl.FourCCType(neg.Native), Field: vl.FieldNone,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("v4l2: opening %s: %w", path, err)
	}
	pix, err := dev.GetPixFormat()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("v4l2: querying format of %s: %w", path, err)
	}
	if FourCC(pix.PixelFormat) != neg.Native {
		dev.Close()
		return nil, fmt.Errorf("%w: %s delivers %s instead of %s", ErrUnsupported, path, FourCC(pix.PixelFormat), neg.Native)
	}
	ans := &Device{
		path: path, dev: dev, neg: neg, conv: convert.New(),
		layout: native_layout{fourcc: neg.Native, width: int(pix.Width), height: int(pix.Height), stride: int(pix.BytesPerLine)},
		logger: cfg.logger.With("device", path),
	}
	ans.format = format.NewImageFormat(pix.Width, pix.Height, neg.Produced)
	if !ans.format.HasStride() && neg.Produced.Kind() == format.KindCustom && pix.BytesPerLine > 0 {
		ans.format = ans.format.WithStride(int(pix.BytesPerLine))
	}
	if ans.decoder, err = decoder_for(neg.Native); err != nil {
		dev.Close()
		return nil, fmt.Errorf("v4l2: creating %s decoder: %w", neg.Native, err)
	}
	ans.logger.Info("v4l2: device opened", "negotiated", neg.String(), "format", ans.format.String(), "fps", cfg.fps)
	return ans, nil
}

// Format is what the platform stream over this device produces.
func (self *Device) Format() format.ImageFormat { return self.format }

func (self *Device) Negotiation() Negotiation { return self.neg }

// Stream starts capture and returns a stream yielding the originally
// requested pixel format, emulated by conversion when the device cannot
// produce it.
func (self *Device) Stream(opts ...platform.Option) (stream.Stream, error) {
	ps, err := platform.New(self, self.format, append([]platform.Option{platform.WithLogger(self.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if !self.neg.NeedsMapping() {
		return ps, nil
	}
	t := stream.NewTransparent(ps, ps.Format(), stream.WithLogger(self.logger))
	t.Map(self.neg.Produced, self.neg.Wanted)
	return t, nil
}

func (self *Device) StartStream(cb platform.FrameFunc) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.started {
		return ErrStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := self.dev.Start(ctx); err != nil {
		cancel()
		return err
	}
	self.started, self.cancel, self.done = true, cancel, make(chan struct{})
	go self.run(ctx, cb)
	return nil
}

func (self *Device) run(ctx context.Context, cb platform.FrameFunc) {
	defer close(self.done)
	nf := native_frame{layout: self.layout, decoder: self.decoder, conv: self.conv}
	for data := range self.dev.GetOutput() {
		if ctx.Err() != nil {
			return
		}
		nf.data = data
		cb(&nf)
	}
	if ctx.Err() != nil {
		return
	}
	self.logger.Warn("v4l2: device output closed")
	cb(platform.EndOfStream(ErrDisconnected))
	<-ctx.Done()
}

// Close stops capture and releases the device.
func (self *Device) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	var err error
	if self.started {
		self.cancel()
		err = self.dev.Stop()
		<-self.done
		self.started = false
	}
	if self.dev != nil {
		if cerr := self.dev.Close(); err == nil {
			err = cerr
		}
		self.dev = nil
	}
	self.logger.Info("v4l2: device closed")
	return err
}
