package record

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"time"

	"github.com/eyehal/eye/frame"
	"github.com/kettek/apng"
)

var _ = fmt.Print

var ErrNoFrames = errors.New("record: no frames recorded")
var ErrFrameSize = errors.New("record: frame size differs from the first recorded frame")

type recorded_frame struct {
	img   *frame.Image
	delay time.Duration
}

// Recorder accumulates frames into an animated PNG. Frames are copied on
// Add, so borrowed frames from a stream can be passed directly.
type Recorder struct {
	frames    []recorded_frame
	LoopCount uint // 0 means loop forever
	// Delay used for frames added with a zero delay
	DefaultDelay time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{DefaultDelay: time.Second / 30}
}

func (self *Recorder) Len() int { return len(self.frames) }

// Add records a copy of img shown for delay.
func (self *Recorder) Add(img *frame.Image, delay time.Duration) error {
	if len(self.frames) > 0 {
		f, n := self.frames[0].img.Format(), img.Format()
		if f.Width != n.Width || f.Height != n.Height {
			return fmt.Errorf("%w: %dx%d != %dx%d", ErrFrameSize, n.Width, n.Height, f.Width, f.Height)
		}
	}
	if _, err := img.ToImage(); err != nil {
		return err
	}
	if delay <= 0 {
		delay = self.DefaultDelay
	}
	self.frames = append(self.frames, recorded_frame{img: img.Clone(), delay: delay})
	return nil
}

// converts a time.Duration to a numerator and denominator of type uint16.
// It finds the best rational approximation of the duration in seconds.
func as_fraction(d time.Duration) (num, den uint16) {
	if d <= 0 {
		return 0, 1
	}
	val := d.Seconds()

	// continued fractions, keeping the convergent closest to val whose terms
	// fit in uint16
	best_num, best_den := uint16(0), uint16(1)
	best_error := math.Abs(val)

	var h, k [3]int64
	h[0], k[0] = 0, 1
	h[1], k[1] = 1, 0
	f := val

	for i := 2; i < 100; i++ {
		a := int64(f)
		h[2] = a*h[1] + h[0]
		k[2] = a*k[1] + k[0]
		if h[2] > math.MaxUint16 || k[2] > math.MaxUint16 {
			break
		}
		n, d := uint16(h[2]), uint16(k[2])
		if e := math.Abs(val - float64(n)/float64(d)); e < best_error {
			best_error, best_num, best_den = e, n, d
		}
		if f-float64(a) == 0.0 {
			break
		}
		f = 1.0 / (f - float64(a))
		h[0], h[1] = h[1], h[2]
		k[0], k[1] = k[1], k[2]
	}
	return best_num, best_den
}

// Every recorded frame is a full snapshot, so frames replace the canvas and
// nothing needs disposing.
func (self *Recorder) as_apng() (ans apng.APNG, err error) {
	ans.LoopCount = self.LoopCount
	for _, f := range self.frames {
		var img image.Image
		if img, err = f.img.ToImage(); err != nil {
			return
		}
		d := apng.Frame{Image: img, DisposeOp: apng.DISPOSE_OP_NONE, BlendOp: apng.BLEND_OP_SOURCE}
		d.DelayNumerator, d.DelayDenominator = as_fraction(f.delay)
		ans.Frames = append(ans.Frames, d)
	}
	return
}

// Encode writes the recording. A single frame is written as a plain PNG.
func (self *Recorder) Encode(w io.Writer) error {
	switch len(self.frames) {
	case 0:
		return ErrNoFrames
	case 1:
		img, err := self.frames[0].img.ToImage()
		if err != nil {
			return err
		}
		return png.Encode(w, img)
	}
	a, err := self.as_apng()
	if err != nil {
		return err
	}
	return apng.Encode(w, a)
}

// Save writes the recording to filename.
func (self *Recorder) Save(filename string) (err error) {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	err = self.Encode(file)
	errc := file.Close()
	if err == nil {
		err = errc
	}
	return err
}
