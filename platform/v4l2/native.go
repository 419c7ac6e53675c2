// Package v4l2 captures from Video4Linux2 devices.
//
// The device is asked for the native pixel format closest to the one
// requested. Frames are decoded from that native layout into one of a few
// produced formats (Rgb(24), Gray(8), Depth(16), Jpeg or a raw Custom
// fourcc); when the produced format is not what the caller wanted, the
// stream returned by Device.Stream emulates it with a stream.Transparent.
package v4l2

import (
	"errors"
	"fmt"

	"github.com/eyehal/eye/convert"
	"github.com/eyehal/eye/format"
	"github.com/pion/mediadevices/pkg/frame"
)

var _ = fmt.Print

var ErrUnsupported = errors.New("v4l2: unsupported pixel format")

// FourCC is a V4L2 pixel format code.
type FourCC uint32

func MakeFourCC(s string) FourCC {
	var b [4]byte
	copy(b[:], s)
	return FourCC(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func (f FourCC) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

var (
	RGB24 = MakeFourCC("RGB3")
	GREY  = MakeFourCC("GREY")
	YUYV  = MakeFourCC("YUYV")
	MJPEG = MakeFourCC("MJPG")
	Z16   = MakeFourCC("Z16 ")
)

// Negotiation is the outcome of matching a requested pixel format against
// what the capture hardware can deliver.
type Negotiation struct {
	// Native is requested from the device
	Native FourCC
	// Produced is what frames are decoded into
	Produced format.PixelFormat
	// Wanted is what the caller asked for
	Wanted format.PixelFormat
}

// NeedsMapping reports whether Produced must be converted into Wanted.
func (n Negotiation) NeedsMapping() bool { return n.Produced != n.Wanted }

func (n Negotiation) String() string {
	if n.NeedsMapping() {
		return fmt.Sprintf("%s as %s emulating %s", n.Native, n.Produced, n.Wanted)
	}
	return fmt.Sprintf("%s as %s", n.Native, n.Produced)
}

// Negotiate picks the native format for want. Formats the hardware has no
// equivalent for are captured as YUYV, produced as Rgb(24) and left to a
// converter. A four character Custom format is requested verbatim and its
// bytes passed through.
func Negotiate(want format.PixelFormat) (Negotiation, error) {
	ans := Negotiation{Wanted: want}
	switch want {
	case format.Rgb(24):
		ans.Native, ans.Produced = RGB24, want
	case format.Gray(8):
		ans.Native, ans.Produced = GREY, want
	case format.Depth(16):
		ans.Native, ans.Produced = Z16, want
	case format.Jpeg():
		ans.Native, ans.Produced = MJPEG, want
	default:
		switch {
		case want.Kind() == format.KindCustom && len(want.Name()) == 4:
			ans.Native, ans.Produced = MakeFourCC(want.Name()), want
		case convert.Supported(format.Rgb(24), want):
			ans.Native, ans.Produced = YUYV, format.Rgb(24)
		default:
			return ans, fmt.Errorf("%w: %s", ErrUnsupported, want)
		}
	}
	return ans, nil
}

func decoder_for(native FourCC) (frame.Decoder, error) {
	switch native {
	case YUYV:
		return frame.NewDecoder(frame.FormatYUY2)
	case MJPEG:
		return frame.NewDecoder(frame.FormatMJPEG)
	case Z16:
		return frame.NewDecoder(frame.FormatZ16)
	}
	return nil, nil
}

// layout of a native frame as the device reports it
type native_layout struct {
	fourcc        FourCC
	width, height int
	stride        int
}

// the fixed-depth format native bytes already are, if any
func (l native_layout) fixed() (format.ImageFormat, bool) {
	var pf format.PixelFormat
	switch l.fourcc {
	case RGB24:
		pf = format.Rgb(24)
	case GREY:
		pf = format.Gray(8)
	default:
		return format.ImageFormat{}, false
	}
	f := format.NewImageFormat(uint32(l.width), uint32(l.height), pf)
	if l.stride > 0 {
		f = f.WithStride(l.stride)
	}
	return f, true
}

// native_frame is one buffer from the device, valid only inside the frame
// callback.
type native_frame struct {
	data    []byte
	layout  native_layout
	decoder frame.Decoder
	conv    *convert.Default
}

func grow(dst []byte, n int) []byte {
	if cap(dst) < n {
		return make([]byte, n)
	}
	return dst[:n]
}

func (self *native_frame) DecodeInto(dst []byte, pf format.PixelFormat) ([]byte, error) {
	l := self.layout
	// compressed or opaque formats are passed through untouched
	if (pf == format.Jpeg() && l.fourcc == MJPEG) || (pf.Kind() == format.KindCustom && MakeFourCC(pf.Name()) == l.fourcc) {
		dst = grow(dst, len(self.data))
		copy(dst, self.data)
		return dst, nil
	}
	df := format.NewImageFormat(uint32(l.width), uint32(l.height), pf)
	sz, ok := df.Size()
	if !ok {
		return dst, fmt.Errorf("%w: cannot decode %s into %s", ErrUnsupported, l.fourcc, pf)
	}
	dst = grow(dst, sz)
	if sf, ok := l.fixed(); ok {
		return dst, self.conv.Convert(self.data, sf, dst, df)
	}
	if self.decoder == nil {
		return dst, fmt.Errorf("%w: no decoder for %s", ErrUnsupported, l.fourcc)
	}
	img, release, err := self.decoder.Decode(self.data, l.width, l.height)
	if err != nil {
		return dst, fmt.Errorf("v4l2: decoding %s frame: %w", l.fourcc, err)
	}
	if release != nil {
		defer release()
	}
	return dst, self.conv.FromImage(img, dst, df)
}
