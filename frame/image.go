// Package frame holds captured pixel data tagged with its format.
//
// An Image either owns its bytes or is a read-only view over memory owned
// by someone else, typically the stream that produced it. Mutating a view
// first promotes it to an owned copy, so the external bytes are never
// written and the copy happens at most once.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/eyehal/eye/format"
)

var _ = fmt.Print

// ErrUnsupported means the image cannot be represented as an image.Image.
var ErrUnsupported = errors.New("frame: unsupported pixel format")

type Image struct {
	data   []byte
	owned  bool
	format format.ImageFormat
}

// View wraps data without copying it. The caller keeps ownership of data and
// must not change it while the view is in use.
func View(data []byte, f format.ImageFormat) *Image {
	return &Image{data: data, format: f}
}

// FromBytes copies data into a new owned image.
func FromBytes(data []byte, f format.ImageFormat) *Image {
	return &Image{data: bytes.Clone(data), owned: true, format: f}
}

// New allocates a zeroed owned image. Formats with an unknown stride get an
// empty buffer.
func New(f format.ImageFormat) *Image {
	sz, _ := f.Size()
	return &Image{data: make([]byte, sz), owned: true, format: f}
}

func (self *Image) Format() format.ImageFormat { return self.format }

// Bytes returns the pixel data. It must not be modified, use Mut for that.
func (self *Image) Bytes() []byte { return self.data }

func (self *Image) Len() int { return len(self.data) }

// Owned reports whether the image owns its bytes.
func (self *Image) Owned() bool { return self.owned }

// Mut returns a writable slice of the pixel data, copying borrowed data into
// an owned buffer first.
func (self *Image) Mut() []byte {
	if !self.owned {
		self.data = bytes.Clone(self.data)
		if self.data == nil {
			self.data = []byte{}
		}
		self.owned = true
	}
	return self.data
}

// Resize makes the image own exactly n bytes, keeping existing content where
// it fits. Capacity is reused when possible.
func (self *Image) Resize(n int) []byte {
	d := self.Mut()
	if cap(d) >= n {
		self.data = d[:n]
	} else {
		self.data = append(d[:cap(d)], make([]byte, n-cap(d))...)[:n]
	}
	return self.data
}

// Clone returns an owned deep copy, safe to keep after the producing stream
// has moved on to the next frame.
func (self *Image) Clone() *Image {
	return FromBytes(self.data, self.format)
}

func (self *Image) String() string {
	kind := "view"
	if self.owned {
		kind = "owned"
	}
	return fmt.Sprintf("Image{%s %s len=%d}", self.format, kind, len(self.data))
}

// read_only hides the setters of an image sharing a view's bytes
type read_only struct{ image.Image }

// ToImage returns the frame as an image.Image. Uncompressed formats share
// the frame's bytes, JPEG frames are decoded. The result for a view is read
// only, it cannot be type asserted back to a settable image.
func (self *Image) ToImage() (image.Image, error) {
	img, err := self.to_image()
	if err != nil || self.owned || self.format.PixFmt.Kind() == format.KindJpeg {
		return img, err
	}
	return read_only{img}, nil
}

func (self *Image) to_image() (image.Image, error) {
	f := self.format
	w, h := int(f.Width), int(f.Height)
	pf := f.PixFmt
	bits, _ := pf.Bits()
	if pf.Kind() == format.KindJpeg {
		return jpeg.Decode(bytes.NewReader(self.data))
	}
	if !f.HasStride() {
		return nil, fmt.Errorf("%w: %s has no stride", ErrUnsupported, f)
	}
	need := 0
	if h > 0 {
		need = f.Stride*(h-1) + w*int(bits/8)
	}
	if len(self.data) < need {
		return nil, fmt.Errorf("frame data too short for %s: %d < %d", f, len(self.data), need)
	}
	rect := image.Rect(0, 0, w, h)
	switch {
	case pf == format.Rgb(24):
		return RGBFromPixels(self.data, f.Stride, w, h)
	case pf == format.Bgr(24):
		return BGRFromPixels(self.data, f.Stride, w, h)
	case pf == format.Gray(8) || pf == format.Depth(8):
		return &image.Gray{Pix: self.data, Stride: f.Stride, Rect: rect}, nil
	case pf == format.Gray(16) || pf == format.Depth(16):
		return &image.Gray16{Pix: self.data, Stride: f.Stride, Rect: rect}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, pf)
}
