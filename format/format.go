// Package format describes pixel layouts and image geometry.
package format

import (
	"errors"
	"fmt"
	"strings"
)

var _ = fmt.Print

// Kind identifies the variant of a PixelFormat.
type Kind int

const (
	KindCustom Kind = iota
	KindDepth
	KindGray
	KindBgr
	KindRgb
	KindJpeg
)

var kindNames = map[Kind]string{
	KindCustom: "Custom",
	KindDepth:  "Depth",
	KindGray:   "Gray",
	KindBgr:    "Bgr",
	KindRgb:    "Rgb",
	KindJpeg:   "Jpeg",
}

func (k Kind) String() string {
	return kindNames[k]
}

// PixelFormat describes the pixels of an image. Uncompressed variants carry
// the depth of a whole pixel in bits. Arbitrary application defined formats
// are wrapped by Custom.
//
// PixelFormat values are comparable, so == and map keys work structurally.
// Build them with the constructors below; the zero value is Custom("").
type PixelFormat struct {
	kind Kind
	bits uint32
	name string
}

// Custom wraps an application defined format such as a fourcc.
func Custom(name string) PixelFormat { return PixelFormat{kind: KindCustom, name: name} }

// Depth is a z buffer format.
func Depth(bits uint32) PixelFormat { return PixelFormat{kind: KindDepth, bits: bits} }

// Gray is a grayscale format.
func Gray(bits uint32) PixelFormat { return PixelFormat{kind: KindGray, bits: bits} }

// Bgr stores blue, green, red.
func Bgr(bits uint32) PixelFormat { return PixelFormat{kind: KindBgr, bits: bits} }

// Rgb stores red, green, blue.
func Rgb(bits uint32) PixelFormat { return PixelFormat{kind: KindRgb, bits: bits} }

// Jpeg is JPEG compression.
func Jpeg() PixelFormat { return PixelFormat{kind: KindJpeg} }

// Make builds a PixelFormat from its parts, as stored by serializers. bits
// is ignored for Custom and Jpeg, name for everything but Custom.
func Make(kind Kind, bits uint32, name string) (PixelFormat, error) {
	switch kind {
	case KindCustom:
		return Custom(name), nil
	case KindDepth:
		return Depth(bits), nil
	case KindGray:
		return Gray(bits), nil
	case KindBgr:
		return Bgr(bits), nil
	case KindRgb:
		return Rgb(bits), nil
	case KindJpeg:
		return Jpeg(), nil
	}
	return PixelFormat{}, fmt.Errorf("format: unknown pixel format kind %d", int(kind))
}

func (p PixelFormat) Kind() Kind { return p.kind }

// Name returns the name of a Custom format and "" for all others.
func (p PixelFormat) Name() string { return p.name }

// Bits returns the number of bits of a whole pixel. It reports false for
// compressed and custom formats, which have no fixed depth.
func (p PixelFormat) Bits() (uint32, bool) {
	switch p.kind {
	case KindDepth, KindGray, KindBgr, KindRgb:
		return p.bits, true
	case KindCustom, KindJpeg:
		return 0, false
	}
	return 0, false
}

// Channels returns the number of samples per pixel for fixed-depth formats
// and 0 otherwise.
func (p PixelFormat) Channels() int {
	switch p.kind {
	case KindDepth, KindGray:
		return 1
	case KindBgr, KindRgb:
		return 3
	}
	return 0
}

// BytesPerPixel returns bits/8 for fixed-depth formats.
func (p PixelFormat) BytesPerPixel() (int, bool) {
	bits, ok := p.Bits()
	if !ok {
		return 0, false
	}
	return int(bits / 8), true
}

func (p PixelFormat) String() string {
	switch p.kind {
	case KindCustom:
		return fmt.Sprintf("Custom(%s)", p.name)
	case KindJpeg:
		return "Jpeg"
	}
	return fmt.Sprintf("%s(%d)", p.kind, p.bits)
}

var ErrEmptyName = errors.New("format: empty pixel format name")

var shortNames = map[string]PixelFormat{
	"rgb24":   Rgb(24),
	"rgb48":   Rgb(48),
	"bgr24":   Bgr(24),
	"bgr48":   Bgr(48),
	"gray8":   Gray(8),
	"grey":    Gray(8),
	"gray16":  Gray(16),
	"depth16": Depth(16),
	"z16":     Depth(16),
	"jpeg":    Jpeg(),
	"mjpeg":   Jpeg(),
	"mjpg":    Jpeg(),
}

// Parse converts a short name such as "rgb24", "gray8" or "mjpeg" into a
// PixelFormat. Names it does not know become Custom formats in upper case,
// so fourccs like "yuyv" round trip as Custom(YUYV).
func Parse(s string) (PixelFormat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PixelFormat{}, ErrEmptyName
	}
	if p, ok := shortNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	return Custom(strings.ToUpper(s)), nil
}

// ImageFormat describes the layout of an image buffer.
type ImageFormat struct {
	// Width in pixels
	Width uint32
	// Height in pixels
	Height uint32
	// PixFmt is the pixel format
	PixFmt PixelFormat
	// Stride is the length of a pixel row in bytes, zero when unknown.
	Stride int
}

// NewImageFormat returns an image format. The stride is derived from the
// pixel depth when the format has one and left unknown otherwise; use
// WithStride to supply it for compressed formats or padded rows.
func NewImageFormat(width, height uint32, pixfmt PixelFormat) ImageFormat {
	ans := ImageFormat{Width: width, Height: height, PixFmt: pixfmt}
	if bits, ok := pixfmt.Bits(); ok {
		ans.Stride = int(width * (bits / 8))
	}
	return ans
}

// WithStride returns a copy of f with the row length overridden.
func (f ImageFormat) WithStride(stride int) ImageFormat {
	f.Stride = stride
	return f
}

// HasStride reports whether the row length is known.
func (f ImageFormat) HasStride() bool { return f.Stride > 0 }

// Size returns the number of bytes of an image in this format. It reports
// false when the stride is unknown.
func (f ImageFormat) Size() (int, bool) {
	if !f.HasStride() {
		return 0, false
	}
	return f.Stride * int(f.Height), true
}

// RowBytes returns the number of meaningful bytes in a row, excluding any
// padding. It reports false for formats without a fixed depth.
func (f ImageFormat) RowBytes() (int, bool) {
	bpp, ok := f.PixFmt.BytesPerPixel()
	if !ok {
		return 0, false
	}
	return bpp * int(f.Width), true
}

func (f ImageFormat) String() string {
	if f.HasStride() {
		return fmt.Sprintf("%dx%d %s stride=%d", f.Width, f.Height, f.PixFmt, f.Stride)
	}
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.PixFmt)
}
