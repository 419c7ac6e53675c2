// Package convert converts frames between pixel formats.
package convert

import (
	"errors"
	"fmt"

	"github.com/eyehal/eye/format"
)

var _ = fmt.Print

var (
	// ErrUnsupported means there is no conversion between the two formats.
	ErrUnsupported = errors.New("convert: unsupported conversion")
	// ErrSizeMismatch means the geometry or buffer lengths do not agree.
	ErrSizeMismatch = errors.New("convert: size mismatch")
)

// Converter writes the pixels of src, laid out as srcFormat, into dst laid
// out as dstFormat. dst must already be large enough for dstFormat.
type Converter interface {
	Convert(src []byte, srcFormat format.ImageFormat, dst []byte, dstFormat format.ImageFormat) error
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(src []byte, srcFormat format.ImageFormat, dst []byte, dstFormat format.ImageFormat) error

func (f ConverterFunc) Convert(src []byte, srcFormat format.ImageFormat, dst []byte, dstFormat format.ImageFormat) error {
	return f(src, srcFormat, dst, dstFormat)
}

type config struct {
	num_procs int
}

// Option sets an optional parameter of the default converter.
type Option func(*config)

// Parallelism sets how many goroutines convert rows concurrently. Zero, the
// default, uses GOMAXPROCS.
func Parallelism(n int) Option {
	return func(c *config) {
		c.num_procs = max(0, n)
	}
}

// Default converts between fixed-depth gray, depth, RGB and BGR formats with
// 8 or 16 bits per sample, and decodes JPEG into any of them.
type Default struct {
	cfg config
}

func New(opts ...Option) *Default {
	ans := &Default{}
	for _, o := range opts {
		o(&ans.cfg)
	}
	return ans
}

// Supported reports whether Default can convert from src to dst.
func Supported(src, dst format.PixelFormat) bool {
	if _, ok := layout_of(dst); !ok {
		return false
	}
	if src.Kind() == format.KindJpeg {
		return true
	}
	_, ok := layout_of(src)
	return ok
}

// Convert implements Converter.
func (c *Default) Convert(src []byte, sf format.ImageFormat, dst []byte, df format.ImageFormat) error {
	if sf.Width != df.Width || sf.Height != df.Height {
		return fmt.Errorf("%w: %dx%d cannot become %dx%d", ErrSizeMismatch, sf.Width, sf.Height, df.Width, df.Height)
	}
	if !Supported(sf.PixFmt, df.PixFmt) {
		return fmt.Errorf("%w: %s to %s", ErrUnsupported, sf.PixFmt, df.PixFmt)
	}
	df = with_derived_stride(df)
	if err := check_len(dst, df, "destination"); err != nil {
		return err
	}
	if sf.PixFmt.Kind() == format.KindJpeg {
		return c.decode_jpeg(src, dst, df)
	}
	sf = with_derived_stride(sf)
	if err := check_len(src, sf, "source"); err != nil {
		return err
	}
	if sf.PixFmt == df.PixFmt {
		return c.copy_rows(src, sf, dst, df)
	}
	return c.convert_rows(src, sf, dst, df)
}

func with_derived_stride(f format.ImageFormat) format.ImageFormat {
	if !f.HasStride() {
		f.Stride = format.NewImageFormat(f.Width, f.Height, f.PixFmt).Stride
	}
	return f
}

func check_len(b []byte, f format.ImageFormat, which string) error {
	row, _ := f.RowBytes()
	if f.Stride < row {
		return fmt.Errorf("%w: %s stride %d is shorter than a row of %d bytes", ErrSizeMismatch, which, f.Stride, row)
	}
	if f.Height == 0 {
		return nil
	}
	if need := f.Stride*(int(f.Height)-1) + row; len(b) < need {
		return fmt.Errorf("%w: %s buffer of %d bytes is too small for %s, need %d", ErrSizeMismatch, which, len(b), f, need)
	}
	return nil
}
