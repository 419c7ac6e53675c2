// Package record writes captured frames to files: single snapshots in the
// common image formats, animated PNG recordings and compressed raw dumps
// that can be replayed later.
package record

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var _ = fmt.Print

type fileSystem interface {
	Create(string) (io.WriteCloser, error)
	Open(string) (io.ReadCloser, error)
}

type localFS struct{}

func (localFS) Create(name string) (io.WriteCloser, error) { return os.Create(name) }
func (localFS) Open(name string) (io.ReadCloser, error)    { return os.Open(name) }

var fs fileSystem = localFS{}

type encodeConfig struct {
	jpegQuality         int
	gifNumColors        int
	pngCompressionLevel png.CompressionLevel
}

var defaultEncodeConfig = encodeConfig{
	jpegQuality:         95,
	gifNumColors:        256,
	pngCompressionLevel: png.DefaultCompression,
}

// EncodeOption sets an optional parameter for Encode and Save.
type EncodeOption func(*encodeConfig)

// JPEGQuality sets the output JPEG quality, from 1 to 100 inclusive, higher
// is better. Default is 95.
func JPEGQuality(quality int) EncodeOption {
	return func(c *encodeConfig) {
		c.jpegQuality = quality
	}
}

// GIFNumColors sets the maximum number of colors used in a GIF, from 1 to
// 256. Default is 256.
func GIFNumColors(numColors int) EncodeOption {
	return func(c *encodeConfig) {
		c.gifNumColors = numColors
	}
}

// PNGCompressionLevel sets the compression level of PNG output. Default is
// png.DefaultCompression.
func PNGCompressionLevel(level png.CompressionLevel) EncodeOption {
	return func(c *encodeConfig) {
		c.pngCompressionLevel = level
	}
}

// EncodeImage writes img to w in the specified format (JPEG, PNG, GIF, TIFF
// or BMP).
func EncodeImage(w io.Writer, img image.Image, f Format, opts ...EncodeOption) error {
	cfg := defaultEncodeConfig
	for _, option := range opts {
		option(&cfg)
	}

	switch f {
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: cfg.jpegQuality})

	case PNG, APNG:
		encoder := png.Encoder{CompressionLevel: cfg.pngCompressionLevel}
		return encoder.Encode(w, img)

	case GIF:
		return gif.Encode(w, img, &gif.Options{NumColors: cfg.gifNumColors})

	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})

	case BMP:
		return bmp.Encode(w, img)
	}

	return ErrUnsupportedFormat
}

// Encode writes a frame to w. JPEG frames written as JPEG are copied as is,
// everything else goes through the frame's image.Image view.
func Encode(w io.Writer, img *frame.Image, f Format, opts ...EncodeOption) error {
	if f == RAW {
		rw, err := NewRawWriter(w)
		if err != nil {
			return err
		}
		if err = rw.Write(img); err != nil {
			rw.Close()
			return err
		}
		return rw.Close()
	}
	if f == JPEG && img.Format().PixFmt.Kind() == format.KindJpeg && len(opts) == 0 {
		_, err := w.Write(img.Bytes())
		return err
	}
	i, err := img.ToImage()
	if err != nil {
		return err
	}
	return EncodeImage(w, i, f, opts...)
}

// Save writes a frame to filename, choosing the file format from its
// extension.
//
// Examples:
//
//	// Save the frame as PNG.
//	err := record.Save(img, "out.png")
//
//	// Save the frame as JPEG with quality 80.
//	err := record.Save(img, "out.jpg", record.JPEGQuality(80))
func Save(img *frame.Image, filename string, opts ...EncodeOption) (err error) {
	f, err := FormatFromFilename(filename)
	if err != nil {
		return err
	}
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	err = Encode(file, img, f, opts...)
	errc := file.Close()
	if err == nil {
		err = errc
	}
	return err
}
