package record

import (
	"errors"
	"path/filepath"
	"strings"
)

// Format is an output file format for captured frames.
type Format int

const (
	UNKNOWN Format = iota
	JPEG
	PNG
	GIF
	TIFF
	BMP
	APNG
	RAW
)

var FormatExts = map[string]Format{
	"jpg":  JPEG,
	"jpeg": JPEG,
	"png":  PNG,
	"gif":  GIF,
	"tif":  TIFF,
	"tiff": TIFF,
	"bmp":  BMP,
	"apng": APNG,
	"zst":  RAW,
	"raw":  RAW,
}

var formatNames = map[Format]string{
	JPEG: "JPEG",
	PNG:  "PNG",
	GIF:  "GIF",
	TIFF: "TIFF",
	BMP:  "BMP",
	APNG: "APNG",
	RAW:  "RAW",
}

func (f Format) String() string {
	return formatNames[f]
}

// ErrUnsupportedFormat means the given file format is not supported.
var ErrUnsupportedFormat = errors.New("record: unsupported file format")

// FormatFromExtension parses a format from a filename extension such as
// "jpg", ".png" or "zst".
func FormatFromExtension(ext string) (Format, error) {
	if f, ok := FormatExts[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return f, nil
	}
	return UNKNOWN, ErrUnsupportedFormat
}

func FormatFromFilename(filename string) (Format, error) {
	return FormatFromExtension(filepath.Ext(filename))
}
