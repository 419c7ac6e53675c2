package record

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
	"github.com/klauspost/compress/zstd"
)

var _ = fmt.Print

// raw dumps are a zstd compressed stream of this magic followed by frames,
// each a big endian header and the pixel bytes
const raw_magic = "EYERAW1\n"

// sanity limit on a single frame, well above any real capture size
const max_raw_frame = 1 << 30

var ErrNotRaw = errors.New("record: not a raw frame dump")

type raw_header struct {
	Width, Height uint32
	Kind          uint8
	Bits          uint32
	Stride        uint32
	NameLen       uint16
	DataLen       uint32
}

// RawWriter appends frames to a compressed raw dump.
type RawWriter struct {
	enc     *zstd.Encoder
	started bool
	count   int
}

func NewRawWriter(w io.Writer) (*RawWriter, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &RawWriter{enc: enc}, nil
}

func (self *RawWriter) Write(img *frame.Image) error {
	if !self.started {
		if _, err := io.WriteString(self.enc, raw_magic); err != nil {
			return err
		}
		self.started = true
	}
	f := img.Format()
	bits, _ := f.PixFmt.Bits()
	name := f.PixFmt.Name()
	h := raw_header{
		Width: f.Width, Height: f.Height, Kind: uint8(f.PixFmt.Kind()), Bits: bits,
		Stride: uint32(f.Stride), NameLen: uint16(len(name)), DataLen: uint32(img.Len()),
	}
	if err := binary.Write(self.enc, binary.BigEndian, &h); err != nil {
		return err
	}
	if _, err := io.WriteString(self.enc, name); err != nil {
		return err
	}
	if _, err := self.enc.Write(img.Bytes()); err != nil {
		return err
	}
	self.count++
	return nil
}

// Count returns the number of frames written so far.
func (self *RawWriter) Count() int { return self.count }

// Close flushes the dump. It does not close the underlying writer.
func (self *RawWriter) Close() error {
	if !self.started {
		if _, err := io.WriteString(self.enc, raw_magic); err != nil {
			return err
		}
		self.started = true
	}
	return self.enc.Close()
}

// RawReader reads frames back from a raw dump. It satisfies stream.Stream:
// Next returns io.EOF after the last frame and reuses its buffer between
// calls.
type RawReader struct {
	dec     *zstd.Decoder
	r       *bufio.Reader
	started bool
	data    []byte
	closer  io.Closer
}

func NewRawReader(r io.Reader) (*RawReader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &RawReader{dec: dec, r: bufio.NewReader(dec)}, nil
}

// OpenRaw opens a raw dump file.
func OpenRaw(filename string) (*RawReader, error) {
	file, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	ans, err := NewRawReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	ans.closer = file
	return ans, nil
}

func (self *RawReader) Next() (*frame.Image, error) {
	if !self.started {
		magic := make([]byte, len(raw_magic))
		if _, err := io.ReadFull(self.r, magic); err != nil || string(magic) != raw_magic {
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %w", ErrNotRaw, err)
			}
			return nil, ErrNotRaw
		}
		self.started = true
	}
	var h raw_header
	if err := binary.Read(self.r, binary.BigEndian, &h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("record: reading frame header: %w", err)
	}
	if h.DataLen > max_raw_frame {
		return nil, fmt.Errorf("record: frame of %d bytes exceeds limit", h.DataLen)
	}
	name := make([]byte, h.NameLen)
	if _, err := io.ReadFull(self.r, name); err != nil {
		return nil, fmt.Errorf("record: reading pixel format name: %w", err)
	}
	pf, err := format.Make(format.Kind(h.Kind), h.Bits, string(name))
	if err != nil {
		return nil, err
	}
	if cap(self.data) < int(h.DataLen) {
		self.data = make([]byte, h.DataLen)
	}
	self.data = self.data[:h.DataLen]
	if _, err := io.ReadFull(self.r, self.data); err != nil {
		return nil, fmt.Errorf("record: reading frame data: %w", err)
	}
	f := format.ImageFormat{Width: h.Width, Height: h.Height, PixFmt: pf, Stride: int(h.Stride)}
	return frame.View(self.data, f), nil
}

func (self *RawReader) Close() error {
	self.dec.Close()
	if self.closer != nil {
		return self.closer.Close()
	}
	return nil
}
