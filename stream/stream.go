// Package stream defines the pull interface every capture backend and
// decorator implements.
//
// A Stream hands out one frame per Next call. The frame stays valid only
// until the following Next call, since streams reuse their buffers between
// calls; use Image.Clone to keep a frame for longer. There is no explicit
// start or stop: the first Next call blocks until a frame is available.
//
// Next reports one of three outcomes:
//
//   - a frame and a nil error
//   - a *Error, an I/O failure the caller may recover from, for example by
//     calling Next again or by reopening the device
//   - io.EOF, the stream is finished and will never produce another frame
package stream

import (
	"errors"
	"fmt"
	"io"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
)

var _ = fmt.Print

type Stream interface {
	Next() (*frame.Image, error)
}

// Formatter is implemented by streams that know the format of the frames
// they produce.
type Formatter interface {
	Format() format.ImageFormat
}

// Func adapts a function to the Stream interface.
type Func func() (*frame.Image, error)

func (f Func) Next() (*frame.Image, error) { return f() }

// Error is a failed pull that does not end the stream.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stream: %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsEOS reports whether err signals the end of a stream.
func IsEOS(err error) bool {
	return errors.Is(err, io.EOF)
}

// Collect pulls up to n frames from s, cloning each one. It stops early at
// the end of the stream and returns the frames read so far. A plain io.EOF
// gives a nil error, an end of stream that carries a cause is returned as is.
func Collect(s Stream, n int) (ans []*frame.Image, err error) {
	for range n {
		img, err := s.Next()
		if err != nil {
			if err == io.EOF {
				return ans, nil
			}
			return ans, err
		}
		ans = append(ans, img.Clone())
	}
	return ans, nil
}
