package platform

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/handoff"
	"github.com/eyehal/eye/stream"
	"github.com/stretchr/testify/require"
)

var _ = fmt.Print
var _ stream.Stream = (*Stream)(nil)

type manual_backend struct {
	mu      sync.Mutex
	cb      FrameFunc
	closed  bool
	start   error
	started bool
}

func (b *manual_backend) StartStream(cb FrameFunc) error {
	if b.start != nil {
		return b.start
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb, b.started = cb, true
	return nil
}

func (b *manual_backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// deliver invokes the callback the way a driver thread would, copying from
// a buffer it then scribbles over.
func (b *manual_backend) deliver(native []byte) {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()
	cb(NativeFrameFunc(func(dst []byte, pf format.PixelFormat) ([]byte, error) {
		if pf != format.Rgb(24) {
			return dst, fmt.Errorf("cannot decode to %s", pf)
		}
		return append(dst, native...), nil
	}))
	for i := range native {
		native[i] = 0
	}
}

func (b *manual_backend) fail(err error) {
	b.cb(NativeFrameFunc(func(dst []byte, pf format.PixelFormat) ([]byte, error) {
		return dst, err
	}))
}

func (b *manual_backend) end(err error) {
	b.cb(EndOfStream(err))
}

func pattern(n int, seed byte) []byte {
	ans := make([]byte, n)
	for i := range ans {
		ans[i] = seed + byte(i%251)
	}
	return ans
}

func TestCaptureTwoFrames(t *testing.T) {
	b := &manual_backend{}
	f := format.NewImageFormat(640, 480, format.Rgb(24))
	s, err := New(b, f)
	require.NoError(t, err)
	require.True(t, b.started)
	require.NotEmpty(t, s.ID())
	defer s.Close()

	for _, seed := range []byte{1, 2} {
		expected := pattern(640*480*3, seed)
		b.deliver(append([]byte(nil), expected...))
		img, err := s.Next()
		require.NoError(t, err)
		require.Equal(t, format.Rgb(24), img.Format().PixFmt)
		require.Equal(t, 1920, img.Format().Stride)
		require.Equal(t, 640*480*3, img.Len())
		require.Equal(t, expected, img.Bytes())
		require.False(t, img.Owned())
	}
}

func TestEmulatedGrayOverPlatformStream(t *testing.T) {
	b := &manual_backend{}
	s, err := New(b, format.NewImageFormat(640, 480, format.Rgb(24)))
	require.NoError(t, err)
	ts := stream.NewTransparent(s, format.NewImageFormat(640, 480, format.Gray(8)))
	ts.Map(format.Rgb(24), format.Gray(8))
	for _, seed := range []byte{3, 4} {
		b.deliver(pattern(640*480*3, seed))
		img, err := ts.Next()
		require.NoError(t, err)
		require.Equal(t, format.Gray(8), img.Format().PixFmt)
		require.Equal(t, 640, img.Format().Stride)
		require.Equal(t, 640*480, img.Len())
	}
	require.NoError(t, ts.Close())
	require.True(t, b.closed)
}

func TestBackpressureKeepsFirstFrame(t *testing.T) {
	b := &manual_backend{}
	s, err := New(b, format.NewImageFormat(2, 1, format.Rgb(24)), WithBufferOptions(handoff.WithBackoff(time.Microsecond)))
	require.NoError(t, err)
	b.deliver([]byte{1, 1, 1, 1, 1, 1})
	b.deliver([]byte{2, 2, 2, 2, 2, 2})
	img, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 1, 1, 1, 1, 1}, img.Bytes())
	require.Equal(t, uint64(1), s.Stats().Dropped)
}

func TestDecodeFailureEndsStream(t *testing.T) {
	b := &manual_backend{}
	s, err := New(b, format.NewImageFormat(2, 1, format.Rgb(24)))
	require.NoError(t, err)
	cause := errors.New("bad frame")
	b.fail(cause)
	_, err = s.Next()
	require.ErrorIs(t, err, cause)
	require.True(t, stream.IsEOS(err))
	for range 3 {
		_, err = s.Next()
		require.Equal(t, io.EOF, err)
	}
}

func TestNegotiatedFormatDrivesDecode(t *testing.T) {
	b := &manual_backend{}
	s, err := New(b, format.NewImageFormat(2, 1, format.Gray(8)))
	require.NoError(t, err)
	b.deliver([]byte{1, 2, 3, 4, 5, 6})
	_, err = s.Next()
	require.ErrorContains(t, err, "Gray(8)")
}

func TestCloseUnblocksNext(t *testing.T) {
	b := &manual_backend{}
	s, err := New(b, format.NewImageFormat(2, 1, format.Rgb(24)))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	select {
	case err := <-done:
		require.True(t, stream.IsEOS(err))
	case <-time.After(time.Second):
		t.Fatal("Next still blocked after Close")
	}
	require.True(t, b.closed)
}

func TestStartFailure(t *testing.T) {
	_, err := New(&manual_backend{start: errors.New("no device")}, format.NewImageFormat(1, 1, format.Rgb(24)))
	require.ErrorContains(t, err, "no device")
}

func TestEndOfStreamDeliversLastFrame(t *testing.T) {
	b := &manual_backend{}
	s, err := New(b, format.NewImageFormat(2, 1, format.Rgb(24)))
	require.NoError(t, err)
	cause := errors.New("done")
	b.deliver([]byte{7, 7, 7, 7, 7, 7})
	b.end(cause)
	b.end(cause)
	img, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, []byte{7, 7, 7, 7, 7, 7}, img.Bytes())
	_, err = s.Next()
	require.ErrorIs(t, err, cause)
	require.True(t, stream.IsEOS(err))
	require.Zero(t, s.Stats().Dropped)
	require.NoError(t, s.Close())
}
