package stream

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/eyehal/eye/convert"
	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
	"github.com/stretchr/testify/require"
)

var _ = fmt.Print

type fake_stream struct {
	frames []*frame.Image
	pos    int
	err    error
}

func (f *fake_stream) Next() (*frame.Image, error) {
	if f.err != nil {
		err := f.err
		f.err = nil
		return nil, err
	}
	if f.pos >= len(f.frames) {
		return nil, io.EOF
	}
	f.pos++
	return f.frames[f.pos-1], nil
}

func rgb_frame(width, height uint32, seed byte) *frame.Image {
	f := format.NewImageFormat(width, height, format.Rgb(24))
	sz, _ := f.Size()
	data := make([]byte, sz)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return frame.View(data, f)
}

func TestPassThrough(t *testing.T) {
	a, b := rgb_frame(640, 480, 1), rgb_frame(640, 480, 2)
	s := NewTransparent(&fake_stream{frames: []*frame.Image{a, b}}, a.Format())
	for _, expected := range []*frame.Image{a, b} {
		img, err := s.Next()
		require.NoError(t, err)
		require.Same(t, expected, img)
		require.Equal(t, expected.Bytes(), img.Bytes())
		require.Equal(t, format.Rgb(24), img.Format().PixFmt)
		require.Equal(t, 1920, img.Format().Stride)
		require.Equal(t, 640*480*3, img.Len())
	}
	_, err := s.Next()
	require.True(t, IsEOS(err))
	require.Equal(t, TransparentStats{Passed: 2}, s.Stats())
}

func TestEmulateGray(t *testing.T) {
	src := &fake_stream{frames: []*frame.Image{rgb_frame(640, 480, 1), rgb_frame(640, 480, 9)}}
	s := NewTransparent(src, format.NewImageFormat(640, 480, format.Gray(8)))
	s.Map(format.Rgb(24), format.Gray(8))
	require.Equal(t, 640, s.Format().Stride)
	var first []byte
	for i := range 2 {
		img, err := s.Next()
		require.NoError(t, err)
		f := img.Format()
		require.Equal(t, format.Gray(8), f.PixFmt)
		require.Equal(t, 640, f.Stride)
		require.Equal(t, 640*480, img.Len())
		if i == 0 {
			first = img.Bytes()
		} else {
			require.Same(t, &first[0], &img.Bytes()[0], "conversion buffer must be reused")
		}
	}
	require.Equal(t, uint64(2), s.Stats().Converted)
	for _, f := range src.frames {
		require.Equal(t, rgb_frame(640, 480, f.Bytes()[0]).Bytes(), f.Bytes(), "source frames must not be written to")
	}
}

func TestNoOpConverterRoundTrip(t *testing.T) {
	in := rgb_frame(8, 4, 3)
	copier := convert.ConverterFunc(func(src []byte, sf format.ImageFormat, dst []byte, df format.ImageFormat) error {
		copy(dst, src)
		return nil
	})
	s := NewTransparent(&fake_stream{frames: []*frame.Image{in}}, in.Format(), WithConverter(copier))
	s.Map(format.Rgb(24), format.Rgb(24))
	img, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, in.Bytes(), img.Bytes())
	require.Equal(t, format.Rgb(24), img.Format().PixFmt)
	require.NotSame(t, &in.Bytes()[0], &img.Bytes()[0])
}

func TestConversionFailureIsRecoverable(t *testing.T) {
	calls := 0
	flaky := convert.ConverterFunc(func(src []byte, sf format.ImageFormat, dst []byte, df format.ImageFormat) error {
		calls++
		if calls == 1 {
			return convert.ErrUnsupported
		}
		return convert.New().Convert(src, sf, dst, df)
	})
	src := &fake_stream{frames: []*frame.Image{rgb_frame(4, 4, 0), rgb_frame(4, 4, 1)}}
	s := NewTransparent(src, format.NewImageFormat(4, 4, format.Bgr(24)), WithConverter(flaky))
	s.Map(format.Rgb(24), format.Bgr(24))
	_, err := s.Next()
	var serr *Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "convert", serr.Op)
	require.ErrorIs(t, err, convert.ErrUnsupported)
	require.False(t, IsEOS(err))

	img, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, format.Bgr(24), img.Format().PixFmt)
	require.Equal(t, []byte{3, 2, 1}, img.Bytes()[:3])
	require.Equal(t, TransparentStats{Converted: 1, Failed: 1}, s.Stats())
}

func TestMappingMismatch(t *testing.T) {
	s := NewTransparent(&fake_stream{frames: []*frame.Image{rgb_frame(2, 2, 0)}}, format.NewImageFormat(2, 2, format.Gray(8)))
	_, _, ok := s.Mapping()
	require.False(t, ok)
	s.Map(format.Bgr(24), format.Gray(8))
	src, dst, ok := s.Mapping()
	require.True(t, ok)
	require.Equal(t, format.Bgr(24), src)
	require.Equal(t, format.Gray(8), dst)
	_, err := s.Next()
	require.ErrorIs(t, err, convert.ErrUnsupported)

	s = NewTransparent(&fake_stream{frames: []*frame.Image{rgb_frame(2, 2, 0)}}, format.NewImageFormat(2, 2, format.Jpeg()))
	s.Map(format.Rgb(24), format.Jpeg())
	_, err = s.Next()
	require.ErrorIs(t, err, convert.ErrUnsupported)
}

func TestErrorsFromWrappedStreamPassThrough(t *testing.T) {
	boom := &Error{Op: "read", Err: errors.New("boom")}
	s := NewTransparent(&fake_stream{err: boom}, format.NewImageFormat(2, 2, format.Gray(8)))
	s.Map(format.Rgb(24), format.Gray(8))
	_, err := s.Next()
	require.Same(t, boom, err)
	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestCollect(t *testing.T) {
	src := &fake_stream{frames: []*frame.Image{rgb_frame(2, 1, 0), rgb_frame(2, 1, 5)}}
	frames, err := Collect(src, 5)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.True(t, frames[0].Owned())
	require.Equal(t, byte(5), frames[1].Bytes()[0])

	frames, err = Collect(&fake_stream{err: &Error{Op: "read", Err: io.ErrUnexpectedEOF}}, 1)
	require.Error(t, err)
	require.Empty(t, frames)

	unplugged := errors.New("unplugged")
	ended := fmt.Errorf("%w: %w", io.EOF, unplugged)
	frames, err = Collect(&fake_stream{err: ended}, 3)
	require.True(t, IsEOS(err))
	require.ErrorIs(t, err, unplugged)
	require.Empty(t, frames)
}
