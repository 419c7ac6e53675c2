package replay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
	"github.com/eyehal/eye/platform"
	"github.com/eyehal/eye/record"
	"github.com/eyehal/eye/stream"
	"github.com/stretchr/testify/require"
)

var _ = fmt.Print

func gray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func sequence_of(t *testing.T, values ...uint8) *Sequence {
	t.Helper()
	imgs := make([]image.Image, len(values))
	for i, v := range values {
		imgs[i] = gray(8, 6, v)
	}
	seq, err := FromImages(imgs, 0)
	require.NoError(t, err)
	return seq
}

// pull frames until end of stream, returning the first pixel of each and
// the error that ended the stream
func drain(t *testing.T, s stream.Stream) (firsts []byte, end error) {
	t.Helper()
	for range 1000 {
		img, err := s.Next()
		if err != nil {
			return firsts, err
		}
		firsts = append(firsts, img.Bytes()[0])
	}
	t.Fatal("stream did not end")
	return
}

func TestPlaysToEndOfStream(t *testing.T) {
	b := New(sequence_of(t, 10, 20, 30), WithInterval(2*time.Millisecond))
	s, err := b.Stream(format.Gray(8))
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, format.NewImageFormat(8, 6, format.Gray(8)), s.Format())

	firsts, end := drain(t, s)
	require.True(t, stream.IsEOS(end))
	require.ErrorIs(t, end, ErrExhausted)
	// the first frame always lands in an empty slot, later ones may be
	// dropped under backpressure but never reordered
	require.NotEmpty(t, firsts)
	require.Equal(t, byte(10), firsts[0])
	for i := 1; i < len(firsts); i++ {
		require.Greater(t, firsts[i], firsts[i-1])
	}
	_, err = s.Next()
	require.True(t, stream.IsEOS(err))
	require.False(t, errors.Is(err, ErrExhausted))
}

func TestSlowConsumerSeesLastFrameWithoutDrops(t *testing.T) {
	b := New(sequence_of(t, 42), WithInterval(5*time.Millisecond))
	s, err := b.Stream(format.Gray(8))
	require.NoError(t, err)
	defer s.Close()
	time.Sleep(100 * time.Millisecond)

	firsts, end := drain(t, s)
	require.Equal(t, []byte{42}, firsts)
	require.ErrorIs(t, end, ErrExhausted)
	st := s.Stats()
	require.Equal(t, uint64(1), st.Delivered)
	require.Zero(t, st.Dropped)
	require.Zero(t, st.DropRate())
}

func TestConvertsToRequestedFormat(t *testing.T) {
	b := New(sequence_of(t, 100), WithInterval(time.Millisecond))
	s, err := b.Stream(format.Rgb(24))
	require.NoError(t, err)
	defer s.Close()
	img, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, 8*6*3, img.Len())
	require.Equal(t, []byte{100, 100, 100}, img.Bytes()[:3])
	require.False(t, img.Owned())
}

func TestJpegOutput(t *testing.T) {
	b := New(sequence_of(t, 200), WithInterval(time.Millisecond), WithJPEGQuality(100))
	s, err := b.Stream(format.Jpeg())
	require.NoError(t, err)
	defer s.Close()
	img, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, format.Jpeg(), img.Format().PixFmt)
	decoded, err := jpeg.Decode(bytes.NewReader(img.Bytes()))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 8, 6), decoded.Bounds())
	r, _, _, _ := decoded.At(3, 3).RGBA()
	require.InDelta(t, 200, r>>8, 3)
}

func TestFormatNegotiation(t *testing.T) {
	b := New(sequence_of(t, 1))
	for requested, expected := range map[format.PixelFormat]format.PixelFormat{
		format.Gray(8):        format.Gray(8),
		format.Bgr(48):        format.Bgr(48),
		format.Depth(16):      format.Depth(16),
		format.Jpeg():         format.Jpeg(),
		format.Custom("YUYV"): format.Rgb(24),
		format.Rgb(32):        format.Rgb(24),
	} {
		f := b.Format(requested)
		require.Equal(t, expected, f.PixFmt, requested.String())
		require.Equal(t, uint32(8), f.Width)
		require.Equal(t, uint32(6), f.Height)
	}
}

func TestLoopAndClose(t *testing.T) {
	b := New(sequence_of(t, 1, 2), WithInterval(time.Millisecond), WithLoop(true))
	s, err := b.Stream(format.Gray(8))
	require.NoError(t, err)
	for range 10 {
		_, err := s.Next()
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())
	_, err = s.Next()
	require.True(t, stream.IsEOS(err))
	require.NoError(t, s.Close())
}

func TestStartTwice(t *testing.T) {
	b := New(sequence_of(t, 1))
	require.NoError(t, b.StartStream(func(platform.NativeFrame) {}))
	require.ErrorIs(t, b.StartStream(func(platform.NativeFrame) {}), ErrStarted)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := FromImages(nil, 0)
	require.ErrorIs(t, err, ErrEmpty)
	_, err = FromImages([]image.Image{gray(2, 2, 0), gray(3, 2, 0)}, 0)
	require.Error(t, err)
}

func TestDecodeStill(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, png.Encode(&buf, gray(5, 4, 77)))
	seq, err := Decode(&buf, 40*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, seq.Frames, 1)
	require.Equal(t, 5, seq.Width)
	require.Equal(t, 4, seq.Height)
	require.Equal(t, 40*time.Millisecond, seq.Frames[0].Delay)
	r, _, _, _ := seq.Frames[0].Image.At(1, 1).RGBA()
	require.Equal(t, uint32(77*0x101), r)

	_, err = Decode(bytes.NewReader([]byte("definitely not an image")), 0)
	require.Error(t, err)
}

func TestDecodeAPNG(t *testing.T) {
	rec := record.NewRecorder()
	for _, v := range []uint8{10, 20, 30} {
		img := frame.FromBytes(gray(4, 3, v).Pix, format.NewImageFormat(4, 3, format.Gray(8)))
		require.NoError(t, rec.Add(img, 100*time.Millisecond))
	}
	path := filepath.Join(t.TempDir(), "rec.apng")
	require.NoError(t, rec.Save(path))

	seq, err := Open(path, time.Second)
	require.NoError(t, err)
	require.Len(t, seq.Frames, 3)
	require.Equal(t, uint(0), seq.LoopCount)
	for i, f := range seq.Frames {
		require.InDelta(t, float64(100*time.Millisecond), float64(f.Delay), float64(time.Millisecond))
		require.Equal(t, image.Rect(0, 0, 4, 3), f.Image.Bounds())
		r, _, _, _ := f.Image.At(2, 2).RGBA()
		require.Equal(t, uint32(10*(i+1))*0x101, r, "frame %d", i)
	}
}

func TestDecodeGIFCoalesces(t *testing.T) {
	palette := color.Palette{color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 255, 255}}
	first := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
	second := image.NewPaletted(image.Rect(1, 1, 2, 2), palette)
	second.SetColorIndex(1, 1, 1)
	g := &gif.GIF{
		Image:    []*image.Paletted{first, second},
		Delay:    []int{5, 0},
		Disposal: []byte{gif.DisposalNone, gif.DisposalNone},
	}
	buf := bytes.Buffer{}
	require.NoError(t, gif.EncodeAll(&buf, g))
	seq, err := Decode(&buf, 0)
	require.NoError(t, err)
	require.Len(t, seq.Frames, 2)
	require.Equal(t, 50*time.Millisecond, seq.Frames[0].Delay)
	require.Equal(t, 100*time.Millisecond, seq.Frames[1].Delay)
	c := seq.Frames[1].Image
	require.Equal(t, image.Rect(0, 0, 2, 2), c.Bounds())
	r, _, b, _ := c.At(0, 0).RGBA()
	require.Equal(t, []uint32{0xffff, 0}, []uint32{r, b})
	r, _, b, _ = c.At(1, 1).RGBA()
	require.Equal(t, []uint32{0, 0xffff}, []uint32{r, b})
}

func TestDecodeRawDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.zst")
	file, err := os.Create(path)
	require.NoError(t, err)
	w, err := record.NewRawWriter(file)
	require.NoError(t, err)
	for _, v := range []uint8{5, 6} {
		require.NoError(t, w.Write(frame.View(gray(3, 2, v).Pix, format.NewImageFormat(3, 2, format.Gray(8)))))
	}
	require.NoError(t, w.Close())
	require.NoError(t, file.Close())

	seq, err := Open(path, 25*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, seq.Frames, 2)
	for i, f := range seq.Frames {
		require.Equal(t, 25*time.Millisecond, f.Delay)
		r, _, _, _ := f.Image.At(0, 0).RGBA()
		require.Equal(t, uint32(5+i)*0x101, r)
	}
}
