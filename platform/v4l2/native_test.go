package v4l2

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/eyehal/eye/convert"
	"github.com/eyehal/eye/format"
	"github.com/stretchr/testify/require"
)

var _ = fmt.Print

func TestFourCC(t *testing.T) {
	require.Equal(t, "YUYV", YUYV.String())
	require.Equal(t, "MJPG", MJPEG.String())
	require.Equal(t, FourCC(0x56595559), YUYV)
	require.Equal(t, FourCC(0x33424752), RGB24)
}

func TestNegotiate(t *testing.T) {
	for want, expected := range map[format.PixelFormat]Negotiation{
		format.Rgb(24):        {RGB24, format.Rgb(24), format.Rgb(24)},
		format.Gray(8):        {GREY, format.Gray(8), format.Gray(8)},
		format.Depth(16):      {Z16, format.Depth(16), format.Depth(16)},
		format.Jpeg():         {MJPEG, format.Jpeg(), format.Jpeg()},
		format.Bgr(24):        {YUYV, format.Rgb(24), format.Bgr(24)},
		format.Gray(16):       {YUYV, format.Rgb(24), format.Gray(16)},
		format.Custom("NV12"): {MakeFourCC("NV12"), format.Custom("NV12"), format.Custom("NV12")},
	} {
		n, err := Negotiate(want)
		require.NoError(t, err, want.String())
		require.Equal(t, expected, n, want.String())
		require.Equal(t, want != expected.Produced, n.NeedsMapping())
	}
	_, err := Negotiate(format.Custom("TOOLONG"))
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = Negotiate(format.Rgb(32))
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeFixedHonoursStride(t *testing.T) {
	// 2x2 RGB24 rows padded to 8 bytes
	data := []byte{
		255, 0, 0, 0, 255, 0, 9, 9,
		0, 0, 255, 255, 255, 255, 9, 9,
	}
	nf := native_frame{data: data, layout: native_layout{fourcc: RGB24, width: 2, height: 2, stride: 8}, conv: convert.New()}
	out, err := nf.DecodeInto(nil, format.Rgb(24))
	require.NoError(t, err)
	require.Equal(t, []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 255, 255}, out)

	out, err = nf.DecodeInto(out, format.Gray(8))
	require.NoError(t, err)
	require.Len(t, out, 4)
	require.Equal(t, byte(255), out[3])
}

func TestDecodePassthrough(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	nf := native_frame{data: data, layout: native_layout{fourcc: MakeFourCC("NV12"), width: 2, height: 2}}
	out, err := nf.DecodeInto(make([]byte, 0, 64), format.Custom("NV12"))
	require.NoError(t, err)
	require.Equal(t, data, out)
	out[0] = 42
	require.Equal(t, byte(1), data[0])

	_, err = nf.DecodeInto(nil, format.Rgb(24))
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeYUYV(t *testing.T) {
	// uniform mid gray: Y=128 and neutral chroma
	data := bytes.Repeat([]byte{128, 128, 128, 128}, 4*2/2)
	dec, err := decoder_for(YUYV)
	require.NoError(t, err)
	nf := native_frame{data: data, layout: native_layout{fourcc: YUYV, width: 4, height: 2, stride: 8}, decoder: dec, conv: convert.New()}
	out, err := nf.DecodeInto(nil, format.Rgb(24))
	require.NoError(t, err)
	require.Len(t, out, 4*2*3)
	for _, v := range out {
		require.InDelta(t, 128, int(v), 2)
	}
}

func TestDecodeMJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.RGBA{200, 200, 200, 255})
	buf := bytes.Buffer{}
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	dec, err := decoder_for(MJPEG)
	require.NoError(t, err)
	nf := native_frame{data: buf.Bytes(), layout: native_layout{fourcc: MJPEG, width: 16, height: 8}, decoder: dec, conv: convert.New()}

	out, err := nf.DecodeInto(nil, format.Jpeg())
	require.NoError(t, err)
	require.Equal(t, buf.Bytes(), out)

	out, err = nf.DecodeInto(nil, format.Gray(8))
	require.NoError(t, err)
	require.Len(t, out, 16*8)
	for _, v := range out {
		require.InDelta(t, 200, int(v), 3)
	}
}
