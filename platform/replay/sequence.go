// Package replay is a virtual camera. It plays back still images, animated
// PNG and GIF files or raw dumps written by the record package, delivering
// frames from its own goroutine like a hardware backend does.
package replay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/eyehal/eye/record"
	"github.com/kettek/apng"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var _ = fmt.Print

var ErrEmpty = errors.New("replay: sequence has no frames")

// Frame is one full snapshot of the scene and how long it stays in front of
// the camera.
type Frame struct {
	Image image.Image
	Delay time.Duration
}

// Sequence is what the virtual camera sees, already coalesced so that every
// frame is a complete picture of the same size.
type Sequence struct {
	Frames        []Frame
	Width, Height int
	LoopCount     uint // 0 means loop forever, 1 means play once, ...
}

// An animation frame before coalescing. Frames draw onto either a blank
// canvas (compose_onto == 0) or the coalesced result of frame number
// compose_onto.
type layer struct {
	number       uint
	x, y         int
	img          image.Image
	delay        time.Duration
	compose_onto uint
	replace      bool
}

// FromImages builds a sequence from images of identical bounds, each shown
// for delay.
func FromImages(imgs []image.Image, delay time.Duration) (*Sequence, error) {
	if len(imgs) == 0 {
		return nil, ErrEmpty
	}
	b := imgs[0].Bounds()
	ans := &Sequence{Width: b.Dx(), Height: b.Dy(), LoopCount: 1}
	for i, img := range imgs {
		if img.Bounds().Dx() != ans.Width || img.Bounds().Dy() != ans.Height {
			return nil, fmt.Errorf("replay: image %d is %dx%d, expected %dx%d", i, img.Bounds().Dx(), img.Bounds().Dy(), ans.Width, ans.Height)
		}
		ans.Frames = append(ans.Frames, Frame{Image: img, Delay: delay})
	}
	return ans, nil
}

func layers_from_apng(p *apng.APNG) (ans []*layer) {
	prev_disposal := apng.DISPOSE_OP_BACKGROUND
	var prev_compose_onto uint
	for _, f := range p.Frames {
		if f.IsDefault {
			continue
		}
		l := layer{number: uint(len(ans) + 1), img: f.Image, x: f.XOffset, y: f.YOffset,
			replace: f.BlendOp == apng.BLEND_OP_SOURCE,
			delay:   time.Duration(float64(time.Second) * f.GetDelay())}
		switch prev_disposal {
		case apng.DISPOSE_OP_NONE:
			l.compose_onto = l.number - 1
		case apng.DISPOSE_OP_PREVIOUS:
			l.compose_onto = prev_compose_onto
		}
		prev_disposal, prev_compose_onto = int(f.DisposeOp), l.compose_onto
		ans = append(ans, &l)
	}
	return
}

// browsers show GIF frames with a delay of 0 or 1 centiseconds at 100ms
func gif_delay(centiseconds int) time.Duration {
	if centiseconds <= 1 {
		return 100 * time.Millisecond
	}
	return time.Duration(centiseconds) * 10 * time.Millisecond
}

func layers_from_gif(g *gif.GIF) (ans []*layer) {
	prev_disposal := uint8(gif.DisposalBackground)
	var prev_compose_onto uint
	for i, img := range g.Image {
		b := img.Bounds()
		l := layer{number: uint(len(ans) + 1), img: img, x: b.Min.X, y: b.Min.Y, delay: gif_delay(g.Delay[i])}
		var disposal uint8
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		switch prev_disposal {
		case gif.DisposalPrevious:
			l.compose_onto = prev_compose_onto
		default:
			// browsers treat background disposal like none, so do the same
			l.compose_onto = l.number - 1
		}
		prev_disposal, prev_compose_onto = disposal, l.compose_onto
		ans = append(ans, &l)
	}
	return
}

func gif_loop_count(n int) uint {
	switch {
	case n == 0:
		return 0
	case n < 0:
		return 1
	}
	return uint(n) + 1
}

// coalesce renders layers into full snapshots of width x height.
func coalesce(layers []*layer, width, height int) []Frame {
	canvases := make([]*image.RGBA64, len(layers))
	ans := make([]Frame, len(layers))
	r := image.Rect(0, 0, width, height)
	for i, l := range layers {
		canvas := image.NewRGBA64(r)
		if l.compose_onto > 0 && int(l.compose_onto) <= i {
			copy(canvas.Pix, canvases[l.compose_onto-1].Pix)
		}
		b := l.img.Bounds()
		op := draw.Over
		if l.replace {
			op = draw.Src
		}
		draw.Draw(canvas, image.Rect(l.x, l.y, l.x+b.Dx(), l.y+b.Dy()), l.img, b.Min, op)
		canvases[i] = canvas
		ans[i] = Frame{Image: canvas, Delay: l.delay}
	}
	return ans
}

var png_signature = []byte("\x89PNG\r\n\x1a\n")
var zstd_magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Decode reads a sequence, detecting the container from its first bytes.
// Still images become single frame sequences shown for default_delay, as do
// the frames of raw dumps.
func Decode(r io.Reader, default_delay time.Duration) (*Sequence, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(8)
	switch {
	case bytes.HasPrefix(head, png_signature):
		p, err := apng.DecodeAll(br)
		if err != nil {
			return nil, fmt.Errorf("replay: decoding PNG: %w", err)
		}
		if len(p.Frames) == 0 {
			return nil, ErrEmpty
		}
		layers := layers_from_apng(&p)
		if len(layers) == 0 {
			// a plain PNG has only the default image
			return FromImages([]image.Image{p.Frames[0].Image}, default_delay)
		}
		b := p.Frames[0].Image.Bounds()
		ans := &Sequence{Width: b.Dx(), Height: b.Dy(), LoopCount: p.LoopCount}
		if len(layers) == 1 && layers[0].delay <= 0 {
			layers[0].delay = default_delay
		}
		ans.Frames = coalesce(layers, ans.Width, ans.Height)
		return ans, nil
	case bytes.HasPrefix(head, []byte("GIF8")):
		g, err := gif.DecodeAll(br)
		if err != nil {
			return nil, fmt.Errorf("replay: decoding GIF: %w", err)
		}
		if len(g.Image) == 0 {
			return nil, ErrEmpty
		}
		ans := &Sequence{Width: g.Config.Width, Height: g.Config.Height, LoopCount: gif_loop_count(g.LoopCount)}
		if ans.Width == 0 || ans.Height == 0 {
			b := g.Image[0].Bounds()
			ans.Width, ans.Height = b.Max.X, b.Max.Y
		}
		ans.Frames = coalesce(layers_from_gif(g), ans.Width, ans.Height)
		return ans, nil
	case bytes.HasPrefix(head, zstd_magic):
		return decode_raw(br, default_delay)
	}
	img, _, err := image.Decode(br)
	if err != nil {
		return nil, fmt.Errorf("replay: decoding image: %w", err)
	}
	return FromImages([]image.Image{img}, default_delay)
}

func decode_raw(r io.Reader, delay time.Duration) (*Sequence, error) {
	rr, err := record.NewRawReader(r)
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	var imgs []image.Image
	for {
		f, err := rr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		// the reader reuses its buffer
		img, err := f.Clone().ToImage()
		if err != nil {
			return nil, fmt.Errorf("replay: raw frame %d: %w", len(imgs)+1, err)
		}
		imgs = append(imgs, img)
	}
	return FromImages(imgs, delay)
}

// Open reads a sequence from a file. See Decode.
func Open(path string, default_delay time.Duration) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ans, err := Decode(f, default_delay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ans, nil
}
