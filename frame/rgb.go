package frame

import (
	"fmt"
	"image"
	"image/color"
)

var _ = fmt.Print

type RGBColor struct {
	R, G, B uint8
}

func (c RGBColor) AsSharp() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (c RGBColor) String() string {
	return fmt.Sprintf("RGBColor{%02X %02X %02X}", c.R, c.G, c.B)
}

func (c RGBColor) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	a = 65535 // (255 << 8 | 255)
	return
}

func rgbModel(c color.Color) color.Color {
	if _, ok := c.(RGBColor); ok {
		return c
	}
	r, g, b, a := c.RGBA()
	switch a {
	case 0xffff:
		return RGBColor{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
	case 0:
		return RGBColor{0, 0, 0}
	default:
		// Color.RGBA is alpha-premultiplied so r <= a && g <= a && b <= a.
		r = (r * 0xffff) / a
		g = (g * 0xffff) / a
		b = (b * 0xffff) / a
		return RGBColor{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
	}
}

var RGBModel color.Model = color.ModelFunc(rgbModel)

// packed is a three byte per pixel image. ri, gi and bi give the position of
// each channel inside a pixel, which is all that differs between RGB and BGR
// frames.
type packed struct {
	// Pix holds the image's pixels. The pixel at (x, y) starts at
	// Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*3].
	Pix []uint8
	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle

	ri, gi, bi int
}

func (p *packed) ColorModel() color.Model { return RGBModel }

func (p *packed) Bounds() image.Rectangle { return p.Rect }

func (p *packed) At(x, y int) color.Color {
	return p.RGBAt(x, y)
}

func (p *packed) RGBAt(x, y int) RGBColor {
	if !(image.Point{x, y}.In(p.Rect)) {
		return RGBColor{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3] // Small cap improves performance, see https://golang.org/issue/27857
	return RGBColor{s[p.ri], s[p.gi], s[p.bi]}
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *packed) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

func (p *packed) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	c1 := RGBModel.Convert(c).(RGBColor)
	s := p.Pix[i : i+3 : i+3]
	s[p.ri] = c1.R
	s[p.gi] = c1.G
	s[p.bi] = c1.B
}

func (p *packed) SetNRGBA(x, y int, c color.NRGBA) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	s[p.ri] = c.R
	s[p.gi] = c.G
	s[p.bi] = c.B
}

// Opaque reports whether the image is fully opaque, which it always is.
func (p *packed) Opaque() bool { return true }

func (p *packed) sub(r image.Rectangle) packed {
	r = r.Intersect(p.Rect)
	// r1.Intersect(r2) is not guaranteed to be inside either rectangle when
	// the intersection is empty, so Pix[i:] below could panic.
	if r.Empty() {
		return packed{ri: p.ri, gi: p.gi, bi: p.bi}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return packed{Pix: p.Pix[i:], Stride: p.Stride, Rect: r, ri: p.ri, gi: p.gi, bi: p.bi}
}

// RGB is an in-memory image whose At method returns RGBColor values. Pix
// holds pixels in R, G, B order.
type RGB struct{ packed }

// SubImage returns an image representing the portion of the image p visible
// through r. The returned value shares pixels with the original image.
func (p *RGB) SubImage(r image.Rectangle) image.Image { return &RGB{p.sub(r)} }

// BGR is an in-memory image with pixels in B, G, R order, as produced by
// many capture drivers.
type BGR struct{ packed }

func (p *BGR) SubImage(r image.Rectangle) image.Image { return &BGR{p.sub(r)} }

func NewRGB(r image.Rectangle) *RGB {
	return &RGB{packed{Pix: make([]uint8, 3*r.Dx()*r.Dy()), Stride: 3 * r.Dx(), Rect: r, ri: 0, gi: 1, bi: 2}}
}

func NewBGR(r image.Rectangle) *BGR {
	return &BGR{packed{Pix: make([]uint8, 3*r.Dx()*r.Dy()), Stride: 3 * r.Dx(), Rect: r, ri: 2, gi: 1, bi: 0}}
}

func check_packed(p []byte, stride, width, height int) error {
	if stride < 3*width {
		return fmt.Errorf("the stride %d is smaller than a row of %d pixels", stride, width)
	}
	if height > 0 {
		if expected := stride*(height-1) + 3*width; len(p) < expected {
			return fmt.Errorf("the pixel data is too short for the image size: width=%d height=%d stride=%d sz=%d < %d", width, height, stride, len(p), expected)
		}
	}
	return nil
}

// RGBFromPixels wraps p as an RGB image without copying.
func RGBFromPixels(p []byte, stride, width, height int) (*RGB, error) {
	if err := check_packed(p, stride, width, height); err != nil {
		return nil, err
	}
	return &RGB{packed{Pix: p, Stride: stride, Rect: image.Rect(0, 0, width, height), ri: 0, gi: 1, bi: 2}}, nil
}

// BGRFromPixels wraps p as a BGR image without copying.
func BGRFromPixels(p []byte, stride, width, height int) (*BGR, error) {
	if err := check_packed(p, stride, width, height); err != nil {
		return nil, err
	}
	return &BGR{packed{Pix: p, Stride: stride, Rect: image.Rect(0, 0, width, height), ri: 2, gi: 1, bi: 0}}, nil
}
