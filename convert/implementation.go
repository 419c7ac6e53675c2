package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/eyehal/eye/format"
	"github.com/eyehal/eye/frame"
	"github.com/kovidgoyal/go-parallel"
)

var _ = fmt.Print

// layout describes how the samples of one pixel are stored.
type layout struct {
	channels int
	// sample size in bytes, 1 or 2. 16 bit samples are big endian, matching
	// image.Gray16 and friends.
	sample int
	// index of the red, green and blue samples inside a pixel
	r, g, b int
}

func (l layout) bpp() int { return l.channels * l.sample }

func layout_of(pf format.PixelFormat) (ans layout, ok bool) {
	bits, fixed := pf.Bits()
	channels := pf.Channels()
	if !fixed || channels == 0 || bits%8 != 0 {
		return
	}
	switch int(bits) / channels {
	case 8:
		ans.sample = 1
	case 16:
		ans.sample = 2
	default:
		return
	}
	ans.channels = channels
	switch pf.Kind() {
	case format.KindRgb:
		ans.r, ans.g, ans.b = 0, 1, 2
	case format.KindBgr:
		ans.r, ans.g, ans.b = 2, 1, 0
	}
	return ans, true
}

func luma(r, g, b uint16) uint16 {
	// Same weights as color.GrayModel and color.Gray16Model
	return uint16((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

type pixel_reader func(px []byte) (r, g, b uint16)
type pixel_writer func(px []byte, r, g, b uint16)

func reader_for(l layout) pixel_reader {
	switch {
	case l.channels == 1 && l.sample == 1:
		return func(px []byte) (r, g, b uint16) {
			v := uint16(px[0])
			v |= v << 8
			return v, v, v
		}
	case l.channels == 1:
		return func(px []byte) (r, g, b uint16) {
			v := uint16(px[0])<<8 | uint16(px[1])
			return v, v, v
		}
	case l.sample == 1:
		return func(px []byte) (r, g, b uint16) {
			r, g, b = uint16(px[l.r]), uint16(px[l.g]), uint16(px[l.b])
			return r | r<<8, g | g<<8, b | b<<8
		}
	default:
		return func(px []byte) (r, g, b uint16) {
			ri, gi, bi := 2*l.r, 2*l.g, 2*l.b
			return uint16(px[ri])<<8 | uint16(px[ri+1]), uint16(px[gi])<<8 | uint16(px[gi+1]), uint16(px[bi])<<8 | uint16(px[bi+1])
		}
	}
}

func writer_for(l layout) pixel_writer {
	switch {
	case l.channels == 1 && l.sample == 1:
		return func(px []byte, r, g, b uint16) {
			px[0] = uint8(luma(r, g, b) >> 8)
		}
	case l.channels == 1:
		return func(px []byte, r, g, b uint16) {
			y := luma(r, g, b)
			px[0], px[1] = uint8(y>>8), uint8(y)
		}
	case l.sample == 1:
		return func(px []byte, r, g, b uint16) {
			px[l.r], px[l.g], px[l.b] = uint8(r>>8), uint8(g>>8), uint8(b>>8)
		}
	default:
		return func(px []byte, r, g, b uint16) {
			ri, gi, bi := 2*l.r, 2*l.g, 2*l.b
			px[ri], px[ri+1] = uint8(r>>8), uint8(r)
			px[gi], px[gi+1] = uint8(g>>8), uint8(g)
			px[bi], px[bi+1] = uint8(b>>8), uint8(b)
		}
	}
}

func (c *Default) run(f func(start, limit int), height int) error {
	if height == 0 {
		return nil
	}
	return parallel.Run_in_parallel_over_range(c.cfg.num_procs, f, 0, height)
}

func (c *Default) copy_rows(src []byte, sf format.ImageFormat, dst []byte, df format.ImageFormat) error {
	row, _ := sf.RowBytes()
	if sf.Height == 0 {
		return nil
	}
	if sf.Stride == df.Stride {
		sz := sf.Stride*(int(sf.Height)-1) + row
		copy(dst[:sz], src[:sz])
		return nil
	}
	return c.run(func(start, limit int) {
		for y := start; y < limit; y++ {
			copy(dst[y*df.Stride:y*df.Stride+row], src[y*sf.Stride:y*sf.Stride+row])
		}
	}, int(sf.Height))
}

func (c *Default) convert_rows(src []byte, sf format.ImageFormat, dst []byte, df format.ImageFormat) error {
	sl, _ := layout_of(sf.PixFmt)
	dl, _ := layout_of(df.PixFmt)
	read, write := reader_for(sl), writer_for(dl)
	width := int(sf.Width)
	sbpp, dbpp := sl.bpp(), dl.bpp()
	return c.run(func(start, limit int) {
		for y := start; y < limit; y++ {
			srow := src[y*sf.Stride : y*sf.Stride+width*sbpp]
			drow := dst[y*df.Stride : y*df.Stride+width*dbpp]
			for range width {
				r, g, b := read(srow[:sbpp:sbpp])
				write(drow[:dbpp:dbpp], r, g, b)
				srow, drow = srow[sbpp:], drow[dbpp:]
			}
		}
	}, int(sf.Height))
}

func (c *Default) decode_jpeg(src []byte, dst []byte, df format.ImageFormat) error {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("convert: decoding JPEG frame: %w", err)
	}
	return c.FromImage(img, dst, df)
}

// FromImage writes img into dst laid out as f, which must be a fixed-depth
// format this package supports.
func FromImage(img image.Image, dst []byte, f format.ImageFormat) error {
	return New().FromImage(img, dst, f)
}

func (c *Default) FromImage(img image.Image, dst []byte, f format.ImageFormat) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width != int(f.Width) || height != int(f.Height) {
		return fmt.Errorf("%w: image of %dx%d cannot become %dx%d", ErrSizeMismatch, width, height, f.Width, f.Height)
	}
	l, ok := layout_of(f.PixFmt)
	if !ok {
		return fmt.Errorf("%w: image to %s", ErrUnsupported, f.PixFmt)
	}
	f = with_derived_stride(f)
	if err := check_len(dst, f, "destination"); err != nil {
		return err
	}
	write := writer_for(l)
	bpp := l.bpp()
	var fn func(start, limit int)
	switch img := img.(type) {
	case *image.Gray:
		fn = func(start, limit int) {
			for y := start; y < limit; y++ {
				row := img.Pix[img.Stride*y:]
				drow := dst[f.Stride*y:]
				for _, v := range row[:width] {
					v16 := uint16(v) | uint16(v)<<8
					write(drow[:bpp:bpp], v16, v16, v16)
					drow = drow[bpp:]
				}
			}
		}
	case *image.Gray16:
		fn = func(start, limit int) {
			for y := start; y < limit; y++ {
				row := img.Pix[img.Stride*y:]
				drow := dst[f.Stride*y:]
				for range width {
					v := uint16(row[0])<<8 | uint16(row[1])
					write(drow[:bpp:bpp], v, v, v)
					row, drow = row[2:], drow[bpp:]
				}
			}
		}
	case *image.YCbCr:
		fn = func(start, limit int) {
			for y := start; y < limit; y++ {
				drow := dst[f.Stride*y:]
				for x := range width {
					yc := img.YCbCrAt(x+b.Min.X, y+b.Min.Y)
					r, g, bl := color.YCbCrToRGB(yc.Y, yc.Cb, yc.Cr)
					write(drow[:bpp:bpp], uint16(r)|uint16(r)<<8, uint16(g)|uint16(g)<<8, uint16(bl)|uint16(bl)<<8)
					drow = drow[bpp:]
				}
			}
		}
	case *frame.RGB:
		fn = func(start, limit int) {
			for y := start; y < limit; y++ {
				row := img.Pix[img.Stride*y:]
				drow := dst[f.Stride*y:]
				for range width {
					s := row[0:3:3]
					write(drow[:bpp:bpp], uint16(s[0])|uint16(s[0])<<8, uint16(s[1])|uint16(s[1])<<8, uint16(s[2])|uint16(s[2])<<8)
					row, drow = row[3:], drow[bpp:]
				}
			}
		}
	case *image.NRGBA:
		fn = func(start, limit int) {
			for y := start; y < limit; y++ {
				row := img.Pix[img.Stride*y:]
				drow := dst[f.Stride*y:]
				for range width {
					s := row[0:3:3]
					write(drow[:bpp:bpp], uint16(s[0])|uint16(s[0])<<8, uint16(s[1])|uint16(s[1])<<8, uint16(s[2])|uint16(s[2])<<8)
					row, drow = row[4:], drow[bpp:]
				}
			}
		}
	default:
		fn = func(start, limit int) {
			for y := start; y < limit; y++ {
				drow := dst[f.Stride*y:]
				for x := range width {
					nc := color.NRGBA64Model.Convert(img.At(x+b.Min.X, y+b.Min.Y)).(color.NRGBA64)
					write(drow[:bpp:bpp], nc.R, nc.G, nc.B)
					drow = drow[bpp:]
				}
			}
		}
	}
	return c.run(fn, height)
}
