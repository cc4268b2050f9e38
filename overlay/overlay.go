// Package overlay burns the viewer's status box, crosshair and text into a
// decoded frame.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	boxWidth  = 220
	boxHeight = 50
)

var textColor = color.RGBA{20, 20, 20, 255}

// Renderer caches the highlight mask for the last seen resolution.
// It is not safe for concurrent use.
type Renderer struct {
	mask *image.Alpha
}

func New() *Renderer {
	return &Renderer{}
}

// Render returns a copy of src with the highlight mask added at half strength
// and lines drawn bottom-up above the bottom edge: lines[0] is the upper one.
func (r *Renderer) Render(src image.Image, lines ...string) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	if r.mask == nil || r.mask.Bounds() != dst.Bounds() {
		r.mask = buildMask(dst.Bounds().Dx(), dst.Bounds().Dy())
	}
	lighten(dst, r.mask)

	h := dst.Bounds().Dy()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		// 20px line pitch, last line 10px above the bottom edge
		y := h - 10 - 20*(len(lines)-1-i)
		d.Dot = fixed.P(10, y)
		d.DrawString(line)
	}
	return dst
}

func buildMask(w, h int) *image.Alpha {
	m := image.NewAlpha(image.Rect(0, 0, w, h))
	on := color.Alpha{A: 255}

	draw.Draw(m, image.Rect(0, h-boxHeight, boxWidth, h), image.NewUniform(on), image.Point{}, draw.Src)

	short := min(w, h)
	length := short / 3
	hline(m, (w-length)/2, (w+length)/2, h/2, on)
	vline(m, w/2, (h-length)/2, (h+length)/2, on)

	x0, x1 := (w-short)/2, (w+short)/2
	y0, y1 := (h-short)/2, (h+short)/2
	hline(m, x0, x1, y0, on)
	hline(m, x0, x1, y1-1, on)
	vline(m, x0, y0, y1, on)
	vline(m, x1-1, y0, y1, on)
	return m
}

func hline(m *image.Alpha, x0, x1, y int, c color.Alpha) {
	for x := x0; x < x1; x++ {
		m.SetAlpha(x, y, c)
	}
}

func vline(m *image.Alpha, x, y0, y1 int, c color.Alpha) {
	for y := y0; y < y1; y++ {
		m.SetAlpha(x, y, c)
	}
}

// lighten adds half-strength white wherever the mask is set.
func lighten(dst *image.RGBA, mask *image.Alpha) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A == 0 {
				continue
			}
			i := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := int(dst.Pix[i+c]) + 128
				if v > 255 {
					v = 255
				}
				dst.Pix[i+c] = uint8(v)
			}
		}
	}
}
