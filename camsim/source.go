package camsim

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Source produces the raster for frame n at the requested size.
type Source interface {
	Frame(n int, width, height int) image.Image
}

// PatternSource draws a gradient with a sweeping bar so that motion and
// dropped frames are visible in the viewer.
type PatternSource struct {
	Label string
}

func (p PatternSource) Frame(n int, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		g := uint8(y * 255 / max(height, 1))
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			i := x * 4
			row[i] = uint8((x + n*4) * 255 / max(width, 1))
			row[i+1] = g
			row[i+2] = 96
			row[i+3] = 255
		}
	}

	barW := max(width/16, 2)
	barX := (n * 8) % max(width, 1)
	bar := image.Rect(barX, 0, barX+barW, height).Intersect(img.Bounds())
	draw.Draw(img, bar, image.White, image.Point{}, draw.Src)

	if p.Label != "" {
		drawText(img, 8, 16, p.Label)
	}
	return img
}

func drawText(dst draw.Image, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// ImageSource repeats a fixed image regardless of the requested size.
type ImageSource struct {
	Image image.Image
}

func (s ImageSource) Frame(int, int, int) image.Image {
	return s.Image
}
