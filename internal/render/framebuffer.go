package render

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

type FrameBuffer struct {
	W      int
	H      int
	Pixels []uint8 // RGBA
}

func NewFrameBuffer(w, h int) *FrameBuffer {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return &FrameBuffer{W: w, H: h, Pixels: make([]uint8, w*h*4)}
}

// Image views the buffer as an *image.RGBA sharing the same pixels.
func (fb *FrameBuffer) Image() *image.RGBA {
	return &image.RGBA{Pix: fb.Pixels, Stride: fb.W * 4, Rect: image.Rect(0, 0, fb.W, fb.H)}
}

func (fb *FrameBuffer) At(x, y int) color.RGBA {
	if x < 0 || y < 0 || x >= fb.W || y >= fb.H {
		return color.RGBA{}
	}
	i := (y*fb.W + x) * 4
	return color.RGBA{fb.Pixels[i], fb.Pixels[i+1], fb.Pixels[i+2], fb.Pixels[i+3]}
}

func (fb *FrameBuffer) Clear(c color.RGBA) {
	fb.fill(image.Rect(0, 0, fb.W, fb.H), c)
}

// FillRect paints the rectangle at (x, y), clipped to the buffer.
func (fb *FrameBuffer) FillRect(x, y, w, h int, c color.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}
	fb.fill(image.Rect(x, y, x+w, y+h), c)
}

func (fb *FrameBuffer) fill(r image.Rectangle, c color.RGBA) {
	xdraw.Draw(fb.Image(), r, image.NewUniform(c), image.Point{}, xdraw.Src)
}

func (fb *FrameBuffer) StrokeRect(x, y, w, h, line int, c color.RGBA) {
	if line <= 0 {
		line = 1
	}
	fb.FillRect(x, y, w, line, c)
	fb.FillRect(x, y+h-line, w, line, c)
	fb.FillRect(x, y, line, h, c)
	fb.FillRect(x+w-line, y, line, h, c)
}

// DrawScaled scales src into dst, clipped to the buffer.
func (fb *FrameBuffer) DrawScaled(dst image.Rectangle, src image.Image) {
	if dst.Empty() || !dst.Overlaps(image.Rect(0, 0, fb.W, fb.H)) {
		return
	}
	xdraw.BiLinear.Scale(fb.Image(), dst, src, src.Bounds(), xdraw.Over, nil)
}
