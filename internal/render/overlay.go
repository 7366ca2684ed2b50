package render

import (
	"image"

	"notemat/pkg/ntm"
)

// Preview paints the image layer of a width x height viewport scrolled to
// scrollY. Images keep their document-space position, so they move with
// the text. The selected image gets an outline and a bottom-right resize
// handle. Images that fail to decode are drawn as a crossed box and
// counted in the returned value.
func Preview(fb *FrameBuffer, images []*ntm.Image, scrollY int, selected *ntm.Image, theme Theme) int {
	fb.Clear(theme.Page)
	return drawImages(fb, images, scrollY, selected, theme)
}

// Page paints the full viewport: the styled text first, then the image
// layer above it.
func Page(fb *FrameBuffer, bank *FontBank, doc *ntm.Document, scrollY int, selected *ntm.Image, theme Theme) int {
	fb.Clear(theme.Page)
	DrawText(fb, bank, doc, scrollY, theme)
	return drawImages(fb, doc.Images().Images(), scrollY, selected, theme)
}

func drawImages(fb *FrameBuffer, images []*ntm.Image, scrollY int, selected *ntm.Image, theme Theme) int {
	viewport := image.Rect(0, scrollY, fb.W, scrollY+fb.H)
	broken := 0
	for _, img := range images {
		r := img.Bounds()
		if !r.Overlaps(viewport) {
			continue
		}
		dst := r.Sub(image.Pt(0, scrollY))
		px, err := img.Decode()
		if err != nil {
			broken++
			drawBroken(fb, dst, theme)
			continue
		}
		fb.DrawScaled(dst, px)
		if img == selected {
			drawSelection(fb, dst, theme)
		}
	}
	return broken
}

func drawSelection(fb *FrameBuffer, r image.Rectangle, theme Theme) {
	fb.StrokeRect(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), theme.OutlineDp, theme.Accent)
	h := theme.HandleDp
	fb.FillRect(r.Max.X-h/2, r.Max.Y-h/2, h, h, theme.Accent)
}

func drawBroken(fb *FrameBuffer, r image.Rectangle, theme Theme) {
	fb.FillRect(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), theme.Shadow)
	fb.StrokeRect(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), 1, theme.Broken)
	n := min(r.Dx(), r.Dy())
	for i := 0; i < n; i++ {
		fb.FillRect(r.Min.X+i, r.Min.Y+i, 1, 1, theme.Broken)
		fb.FillRect(r.Max.X-1-i, r.Min.Y+i, 1, 1, theme.Broken)
	}
}
