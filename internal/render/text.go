package render

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"notemat/pkg/ntm"
)

type fontKey struct {
	mono   bool
	size   int
	bold   bool
	italic bool
}

// FontBank maps style attributes onto the Go fonts. Family names are only
// used to pick between the proportional and monospaced sets.
type FontBank struct {
	fonts map[fontKey]*opentype.Font
	cache map[fontKey]font.Face
}

func NewFontBank() *FontBank {
	bank := &FontBank{fonts: map[fontKey]*opentype.Font{}, cache: map[fontKey]font.Face{}}
	sources := map[fontKey][]byte{
		{}:                                     goregular.TTF,
		{bold: true}:                           gobold.TTF,
		{italic: true}:                         goitalic.TTF,
		{bold: true, italic: true}:             gobolditalic.TTF,
		{mono: true}:                           gomono.TTF,
		{mono: true, bold: true}:               gomonobold.TTF,
		{mono: true, italic: true}:             gomonoitalic.TTF,
		{mono: true, bold: true, italic: true}: gomonobolditalic.TTF,
	}
	for k, ttf := range sources {
		f, err := opentype.Parse(ttf)
		if err != nil {
			continue
		}
		bank.fonts[k] = f
	}
	return bank
}

// Face returns a cached face for attrs, falling back to basicfont.
func (b *FontBank) Face(attrs ntm.StyleAttributes) font.Face {
	family := strings.ToLower(attrs.FontFamily)
	mono := strings.Contains(family, "mono") || strings.Contains(family, "courier")
	key := fontKey{mono: mono, size: attrs.FontSize, bold: attrs.Bold, italic: attrs.Italic}
	if f, ok := b.cache[key]; ok {
		return f
	}
	base := b.fonts[fontKey{mono: mono, bold: attrs.Bold, italic: attrs.Italic}]
	if base == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(base, &opentype.FaceOptions{Size: float64(attrs.FontSize), DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return basicfont.Face7x13
	}
	b.cache[key] = face
	return face
}

type segment struct {
	text  string
	attrs ntm.StyleAttributes
}

// lines splits the document into lines of same-style segments.
func lines(doc *ntm.Document) [][]segment {
	text := []rune(doc.Text())
	out := [][]segment{nil}
	pos := 0
	for _, sp := range doc.Spans().Spans() {
		chunk := text[pos : pos+sp.Length]
		pos += sp.Length
		for i, part := range strings.Split(string(chunk), "\n") {
			if i > 0 {
				out = append(out, nil)
			}
			if part != "" {
				last := len(out) - 1
				out[last] = append(out[last], segment{text: part, attrs: sp.Attrs})
			}
		}
	}
	return out
}

// DrawText lays the document out line by line from the page margin and
// paints the part visible at scrollY. It returns the laid-out height.
func DrawText(fb *FrameBuffer, bank *FontBank, doc *ntm.Document, scrollY int, theme Theme) int {
	dst := fb.Image()
	y := theme.PageMarginDp
	for _, line := range lines(doc) {
		ascent, height := 0, 0
		for _, seg := range line {
			m := bank.Face(seg.attrs).Metrics()
			ascent = max(ascent, m.Ascent.Ceil())
			height = max(height, m.Height.Ceil())
		}
		if len(line) == 0 {
			m := bank.Face(ntm.DefaultAttributes()).Metrics()
			ascent, height = m.Ascent.Ceil(), m.Height.Ceil()
		}
		top := y - scrollY
		if top+height >= 0 && top < fb.H {
			baseline := top + ascent
			x := theme.PageMarginDp
			for _, seg := range line {
				c := seg.attrs.Color
				d := font.Drawer{
					Dst:  dst,
					Src:  image.NewUniform(color.RGBA{c.R, c.G, c.B, 0xFF}),
					Face: bank.Face(seg.attrs),
					Dot:  fixed.P(x, baseline),
				}
				d.DrawString(seg.text)
				end := d.Dot.X.Round()
				if seg.attrs.Underline {
					fb.FillRect(x, baseline+1, end-x, 1, color.RGBA{c.R, c.G, c.B, 0xFF})
				}
				x = end
			}
		}
		y += height
	}
	return y + theme.PageMarginDp
}
