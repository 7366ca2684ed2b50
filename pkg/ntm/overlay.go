package ntm

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MinImageSize is the floor for either displayed dimension.
const MinImageSize = 10

// Image is a floating picture positioned in document space, independent
// of the character stream. Encoded holds the bytes exactly as inserted;
// X, Y, Width and Height are the display transform.
type Image struct {
	Encoded []byte
	Format  string

	NaturalWidth  int
	NaturalHeight int

	X, Y          int
	Width, Height int

	owner *Overlay
}

// NewImage wraps encoded image bytes. The bytes must decode with one of the
// registered formats (png, jpeg, gif, bmp, tiff, webp); the natural pixel
// size becomes the initial display size.
func NewImage(encoded []byte) (*Image, error) {
	if len(encoded) == 0 {
		return nil, errors.New("ntm: empty image")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("ntm: undecodable image: %w", err)
	}
	return &Image{
		Encoded:       append([]byte(nil), encoded...),
		Format:        format,
		NaturalWidth:  cfg.Width,
		NaturalHeight: cfg.Height,
		Width:         max(cfg.Width, MinImageSize),
		Height:        max(cfg.Height, MinImageSize),
	}, nil
}

// ImageFromPixels encodes a decoded raster as PNG, the path taken for
// clipboard pastes that carry pixels rather than a file.
func ImageFromPixels(src image.Image) (*Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("ntm: encode png: %w", err)
	}
	return NewImage(buf.Bytes())
}

// Decode returns the pixels of the stored image.
func (img *Image) Decode() (image.Image, error) {
	m, _, err := image.Decode(bytes.NewReader(img.Encoded))
	if err != nil {
		return nil, fmt.Errorf("ntm: undecodable image: %w", err)
	}
	return m, nil
}

// Bounds is the displayed rectangle in document space.
func (img *Image) Bounds() image.Rectangle {
	return image.Rect(img.X, img.Y, img.X+img.Width, img.Y+img.Height)
}

// clone shares Encoded, which is never written after NewImage.
func (img *Image) clone() *Image {
	c := *img
	c.owner = nil
	return &c
}

// Overlay is the ordered set of floating images owned by one document.
// Later images paint above earlier ones. Selection is presentation state
// and is not tracked here.
type Overlay struct {
	images []*Image
	bounds image.Rectangle
}

func NewOverlay() *Overlay { return &Overlay{} }

// SetBounds sets the container rectangle used to clamp moves. An empty
// rectangle disables clamping.
func (o *Overlay) SetBounds(r image.Rectangle) { o.bounds = r.Canon() }

func (o *Overlay) ContainerBounds() image.Rectangle { return o.bounds }

func (o *Overlay) Len() int { return len(o.images) }

// Images returns the images in paint order.
func (o *Overlay) Images() []*Image {
	out := make([]*Image, len(o.images))
	copy(out, o.images)
	return out
}

func (o *Overlay) Contains(img *Image) bool {
	return img != nil && img.owner == o
}

// Add places img at (x, y) and takes ownership of it.
func (o *Overlay) Add(img *Image, x, y int) error {
	if img == nil {
		return errors.New("ntm: nil image")
	}
	if img.owner != nil {
		return ErrImageOwned
	}
	img.X, img.Y = x, y
	img.Width = max(img.Width, MinImageSize)
	img.Height = max(img.Height, MinImageSize)
	img.owner = o
	o.images = append(o.images, img)
	return nil
}

func (o *Overlay) Remove(img *Image) error {
	i := o.index(img)
	if i < 0 {
		return ErrImageNotFound
	}
	o.images = append(o.images[:i], o.images[i+1:]...)
	img.owner = nil
	return nil
}

// Move translates img by (dx, dy), clamped so that at least one pixel of
// the image stays inside the container bounds.
func (o *Overlay) Move(img *Image, dx, dy int) error {
	if o.index(img) < 0 {
		return ErrImageNotFound
	}
	img.X += dx
	img.Y += dy
	if !o.bounds.Empty() {
		img.X = clampInt(img.X, o.bounds.Min.X-img.Width+1, o.bounds.Max.X-1)
		img.Y = clampInt(img.Y, o.bounds.Min.Y-img.Height+1, o.bounds.Max.Y-1)
	}
	return nil
}

// Resize sets the displayed size. With lockAspect the height follows the
// width using the image's current aspect ratio. Neither dimension goes
// below MinImageSize.
func (o *Overlay) Resize(img *Image, width, height int, lockAspect bool) error {
	if o.index(img) < 0 {
		return ErrImageNotFound
	}
	if lockAspect && img.Width > 0 {
		ratio := float64(img.Height) / float64(img.Width)
		height = int(math.Round(float64(width) * ratio))
	}
	img.Width = max(width, MinImageSize)
	img.Height = max(height, MinImageSize)
	return nil
}

// Raise moves img to the top of the paint order.
func (o *Overlay) Raise(img *Image) error {
	i := o.index(img)
	if i < 0 {
		return ErrImageNotFound
	}
	o.images = append(append(o.images[:i], o.images[i+1:]...), img)
	return nil
}

// HitTest returns the topmost image containing document point (x, y).
func (o *Overlay) HitTest(x, y int) *Image {
	p := image.Pt(x, y)
	for i := len(o.images) - 1; i >= 0; i-- {
		if p.In(o.images[i].Bounds()) {
			return o.images[i]
		}
	}
	return nil
}

// Visible returns the images intersecting viewport, in paint order. The
// viewport is in document space, so scrolling the text moves it and the
// overlay together.
func (o *Overlay) Visible(viewport image.Rectangle) []*Image {
	var out []*Image
	for _, img := range o.images {
		if img.Bounds().Overlaps(viewport) {
			out = append(out, img)
		}
	}
	return out
}

func (o *Overlay) clone() *Overlay {
	c := &Overlay{images: make([]*Image, len(o.images)), bounds: o.bounds}
	for i, img := range o.images {
		cp := img.clone()
		cp.owner = c
		c.images[i] = cp
	}
	return c
}

func (o *Overlay) index(img *Image) int {
	if img == nil || img.owner != o {
		return -1
	}
	for i, m := range o.images {
		if m == img {
			return i
		}
	}
	return -1
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(hi, v))
}
