package editor

import (
	"image"

	"notemat/pkg/ntm"
)

func (s *Session) AddImage(img *ntm.Image, x, y int) error {
	return s.edit(func() (Event, bool, error) {
		if err := s.doc.Images().Add(img, x, y); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventImages}, true, nil
	})
}

// PasteImage places img just inside the top-left of the visible area.
func (s *Session) PasteImage(img *ntm.Image) error {
	return s.edit(func() (Event, bool, error) {
		if err := s.doc.Images().Add(img, PasteMargin, s.scrollY+PasteMargin); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventImages}, true, nil
	})
}

func (s *Session) MoveImage(img *ntm.Image, dx, dy int) error {
	return s.edit(func() (Event, bool, error) {
		if err := s.doc.Images().Move(img, dx, dy); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventImages}, dx != 0 || dy != 0, nil
	})
}

func (s *Session) ResizeImage(img *ntm.Image, width, height int, lockAspect bool) error {
	return s.edit(func() (Event, bool, error) {
		if err := s.doc.Images().Resize(img, width, height, lockAspect); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventImages}, true, nil
	})
}

func (s *Session) DeleteImage(img *ntm.Image) error {
	return s.edit(func() (Event, bool, error) {
		if err := s.doc.Images().Remove(img); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventImages}, true, nil
	})
}

func (s *Session) RaiseImage(img *ntm.Image) error {
	return s.edit(func() (Event, bool, error) {
		if err := s.doc.Images().Raise(img); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventImages}, true, nil
	})
}

// ImageAt hit-tests a point in viewport coordinates.
func (s *Session) ImageAt(x, y int) *ntm.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Images().HitTest(x, y+s.scrollY)
}

func (s *Session) Images() []*ntm.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Images().Images()
}

// SetScroll sets the vertical scroll offset shared by text and images.
func (s *Session) SetScroll(y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollY = max(0, y)
}

func (s *Session) ScrollY() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollY
}

// Viewport is the document-space rectangle of a width x height view at
// the current scroll offset.
func (s *Session) Viewport(width, height int) image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return image.Rect(0, s.scrollY, width, s.scrollY+height)
}

// VisibleImages returns the images intersecting the current viewport.
func (s *Session) VisibleImages(width, height int) []*ntm.Image {
	vp := s.Viewport(width, height)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Images().Visible(vp)
}
