package editor

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"unicode/utf8"

	"notemat/pkg/ntm"
)

const DefaultUndoLimit = 100

// PasteMargin is the offset from the top-left of the visible area at which
// pasted images are placed.
const PasteMargin = 10

var ErrNoPath = errors.New("editor: no save path")

type Options struct {
	// Bounds is the overlay container. Image moves keep at least one pixel
	// inside it; an empty rectangle disables clamping.
	Bounds    image.Rectangle
	UndoLimit int
}

type EventKind uint8

const (
	EventText EventKind = iota + 1
	EventStyle
	EventPendingStyle
	EventImages
	EventCaret
	EventDocument
	EventSaved
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventStyle:
		return "style"
	case EventPendingStyle:
		return "pending-style"
	case EventImages:
		return "images"
	case EventCaret:
		return "caret"
	case EventDocument:
		return "document"
	case EventSaved:
		return "saved"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event describes one completed change. Start and End bound the affected
// characters for text and style events.
type Event struct {
	Kind       EventKind
	Start, End int
	Dirty      bool
}

type Listener func(Event)

type subscriber struct {
	id int
	fn Listener
}

// Session owns one document and serialises every mutation and codec call
// against it. Listeners run after the lock is released, in subscription
// order.
//
// Image handles returned by the session stay valid until the next Undo,
// Redo, Load or New, which swap in a different document.
type Session struct {
	mu   sync.Mutex
	opts Options
	doc  *ntm.Document

	caret    int
	anchor   int
	anchored bool

	pending  ntm.StyleAttributes
	explicit bool

	scrollY int
	path    string
	dirty   bool

	undo []*ntm.Document
	redo []*ntm.Document

	subs   []subscriber
	nextID int
}

func NewSession(doc *ntm.Document, opts Options) *Session {
	if doc == nil {
		doc = ntm.NewDocument("", "Untitled")
	}
	if opts.UndoLimit <= 0 {
		opts.UndoLimit = DefaultUndoLimit
	}
	s := &Session{opts: opts}
	s.resetLocked(doc)
	return s
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}

type editFunc func() (Event, bool, error)

// edit runs fn under the lock. When fn reports a document change the
// pre-edit snapshot goes on the undo stack and the session becomes dirty;
// a change followed by an error is rolled back to the snapshot. A non-zero
// event is delivered once the lock is released.
func (s *Session) edit(fn editFunc) error {
	return s.editIf(nil, fn)
}

// editIf is edit with a guard checked under the lock. When touchesDoc
// reports false no snapshot is taken and fn must leave the document alone.
func (s *Session) editIf(touchesDoc func() bool, fn editFunc) error {
	s.mu.Lock()
	var before *ntm.Document
	if touchesDoc == nil || touchesDoc() {
		before = ntm.CloneDocument(s.doc)
	}
	ev, changed, err := fn()
	switch {
	case before == nil:
	case err == nil && changed:
		s.pushUndoLocked(before)
		s.dirty = true
	case err != nil && changed:
		s.doc.Replace(before)
		s.caret = min(s.caret, s.doc.Len())
		s.anchored = false
		s.syncPendingLocked()
	}
	ev.Dirty = s.dirty
	s.mu.Unlock()
	if err == nil && ev.Kind != 0 {
		s.emit(ev)
	}
	return err
}

func (s *Session) resetLocked(doc *ntm.Document) {
	doc.Images().SetBounds(s.opts.Bounds)
	s.doc = doc
	s.caret = 0
	s.anchored = false
	s.scrollY = 0
	s.pending = ntm.DefaultAttributes()
	s.syncPendingLocked()
}

// Snapshot returns an independent copy of the document.
func (s *Session) Snapshot() *ntm.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ntm.CloneDocument(s.doc)
}

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Text()
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Len()
}

func (s *Session) Metadata() ntm.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Metadata
}

func (s *Session) SetMetadata(author, title string) {
	_ = s.edit(func() (Event, bool, error) {
		s.doc.Metadata.Author = author
		s.doc.Metadata.Title = title
		return Event{Kind: EventDocument}, true, nil
	})
}

func (s *Session) AttributesAt(offset int) (ntm.StyleAttributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.AttributesAt(offset)
}

// CurrentStyle is what a toolbar shows: the first selected character's
// attributes, or the pending input style when there is no selection.
func (s *Session) CurrentStyle() ntm.StyleAttributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, _, ok := s.selectionLocked(); ok {
		attrs, _ := s.doc.AttributesAt(a)
		return attrs
	}
	return s.pending
}

// PendingStyle reports the style the next typed character gets and whether
// it was set explicitly rather than inherited from the caret position.
func (s *Session) PendingStyle() (ntm.StyleAttributes, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.explicit
}

func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// InsertText replaces the selection, if any, with text at the caret. The
// inserted characters take the pending style when it was set explicitly,
// otherwise the style of the character they follow.
func (s *Session) InsertText(text string) (int, error) {
	if !utf8.ValidString(text) {
		return 0, errors.New("editor: input must be valid UTF-8")
	}
	var n int
	err := s.edit(func() (Event, bool, error) {
		attrs := s.pending
		if !s.explicit {
			if a, _, ok := s.selectionLocked(); ok {
				attrs, _ = s.doc.AttributesAt(a)
			}
		}
		removed, err := s.deleteSelectionLocked()
		if err != nil {
			return Event{}, false, err
		}
		start := s.caret
		n, err = s.doc.InsertText(start, text, attrs)
		if err != nil {
			return Event{}, removed, err
		}
		s.caret += n
		s.pending = attrs
		s.explicit = false
		return Event{Kind: EventText, Start: start, End: start + n}, removed || n > 0, nil
	})
	return n, err
}

// InsertTextAt inserts text at offset with the style of the preceding
// character, leaving the selection alone. The caret shifts if it sits at or
// after offset.
func (s *Session) InsertTextAt(offset int, text string) (int, error) {
	var n int
	err := s.edit(func() (Event, bool, error) {
		if offset < 0 || offset > s.doc.Len() {
			return Event{}, false, fmt.Errorf("%w: insert at %d, length %d", ntm.ErrOutOfRange, offset, s.doc.Len())
		}
		var err error
		n, err = s.doc.InsertText(offset, text, s.inheritedLocked(offset))
		if err != nil {
			return Event{}, false, err
		}
		if s.caret >= offset {
			s.caret += n
		}
		if s.anchored && s.anchor >= offset {
			s.anchor += n
		}
		return Event{Kind: EventText, Start: offset, End: offset + n}, n > 0, nil
	})
	return n, err
}

// DeleteText removes [start, end) and collapses the selection.
func (s *Session) DeleteText(start, end int) error {
	return s.edit(func() (Event, bool, error) {
		if err := s.deleteRangeLocked(start, end); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventText, Start: start, End: start}, end > start, nil
	})
}

func (s *Session) Backspace() error {
	return s.edit(func() (Event, bool, error) {
		return s.deleteBackwardLocked(func(pos int) int { return pos - 1 })
	})
}

func (s *Session) DeleteForward() error {
	return s.edit(func() (Event, bool, error) {
		return s.deleteForwardLocked(func(pos int) int { return pos + 1 })
	})
}

func (s *Session) DeleteWordBackward() error {
	return s.edit(func() (Event, bool, error) {
		return s.deleteBackwardLocked(func(pos int) int { return previousWordBoundary(s.runesLocked(), pos) })
	})
}

func (s *Session) DeleteWordForward() error {
	return s.edit(func() (Event, bool, error) {
		return s.deleteForwardLocked(func(pos int) int { return nextWordBoundary(s.runesLocked(), pos) })
	})
}

func (s *Session) deleteBackwardLocked(boundary func(int) int) (Event, bool, error) {
	if a, _, ok := s.selectionLocked(); ok {
		_, err := s.deleteSelectionLocked()
		return Event{Kind: EventText, Start: a, End: a}, err == nil, err
	}
	if s.caret == 0 {
		return Event{}, false, nil
	}
	start := max(boundary(s.caret), 0)
	if err := s.deleteRangeLocked(start, s.caret); err != nil {
		return Event{}, false, err
	}
	return Event{Kind: EventText, Start: start, End: start}, true, nil
}

func (s *Session) deleteForwardLocked(boundary func(int) int) (Event, bool, error) {
	if a, _, ok := s.selectionLocked(); ok {
		_, err := s.deleteSelectionLocked()
		return Event{Kind: EventText, Start: a, End: a}, err == nil, err
	}
	if s.caret >= s.doc.Len() {
		return Event{}, false, nil
	}
	end := min(boundary(s.caret), s.doc.Len())
	start := s.caret
	if err := s.deleteRangeLocked(start, end); err != nil {
		return Event{}, false, err
	}
	return Event{Kind: EventText, Start: start, End: start}, true, nil
}

func (s *Session) deleteSelectionLocked() (bool, error) {
	a, b, ok := s.selectionLocked()
	if !ok {
		s.anchored = false
		return false, nil
	}
	return true, s.deleteRangeLocked(a, b)
}

func (s *Session) deleteRangeLocked(start, end int) error {
	if err := s.doc.DeleteText(start, end); err != nil {
		return err
	}
	switch {
	case s.caret >= end:
		s.caret -= end - start
	case s.caret > start:
		s.caret = start
	}
	s.anchored = false
	s.syncPendingLocked()
	return nil
}

// ApplyStyle applies changes to the selection. With no selection the
// changes go into the pending input style instead, so the next typed
// characters carry them.
func (s *Session) ApplyStyle(changes ...ntm.Change) error {
	return s.restyle(func(ntm.StyleAttributes) ([]ntm.Change, error) {
		return changes, nil
	})
}

// restyle derives changes from the current style and applies them within
// one locked edit: to the selection, or to the pending style at a bare
// caret.
func (s *Session) restyle(derive func(cur ntm.StyleAttributes) ([]ntm.Change, error)) error {
	return s.editIf(s.hasSelectionLocked, func() (Event, bool, error) {
		a, b, ok := s.selectionLocked()
		cur := s.pending
		if ok {
			cur, _ = s.doc.AttributesAt(a)
		}
		changes, err := derive(cur)
		if err != nil {
			return Event{}, false, err
		}
		if !ok {
			s.pending = s.pending.With(changes...)
			s.explicit = true
			return Event{Kind: EventPendingStyle, Start: s.caret, End: s.caret}, false, nil
		}
		return s.applyRangeLocked(a, b, changes)
	})
}

func (s *Session) hasSelectionLocked() bool {
	_, _, ok := s.selectionLocked()
	return ok
}

// ApplyStyleRange applies changes to [start, end) regardless of selection.
func (s *Session) ApplyStyleRange(start, end int, changes ...ntm.Change) error {
	return s.edit(func() (Event, bool, error) {
		return s.applyRangeLocked(start, end, changes)
	})
}

func (s *Session) applyRangeLocked(start, end int, changes []ntm.Change) (Event, bool, error) {
	if err := s.doc.ApplyStyle(start, end, changes...); err != nil {
		return Event{}, false, err
	}
	if !s.explicit {
		s.syncPendingLocked()
	}
	changed := start < end && len(changes) > 0
	if !changed {
		return Event{}, false, nil
	}
	return Event{Kind: EventStyle, Start: start, End: end}, true, nil
}

// SetPendingInputStyle replaces the pending input style wholesale.
func (s *Session) SetPendingInputStyle(attrs ntm.StyleAttributes) error {
	if err := attrs.Validate(); err != nil {
		return err
	}
	return s.editIf(func() bool { return false }, func() (Event, bool, error) {
		s.pending = attrs
		s.explicit = true
		return Event{Kind: EventPendingStyle, Start: s.caret, End: s.caret}, false, nil
	})
}

func (s *Session) ToggleBold() error      { return s.toggle(ntm.PropBold) }
func (s *Session) ToggleItalic() error    { return s.toggle(ntm.PropItalic) }
func (s *Session) ToggleUnderline() error { return s.toggle(ntm.PropUnderline) }

func (s *Session) toggle(p ntm.Property) error {
	return s.restyle(func(cur ntm.StyleAttributes) ([]ntm.Change, error) {
		on := flagOf(cur, p)
		if a, b, ok := s.selectionLocked(); ok {
			var err error
			if on, err = ntm.ToggleState(s.doc.Spans(), a, b, p); err != nil {
				return nil, err
			}
		}
		c, err := flagChange(p, !on)
		if err != nil {
			return nil, err
		}
		return []ntm.Change{c}, nil
	})
}

func (s *Session) IncreaseFontSize() error { return s.stepFontSize(1) }
func (s *Session) DecreaseFontSize() error { return s.stepFontSize(-1) }

func (s *Session) stepFontSize(delta int) error {
	return s.restyle(func(cur ntm.StyleAttributes) ([]ntm.Change, error) {
		return []ntm.Change{ntm.SetFontSize(cur.FontSize + delta)}, nil
	})
}

var palette = []ntm.RGB{
	ntm.DefaultColor,
	{R: 0x00, G: 0x57, B: 0xB8},
	{R: 0xA3, G: 0x15, B: 0x15},
	{R: 0x11, G: 0x7A, B: 0x37},
	{R: 0x7A, G: 0x2D, B: 0xB8},
}

// CycleColor steps the current colour through a fixed palette.
func (s *Session) CycleColor() error {
	return s.restyle(func(cur ntm.StyleAttributes) ([]ntm.Change, error) {
		idx := 0
		for i := range palette {
			if palette[i] == cur.Color {
				idx = i
				break
			}
		}
		return []ntm.Change{ntm.SetColor(palette[(idx+1)%len(palette)])}, nil
	})
}

func flagOf(a ntm.StyleAttributes, p ntm.Property) bool {
	switch p {
	case ntm.PropBold:
		return a.Bold
	case ntm.PropItalic:
		return a.Italic
	case ntm.PropUnderline:
		return a.Underline
	}
	return false
}

func flagChange(p ntm.Property, v bool) (ntm.Change, error) {
	switch p {
	case ntm.PropBold:
		return ntm.SetBold(v), nil
	case ntm.PropItalic:
		return ntm.SetItalic(v), nil
	case ntm.PropUnderline:
		return ntm.SetUnderline(v), nil
	}
	return ntm.Change{}, fmt.Errorf("editor: %s is not a toggle", p)
}

// Copy returns the selected text with its styling.
func (s *Session) Copy() (ntm.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, b, ok := s.selectionLocked()
	if !ok {
		return ntm.Fragment{}, false
	}
	f, err := s.doc.Fragment(a, b)
	return f, err == nil
}

// Paste replaces the selection with a styled fragment.
func (s *Session) Paste(f ntm.Fragment) error {
	return s.edit(func() (Event, bool, error) {
		removed, err := s.deleteSelectionLocked()
		if err != nil {
			return Event{}, false, err
		}
		start := s.caret
		if err := s.doc.InsertStyled(start, f); err != nil {
			return Event{}, removed, err
		}
		n := utf8.RuneCountInString(f.Text)
		s.caret += n
		s.syncPendingLocked()
		return Event{Kind: EventText, Start: start, End: start + n}, removed || n > 0, nil
	})
}

// inheritedLocked is the style a character inserted at offset takes when
// nothing was chosen explicitly.
func (s *Session) inheritedLocked(offset int) ntm.StyleAttributes {
	if offset > 0 {
		if a, err := s.doc.AttributesAt(offset - 1); err == nil {
			return a
		}
	}
	if a, err := s.doc.AttributesAt(offset); err == nil {
		return a
	}
	return s.pending
}

func (s *Session) syncPendingLocked() {
	s.pending = s.inheritedLocked(s.caret)
	s.explicit = false
}
