package editor

import "unicode"

func (s *Session) Caret() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caret
}

// SetCaret moves the caret to offset, clamped to the document. Moving the
// caret drops any explicitly chosen pending style.
func (s *Session) SetCaret(offset int) {
	s.moveCaret(func() int { return offset })
}

func (s *Session) MoveCaretLeft() {
	s.moveCaret(func() int { return s.caret - 1 })
}

func (s *Session) MoveCaretRight() {
	s.moveCaret(func() int { return s.caret + 1 })
}

func (s *Session) MoveCaretWordLeft() {
	s.moveCaret(func() int { return previousWordStart(s.runesLocked(), s.caret) })
}

func (s *Session) MoveCaretWordRight() {
	s.moveCaret(func() int { return nextWordEnd(s.runesLocked(), s.caret) })
}

func (s *Session) MoveCaretToLineStart() {
	s.moveCaret(func() int {
		text := s.runesLocked()
		pos := s.caret
		for pos > 0 && text[pos-1] != '\n' {
			pos--
		}
		return pos
	})
}

func (s *Session) MoveCaretToLineEnd() {
	s.moveCaret(func() int {
		text := s.runesLocked()
		pos := s.caret
		for pos < len(text) && text[pos] != '\n' {
			pos++
		}
		return pos
	})
}

func (s *Session) moveCaret(target func() int) {
	s.mu.Lock()
	pos := max(0, min(s.doc.Len(), target()))
	s.caret = pos
	s.syncPendingLocked()
	ev := Event{Kind: EventCaret, Start: pos, End: pos, Dirty: s.dirty}
	s.mu.Unlock()
	s.emit(ev)
}

func (s *Session) HasSelection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, ok := s.selectionLocked()
	return ok
}

// EnsureSelectionAnchor drops an anchor at the caret unless one is set.
func (s *Session) EnsureSelectionAnchor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.anchored {
		s.anchor = s.caret
		s.anchored = true
	}
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchored = false
}

// Select sets the selection to [start, end) with the caret at end.
func (s *Session) Select(start, end int) {
	s.mu.Lock()
	n := s.doc.Len()
	s.anchor = max(0, min(n, start))
	s.caret = max(0, min(n, end))
	s.anchored = true
	s.syncPendingLocked()
	ev := Event{Kind: EventCaret, Start: s.anchor, End: s.caret, Dirty: s.dirty}
	s.mu.Unlock()
	s.emit(ev)
}

func (s *Session) SelectAll() {
	s.Select(0, s.Len())
}

// SelectionRange returns the ordered selection bounds.
func (s *Session) SelectionRange() (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionLocked()
}

func (s *Session) SelectedText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, b, ok := s.selectionLocked()
	if !ok {
		return ""
	}
	text, _ := s.doc.TextRange(a, b)
	return text
}

func (s *Session) selectionLocked() (int, int, bool) {
	if !s.anchored || s.anchor == s.caret {
		return 0, 0, false
	}
	a, b := s.anchor, s.caret
	if a > b {
		a, b = b, a
	}
	n := s.doc.Len()
	return min(a, n), min(b, n), true
}

func (s *Session) runesLocked() []rune {
	return []rune(s.doc.Text())
}

// previousWordBoundary skips spaces then non-spaces leftwards, the span a
// word delete removes.
func previousWordBoundary(text []rune, pos int) int {
	pos = max(0, min(len(text), pos))
	for pos > 0 && unicode.IsSpace(text[pos-1]) {
		pos--
	}
	for pos > 0 && !unicode.IsSpace(text[pos-1]) {
		pos--
	}
	return pos
}

func nextWordBoundary(text []rune, pos int) int {
	pos = max(0, min(len(text), pos))
	for pos < len(text) && unicode.IsSpace(text[pos]) {
		pos++
	}
	for pos < len(text) && !unicode.IsSpace(text[pos]) {
		pos++
	}
	return pos
}

// previousWordStart and nextWordEnd move over word characters, skipping
// punctuation, for caret motion.
func previousWordStart(text []rune, pos int) int {
	pos = max(0, min(len(text), pos))
	for pos > 0 && !isWordRune(text[pos-1]) {
		pos--
	}
	for pos > 0 && isWordRune(text[pos-1]) {
		pos--
	}
	return pos
}

func nextWordEnd(text []rune, pos int) int {
	pos = max(0, min(len(text), pos))
	for pos < len(text) && !isWordRune(text[pos]) {
		pos++
	}
	for pos < len(text) && isWordRune(text[pos]) {
		pos++
	}
	return pos
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
