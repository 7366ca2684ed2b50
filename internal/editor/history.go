package editor

import "notemat/pkg/ntm"

func (s *Session) pushUndoLocked(snapshot *ntm.Document) {
	s.undo = append(s.undo, snapshot)
	if over := len(s.undo) - s.opts.UndoLimit; over > 0 {
		s.undo = append(s.undo[:0], s.undo[over:]...)
	}
	s.redo = nil
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 0
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// Undo restores the document as it was before the last change. It
// reports false when there is nothing to undo.
func (s *Session) Undo() bool {
	return s.step(&s.undo, &s.redo)
}

func (s *Session) Redo() bool {
	return s.step(&s.redo, &s.undo)
}

func (s *Session) step(from, to *[]*ntm.Document) bool {
	s.mu.Lock()
	if len(*from) == 0 {
		s.mu.Unlock()
		return false
	}
	last := len(*from) - 1
	prev := (*from)[last]
	*from = (*from)[:last]
	*to = append(*to, s.doc)

	prev.Images().SetBounds(s.opts.Bounds)
	s.doc = prev
	s.caret = min(s.caret, s.doc.Len())
	s.anchored = false
	s.syncPendingLocked()
	s.dirty = true
	ev := Event{Kind: EventDocument, Start: 0, End: s.doc.Len(), Dirty: true}
	s.mu.Unlock()
	s.emit(ev)
	return true
}
