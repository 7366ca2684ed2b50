package editor

import "notemat/pkg/ntm"

// Save writes the document to path, or to the last saved path when path
// is empty. On success the path is remembered and the session is clean.
func (s *Session) Save(path string) error {
	return s.SaveWithOptions(path, ntm.SaveOptions{})
}

func (s *Session) SaveWithOptions(path string, opts ntm.SaveOptions) error {
	s.mu.Lock()
	if path == "" {
		path = s.path
	}
	if path == "" {
		s.mu.Unlock()
		return ErrNoPath
	}
	if err := ntm.SaveWithOptions(path, s.doc, opts); err != nil {
		s.mu.Unlock()
		return err
	}
	s.path = ntm.WithExtension(path)
	s.dirty = false
	ev := Event{Kind: EventSaved}
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// Load replaces the document with the one stored at path. On error the
// open document, caret and history are left as they were.
func (s *Session) Load(path string) error {
	return s.LoadWithOptions(path, ntm.LoadOptions{})
}

func (s *Session) LoadWithOptions(path string, opts ntm.LoadOptions) error {
	s.mu.Lock()
	doc, err := ntm.LoadWithOptions(path, opts)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.replaceLocked(doc)
	s.path = ntm.ResolveExisting(path)
	s.dirty = false
	ev := Event{Kind: EventDocument, End: doc.Len()}
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// New discards the document and history for an empty, untitled one.
func (s *Session) New() {
	s.mu.Lock()
	s.replaceLocked(ntm.NewDocument("", "Untitled"))
	s.path = ""
	s.dirty = false
	s.mu.Unlock()
	s.emit(Event{Kind: EventDocument})
}

// ImportText replaces the document with the plain text at path. The
// result has no save path and is dirty.
func (s *Session) ImportText(path string) error {
	doc, err := ntm.ImportTextFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.replaceLocked(doc)
	s.path = ""
	s.dirty = true
	ev := Event{Kind: EventDocument, End: doc.Len(), Dirty: true}
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// ExportText writes the text without styling or images.
func (s *Session) ExportText(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ntm.ExportTextFile(path, s.doc)
}

func (s *Session) replaceLocked(doc *ntm.Document) {
	s.resetLocked(doc)
	s.undo = nil
	s.redo = nil
}
