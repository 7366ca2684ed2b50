package ntm

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Marker is the zero-width character older editors used to carry a style at
// an empty caret. It is reserved: inserted text is filtered of it, so it is
// never stored, saved or exported.
const Marker = '\u200b'

type Metadata struct {
	Author       string
	Title        string
	CreatedUnix  int64
	ModifiedUnix int64
}

// Document is the styled text plus its floating images. Offsets count
// characters (runes), not bytes.
type Document struct {
	Metadata Metadata

	text   []rune
	spans  *SpanList
	images *Overlay
}

func NewDocument(author, title string) *Document {
	now := time.Now().Unix()
	return &Document{
		Metadata: Metadata{Author: author, Title: title, CreatedUnix: now, ModifiedUnix: now},
		spans:    &SpanList{},
		images:   NewOverlay(),
	}
}

// NewStyledDocument builds a document from text and spans; the spans must
// cover the text exactly and carry valid attributes, so the result can be
// saved and typed into.
func NewStyledDocument(text string, spans []Span) (*Document, error) {
	if !utf8.ValidString(text) {
		return nil, errors.New("ntm: text must be valid UTF-8")
	}
	for i, s := range spans {
		if err := s.Attrs.Validate(); err != nil {
			return nil, fmt.Errorf("%w: span[%d]: %w", ErrCorruptDocument, i, err)
		}
	}
	list, err := NewSpanList(spans...)
	if err != nil {
		return nil, err
	}
	doc := NewDocument("", "")
	doc.text = []rune(text)
	doc.spans = list
	if err := doc.CheckCoverage(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) Text() string { return string(d.text) }

// Len is the number of characters.
func (d *Document) Len() int { return len(d.text) }

// TextRange returns the characters in [start, end).
func (d *Document) TextRange(start, end int) (string, error) {
	if start < 0 || start > end || end > len(d.text) {
		return "", fmt.Errorf("%w: [%d,%d) against length %d", ErrInvalidRange, start, end, len(d.text))
	}
	return string(d.text[start:end]), nil
}

// Spans exposes the span list for reading. Mutate through Document methods
// so text and spans stay in step.
func (d *Document) Spans() *SpanList { return d.spans }

func (d *Document) Images() *Overlay { return d.images }

func (d *Document) AttributesAt(offset int) (StyleAttributes, error) {
	return d.spans.AttributesAt(offset)
}

// CheckCoverage verifies that the spans cover the text exactly.
func (d *Document) CheckCoverage() error {
	if d.spans.Len() != len(d.text) {
		return corruptf("spans cover %d characters, text has %d", d.spans.Len(), len(d.text))
	}
	return nil
}

// InsertText inserts s at offset with attrs. Marker characters are dropped
// from s. It returns the number of characters inserted.
func (d *Document) InsertText(offset int, s string, attrs StyleAttributes) (int, error) {
	if offset < 0 || offset > len(d.text) {
		return 0, fmt.Errorf("%w: insert at %d, length %d", ErrOutOfRange, offset, len(d.text))
	}
	if !utf8.ValidString(s) {
		return 0, errors.New("ntm: input must be valid UTF-8")
	}
	if err := attrs.Validate(); err != nil {
		return 0, err
	}
	ins := []rune(filterInput(s))
	if len(ins) == 0 {
		return 0, nil
	}
	if err := d.spans.Insert(offset, len(ins), attrs); err != nil {
		return 0, err
	}
	d.text = append(d.text[:offset], append(ins, d.text[offset:]...)...)
	return len(ins), nil
}

// InsertStyled inserts pre-styled content, as produced by Fragment.
func (d *Document) InsertStyled(offset int, f Fragment) error {
	if offset < 0 || offset > len(d.text) {
		return fmt.Errorf("%w: insert at %d, length %d", ErrOutOfRange, offset, len(d.text))
	}
	ins := []rune(f.Text)
	n, err := spanTotal(f.Spans)
	if err != nil {
		return err
	}
	if n != len(ins) {
		return fmt.Errorf("%w: fragment spans cover %d of %d characters", ErrInvalidRange, n, len(ins))
	}
	if strings.ContainsRune(f.Text, Marker) {
		return fmt.Errorf("%w: fragment contains a marker character", ErrInvalidRange)
	}
	if err := d.spans.InsertSpans(offset, f.Spans); err != nil {
		return err
	}
	d.text = append(d.text[:offset], append(ins, d.text[offset:]...)...)
	return nil
}

// DeleteText removes [start, end).
func (d *Document) DeleteText(start, end int) error {
	if start < 0 || start > end || end > len(d.text) {
		return fmt.Errorf("%w: delete [%d,%d) against length %d", ErrInvalidRange, start, end, len(d.text))
	}
	if err := d.spans.Delete(start, end); err != nil {
		return err
	}
	d.text = append(d.text[:start], d.text[end:]...)
	return nil
}

// ApplyStyle is ApplyStyle on the document's spans.
func (d *Document) ApplyStyle(start, end int, changes ...Change) error {
	return ApplyStyle(d.spans, start, end, changes...)
}

// Fragment is a styled slice of a document, used for copy and paste.
type Fragment struct {
	Text  string
	Spans []Span
}

func (d *Document) Fragment(start, end int) (Fragment, error) {
	spans, err := d.spans.Slice(start, end)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{Text: string(d.text[start:end]), Spans: spans}, nil
}

// Replace swaps in the contents of other wholesale. other must not be used
// afterwards.
func (d *Document) Replace(other *Document) {
	d.Metadata = other.Metadata
	d.text = other.text
	d.spans = other.spans
	d.images = other.images
}

func CloneDocument(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	return &Document{
		Metadata: doc.Metadata,
		text:     append([]rune(nil), doc.text...),
		spans:    doc.spans.Clone(),
		images:   doc.images.clone(),
	}
}

func filterInput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !strings.ContainsRune(s, Marker) {
		return s
	}
	return strings.ReplaceAll(s, string(Marker), "")
}
