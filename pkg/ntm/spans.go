package ntm

import "fmt"

// Span is a run of Length consecutive characters sharing Attrs.
type Span struct {
	Length int
	Attrs  StyleAttributes
}

// SpanList is a run-length encoding of per-character attributes. Span i
// covers [offset_i, offset_i+Length_i) with offset_0 = 0, so the list
// always covers exactly [0, Len()) with no gaps or overlaps. An empty list
// covers an empty text.
type SpanList struct {
	spans []Span
	total int
}

// NewSpanList copies spans into a new list. Every span must be non-empty.
func NewSpanList(spans ...Span) (*SpanList, error) {
	l := &SpanList{spans: make([]Span, 0, len(spans))}
	for i, s := range spans {
		if s.Length <= 0 {
			return nil, fmt.Errorf("%w: span[%d] length %d", ErrInvalidRange, i, s.Length)
		}
		l.spans = append(l.spans, s)
		l.total += s.Length
	}
	return l, nil
}

// UniformSpanList covers n characters with a single span.
func UniformSpanList(n int, attrs StyleAttributes) *SpanList {
	if n <= 0 {
		return &SpanList{}
	}
	return &SpanList{spans: []Span{{Length: n, Attrs: attrs}}, total: n}
}

// Len is the coverage length: the sum of all span lengths.
func (l *SpanList) Len() int { return l.total }

func (l *SpanList) NumSpans() int { return len(l.spans) }

// Spans returns a copy of the spans in order.
func (l *SpanList) Spans() []Span {
	out := make([]Span, len(l.spans))
	copy(out, l.spans)
	return out
}

func (l *SpanList) Clone() *SpanList {
	return &SpanList{spans: l.Spans(), total: l.total}
}

// AttributesAt returns the attributes of the span containing offset.
func (l *SpanList) AttributesAt(offset int) (StyleAttributes, error) {
	if offset < 0 || offset >= l.total {
		return StyleAttributes{}, fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, offset, l.total)
	}
	i, _ := l.find(offset)
	return l.spans[i].Attrs, nil
}

// Slice returns the spans clipped to [start, end).
func (l *SpanList) Slice(start, end int) ([]Span, error) {
	if err := l.checkRange(start, end); err != nil {
		return nil, err
	}
	var out []Span
	pos := 0
	for _, s := range l.spans {
		rs, re := pos, pos+s.Length
		pos = re
		if re <= start {
			continue
		}
		if rs >= end {
			break
		}
		out = append(out, Span{Length: min(re, end) - max(rs, start), Attrs: s.Attrs})
	}
	return out, nil
}

// Splice replaces the spans covering [start, end) with repl, whose total
// length must equal end-start. Neighbours with identical attributes are
// coalesced at the seams.
func (l *SpanList) Splice(start, end int, repl []Span) error {
	if err := l.checkRange(start, end); err != nil {
		return err
	}
	n, err := spanTotal(repl)
	if err != nil {
		return err
	}
	if n != end-start {
		return fmt.Errorf("%w: replacement covers %d, range is %d", ErrInvalidRange, n, end-start)
	}
	l.replace(start, end, repl)
	return nil
}

// Insert grows coverage by n characters at offset, carrying attrs.
func (l *SpanList) Insert(offset, n int, attrs StyleAttributes) error {
	if offset < 0 || offset > l.total {
		return fmt.Errorf("%w: insert at %d, coverage %d", ErrOutOfRange, offset, l.total)
	}
	if n < 0 {
		return fmt.Errorf("%w: insert length %d", ErrInvalidRange, n)
	}
	if n == 0 {
		return nil
	}
	l.replace(offset, offset, []Span{{Length: n, Attrs: attrs}})
	return nil
}

// InsertSpans grows coverage at offset by the given spans.
func (l *SpanList) InsertSpans(offset int, spans []Span) error {
	if offset < 0 || offset > l.total {
		return fmt.Errorf("%w: insert at %d, coverage %d", ErrOutOfRange, offset, l.total)
	}
	if _, err := spanTotal(spans); err != nil {
		return err
	}
	l.replace(offset, offset, spans)
	return nil
}

// Delete shrinks coverage by removing [start, end).
func (l *SpanList) Delete(start, end int) error {
	if err := l.checkRange(start, end); err != nil {
		return err
	}
	l.replace(start, end, nil)
	return nil
}

// Compact merges every pair of adjacent spans with identical attributes.
func (l *SpanList) Compact() {
	l.spans = coalesce(l.spans)
}

func (l *SpanList) checkRange(start, end int) error {
	if start < 0 || start > end || end > l.total {
		return fmt.Errorf("%w: [%d,%d) against coverage %d", ErrInvalidRange, start, end, l.total)
	}
	return nil
}

// find returns the index of the span containing offset and the offset at
// which that span starts. For offset == Len() it returns (NumSpans(), Len()).
func (l *SpanList) find(offset int) (int, int) {
	pos := 0
	for i, s := range l.spans {
		if offset < pos+s.Length {
			return i, pos
		}
		pos += s.Length
	}
	return len(l.spans), pos
}

// replace is the unchecked splice; repl may differ in length from the range.
func (l *SpanList) replace(start, end int, repl []Span) {
	out := make([]Span, 0, len(l.spans)+len(repl)+2)
	pos, i := 0, 0
	for i < len(l.spans) && pos+l.spans[i].Length <= start {
		out = append(out, l.spans[i])
		pos += l.spans[i].Length
		i++
	}
	if i < len(l.spans) && pos < start {
		out = append(out, Span{Length: start - pos, Attrs: l.spans[i].Attrs})
	}
	seamLo := len(out) - 1
	out = append(out, repl...)
	for i < len(l.spans) && pos+l.spans[i].Length <= end {
		pos += l.spans[i].Length
		i++
	}
	seamHi := len(out)
	if i < len(l.spans) {
		s := l.spans[i]
		if pos < end {
			s.Length = pos + s.Length - end
		}
		out = append(out, s)
		i++
	}
	out = append(out, l.spans[i:]...)

	l.spans = coalesceWindow(out, max(seamLo, 0), min(seamHi, len(out)-1))
	l.total -= end - start
	for _, s := range repl {
		l.total += s.Length
	}
}

// coalesceWindow merges equal neighbours among spans[lo..hi] inclusive.
func coalesceWindow(spans []Span, lo, hi int) []Span {
	if len(spans) < 2 || lo >= hi {
		return spans
	}
	out := append([]Span(nil), spans[:lo+1]...)
	for j := lo + 1; j < len(spans); j++ {
		s := spans[j]
		last := &out[len(out)-1]
		if j <= hi && last.Attrs == s.Attrs {
			last.Length += s.Length
			continue
		}
		out = append(out, s)
	}
	return out
}

func coalesce(spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}
	return coalesceWindow(spans, 0, len(spans)-1)
}

func spanTotal(spans []Span) (int, error) {
	n := 0
	for i, s := range spans {
		if s.Length <= 0 {
			return 0, fmt.Errorf("%w: span[%d] length %d", ErrInvalidRange, i, s.Length)
		}
		n += s.Length
	}
	return n, nil
}
