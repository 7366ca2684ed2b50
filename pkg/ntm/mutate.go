package ntm

import "fmt"

// ApplyStyle overrides the given properties for every character in
// [start, end) and leaves all other properties, and every character
// outside the range, untouched. Spans are walked once: a span straddling a
// boundary is split into an unaffected prefix, an overridden middle and an
// unaffected suffix, and the middles replace the range through Splice.
//
// start == end is a no-op here; the caret-only case belongs to the caller's
// pending input attributes. On error the list is not modified.
func ApplyStyle(l *SpanList, start, end int, changes ...Change) error {
	if l == nil {
		return fmt.Errorf("%w: nil span list", ErrInvalidRange)
	}
	if start < 0 || start > end || end > l.Len() {
		return fmt.Errorf("%w: style [%d,%d) against coverage %d", ErrInvalidRange, start, end, l.Len())
	}
	if start == end || len(changes) == 0 {
		return nil
	}

	middle := make([]Span, 0, 4)
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
		piece := Span{Length: min(re, end) - max(rs, start), Attrs: s.Attrs.With(changes...)}
		if n := len(middle); n > 0 && middle[n-1].Attrs == piece.Attrs {
			middle[n-1].Length += piece.Length
			continue
		}
		middle = append(middle, piece)
	}
	return l.Splice(start, end, middle)
}

// ToggleState reports whether every character in [start, end) has the
// boolean property p set. Toolbars use it to decide the value a toggle
// should apply to a selection.
func ToggleState(l *SpanList, start, end int, p Property) (bool, error) {
	spans, err := l.Slice(start, end)
	if err != nil {
		return false, err
	}
	if len(spans) == 0 {
		return false, nil
	}
	for _, s := range spans {
		var v bool
		switch p {
		case PropBold:
			v = s.Attrs.Bold
		case PropItalic:
			v = s.Attrs.Italic
		case PropUnderline:
			v = s.Attrs.Underline
		default:
			return false, fmt.Errorf("ntm: %s is not a toggle property", p)
		}
		if !v {
			return false, nil
		}
	}
	return true, nil
}
