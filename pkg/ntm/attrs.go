package ntm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	DefaultFontFamily = "Lexend"
	DefaultFontSize   = 14
	MinFontSize       = 8
	MaxFontSize       = 96
)

// RGB is an opaque text colour.
type RGB struct {
	R, G, B uint8
}

var DefaultColor = RGB{0x20, 0x20, 0x20}

// Hex formats the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex accepts #rrggbb or rrggbb.
func ParseHex(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("ntm: invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("ntm: invalid colour %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// StyleAttributes is the flat set of formatting properties carried by every
// character. It is a plain value; two sets are equal iff all fields match.
type StyleAttributes struct {
	FontFamily string
	FontSize   int
	Bold       bool
	Italic     bool
	Underline  bool
	Color      RGB
}

func DefaultAttributes() StyleAttributes {
	return StyleAttributes{FontFamily: DefaultFontFamily, FontSize: DefaultFontSize, Color: DefaultColor}
}

func (a StyleAttributes) Equal(b StyleAttributes) bool {
	return a == b
}

// With returns a copy of a with each change applied in order.
func (a StyleAttributes) With(changes ...Change) StyleAttributes {
	for _, c := range changes {
		a = c.apply(a)
	}
	return a
}

func (a StyleAttributes) Validate() error {
	if a.FontFamily == "" || !utf8.ValidString(a.FontFamily) {
		return errors.New("ntm: font family must be non-empty UTF-8")
	}
	if a.FontSize < MinFontSize || a.FontSize > MaxFontSize {
		return fmt.Errorf("ntm: font size %d outside %d..%d", a.FontSize, MinFontSize, MaxFontSize)
	}
	return nil
}

func (a StyleAttributes) String() string {
	var flags []string
	if a.Bold {
		flags = append(flags, "bold")
	}
	if a.Italic {
		flags = append(flags, "italic")
	}
	if a.Underline {
		flags = append(flags, "underline")
	}
	s := fmt.Sprintf("%s %dpt %s", a.FontFamily, a.FontSize, a.Color.Hex())
	if len(flags) > 0 {
		s += " " + strings.Join(flags, ",")
	}
	return s
}

// Property names one field of StyleAttributes.
type Property uint8

const (
	PropFontFamily Property = iota
	PropFontSize
	PropBold
	PropItalic
	PropUnderline
	PropColor
)

func (p Property) String() string {
	switch p {
	case PropFontFamily:
		return "font"
	case PropFontSize:
		return "size"
	case PropBold:
		return "bold"
	case PropItalic:
		return "italic"
	case PropUnderline:
		return "underline"
	case PropColor:
		return "color"
	}
	return "Property(" + strconv.Itoa(int(p)) + ")"
}

// Change is a partial update: it replaces exactly one property.
type Change struct {
	Property Property

	family string
	size   int
	flag   bool
	color  RGB
}

func SetFontFamily(family string) Change {
	if strings.TrimSpace(family) == "" {
		family = DefaultFontFamily
	}
	return Change{Property: PropFontFamily, family: family}
}

// SetFontSize clamps pt to MinFontSize..MaxFontSize.
func SetFontSize(pt int) Change {
	pt = max(MinFontSize, min(MaxFontSize, pt))
	return Change{Property: PropFontSize, size: pt}
}

func SetBold(v bool) Change      { return Change{Property: PropBold, flag: v} }
func SetItalic(v bool) Change    { return Change{Property: PropItalic, flag: v} }
func SetUnderline(v bool) Change { return Change{Property: PropUnderline, flag: v} }
func SetColor(c RGB) Change      { return Change{Property: PropColor, color: c} }

// ChangeFrom builds the change that copies property p from attrs.
func ChangeFrom(p Property, attrs StyleAttributes) Change {
	switch p {
	case PropFontFamily:
		return SetFontFamily(attrs.FontFamily)
	case PropFontSize:
		return SetFontSize(attrs.FontSize)
	case PropBold:
		return SetBold(attrs.Bold)
	case PropItalic:
		return SetItalic(attrs.Italic)
	case PropUnderline:
		return SetUnderline(attrs.Underline)
	default:
		return SetColor(attrs.Color)
	}
}

// AllChanges expands attrs into one change per property, for batch updates.
func AllChanges(attrs StyleAttributes) []Change {
	return []Change{
		ChangeFrom(PropFontFamily, attrs),
		ChangeFrom(PropFontSize, attrs),
		ChangeFrom(PropBold, attrs),
		ChangeFrom(PropItalic, attrs),
		ChangeFrom(PropUnderline, attrs),
		ChangeFrom(PropColor, attrs),
	}
}

func (c Change) apply(a StyleAttributes) StyleAttributes {
	switch c.Property {
	case PropFontFamily:
		a.FontFamily = c.family
	case PropFontSize:
		a.FontSize = c.size
	case PropBold:
		a.Bold = c.flag
	case PropItalic:
		a.Italic = c.flag
	case PropUnderline:
		a.Underline = c.flag
	case PropColor:
		a.Color = c.color
	}
	return a
}

func (c Change) String() string {
	switch c.Property {
	case PropFontFamily:
		return "font=" + c.family
	case PropFontSize:
		return "size=" + strconv.Itoa(c.size)
	case PropColor:
		return "color=" + c.color.Hex()
	}
	return c.Property.String() + "=" + strconv.FormatBool(c.flag)
}
