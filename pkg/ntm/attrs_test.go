package ntm

import "testing"

func TestParseHex(t *testing.T) {
	got, err := ParseHex("#2B579A")
	if err != nil {
		t.Fatal(err)
	}
	if got != (RGB{0x2B, 0x57, 0x9A}) {
		t.Fatalf("ParseHex = %v", got)
	}
	if got.Hex() != "#2b579a" {
		t.Fatalf("Hex = %q", got.Hex())
	}
	for _, bad := range []string{"", "#12345", "#zzzzzz", "1234567"} {
		if _, err := ParseHex(bad); err == nil {
			t.Fatalf("ParseHex(%q): expected error", bad)
		}
	}
}

func TestSetFontSizeClamps(t *testing.T) {
	a := DefaultAttributes()
	if got := a.With(SetFontSize(2)).FontSize; got != MinFontSize {
		t.Fatalf("low clamp = %d", got)
	}
	if got := a.With(SetFontSize(400)).FontSize; got != MaxFontSize {
		t.Fatalf("high clamp = %d", got)
	}
	if got := a.With(SetFontFamily("  ")).FontFamily; got != DefaultFontFamily {
		t.Fatalf("blank family = %q", got)
	}
}

func TestWithChangesOnlyNamedProperty(t *testing.T) {
	base := DefaultAttributes().With(SetItalic(true), SetColor(RGB{R: 9}))
	got := base.With(SetBold(true))
	want := base
	want.Bold = true
	if got != want {
		t.Fatalf("With(bold) = %v, want %v", got, want)
	}
	if base.Bold {
		t.Fatalf("With mutated its receiver")
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultAttributes().Validate(); err != nil {
		t.Fatal(err)
	}
	bad := DefaultAttributes()
	bad.FontSize = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected size error")
	}
	bad = DefaultAttributes()
	bad.FontFamily = ""
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected family error")
	}
}
