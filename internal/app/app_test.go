package app

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"notemat/pkg/ntm"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	a := &App{Args: args, Stdout: &out, Stderr: io.Discard}
	if err := a.Run(); err != nil {
		t.Fatalf("ntm %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.RGBA{0x7A, 0x2D, 0xB8, 0xFF})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, m); err != nil {
		t.Fatal(err)
	}
}

func TestCommandsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes")

	run(t, "new", "-title", "Groceries", "-author", "Sam", doc)
	run(t, "append", "-text", "Hello world", doc)
	run(t, "style", "-range", "0:5", "-bold", "true", "-color", "#a31515", doc)

	loaded, err := ntm.Load(doc)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Text() != "Hello world" || loaded.Metadata.Title != "Groceries" {
		t.Fatalf("unexpected document %q %+v", loaded.Text(), loaded.Metadata)
	}
	a, _ := loaded.AttributesAt(4)
	if !a.Bold || a.Color != (ntm.RGB{R: 0xA3, G: 0x15, B: 0x15}) {
		t.Fatalf("style not applied: %v", a)
	}
	if a, _ := loaded.AttributesAt(5); a.Bold {
		t.Fatalf("style leaked past the range")
	}

	out := run(t, "inspect", doc)
	for _, want := range []string{"Groceries", "characters: 11", "spans:      2", "content.dat", "images.dat"} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out)
		}
	}

	if got := run(t, "export", doc); got != "Hello world" {
		t.Fatalf("export = %q", got)
	}
}

func TestImportThenExportFile(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "todo.txt")
	if err := os.WriteFile(txt, []byte("a\r\nb"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, "import", txt)

	out := filepath.Join(dir, "back.txt")
	run(t, "export", "-o", out, filepath.Join(dir, "todo.ntm"))
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a\nb" {
		t.Fatalf("exported %q", b)
	}
}

func TestPasteImageAndPreview(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "pic.ntm")
	pic := filepath.Join(dir, "pic.png")
	writePNG(t, pic, 30, 20)

	run(t, "new", doc)
	run(t, "paste-image", "-file", pic, "-scroll", "100", doc)

	loaded, err := ntm.Load(doc)
	if err != nil {
		t.Fatal(err)
	}
	imgs := loaded.Images().Images()
	if len(imgs) != 1 || imgs[0].X != 10 || imgs[0].Y != 110 {
		t.Fatalf("unexpected images: %d", len(imgs))
	}

	preview := filepath.Join(dir, "view.png")
	run(t, "preview", "-o", preview, "-width", "100", "-height", "100", "-scroll", "100", doc)
	f, err := os.Open(preview)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	m, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := m.At(20, 15).RGBA()
	if r>>8 != 0x7A || g>>8 != 0x2D || b>>8 != 0xB8 {
		t.Fatalf("preview pixel = %x %x %x", r>>8, g>>8, b>>8)
	}
}

func TestEncryptedDocumentNeedsPassword(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "secret.ntm")
	run(t, "new", "-encrypt", "-password", "pw", doc)
	run(t, "append", "-password", "pw", "-text", "hidden", doc)

	a := &App{Args: []string{"export", doc}, Stdout: io.Discard, Stderr: io.Discard}
	if err := a.Run(); err == nil {
		t.Fatalf("expected password error")
	}
	if got := run(t, "export", "-password", "pw", doc); got != "hidden" {
		t.Fatalf("export = %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	a := &App{Args: []string{"frobnicate"}, Stdout: io.Discard, Stderr: io.Discard}
	if err := a.Run(); err == nil {
		t.Fatalf("expected error")
	}
	a = &App{Args: []string{"inspect"}, Stdout: io.Discard, Stderr: io.Discard}
	if err := a.Run(); err == nil {
		t.Fatalf("expected missing path error")
	}
}
