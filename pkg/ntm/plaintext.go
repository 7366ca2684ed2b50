package ntm

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// The plain-text path is lossy and one-directional: export drops spans and
// images, import yields a single default-styled span. It is not a
// substitute for the container format.

func ExportText(w io.Writer, doc *Document) error {
	if _, err := io.WriteString(w, doc.Text()); err != nil {
		return fmt.Errorf("%w: export text: %w", ErrIO, err)
	}
	return nil
}

func ImportText(r io.Reader) (*Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: import text: %w", ErrIO, err)
	}
	if !utf8.Valid(b) {
		return nil, corrupt("imported text is not valid UTF-8")
	}
	doc := NewDocument("", "")
	if _, err := doc.InsertText(0, string(b), DefaultAttributes()); err != nil {
		return nil, err
	}
	return doc, nil
}

func ExportTextFile(path string, doc *Document) error {
	var sb strings.Builder
	if err := ExportText(&sb, doc); err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(sb.String()))
}

func ImportTextFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioFailure("open", path, err)
	}
	defer f.Close()
	return ImportText(f)
}
