package ntm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type imageView struct {
	Encoded             []byte
	X, Y, Width, Height int
}

func viewImages(o *Overlay) []imageView {
	var out []imageView
	for _, img := range o.Images() {
		out = append(out, imageView{img.Encoded, img.X, img.Y, img.Width, img.Height})
	}
	return out
}

func assertSameDocument(t *testing.T, want, got *Document) {
	t.Helper()
	if want.Text() != got.Text() {
		t.Fatalf("text mismatch: got %q want %q", got.Text(), want.Text())
	}
	if diff := cmp.Diff(want.Spans().Spans(), got.Spans().Spans()); diff != "" {
		t.Fatalf("spans mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(viewImages(want.Images()), viewImages(got.Images())); diff != "" {
		t.Fatalf("images mismatch (-want +got):\n%s", diff)
	}
}

func styledSample(t *testing.T) *Document {
	t.Helper()
	doc := NewDocument("Alex", "Draft")
	if _, err := doc.InsertText(0, "Hello NTM\nsecond line", plain); err != nil {
		t.Fatal(err)
	}
	if err := doc.ApplyStyle(0, 5, SetBold(true), SetColor(RGB{0x11, 0x22, 0x33})); err != nil {
		t.Fatal(err)
	}
	if err := doc.ApplyStyle(10, 16, SetFontFamily("Arial"), SetFontSize(28)); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestRoundTripSaveLoad(t *testing.T) {
	doc := styledSample(t)
	img := testImage(t, 12, 16)
	if err := doc.Images().Add(img, 40, -5); err != nil {
		t.Fatal(err)
	}
	if err := doc.Images().Resize(img, 24, 0, true); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "roundtrip.ntm")
	if err := Save(path, doc); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Metadata.Title != "Draft" || loaded.Metadata.Author != "Alex" {
		t.Fatalf("metadata mismatch: %+v", loaded.Metadata)
	}
	assertSameDocument(t, doc, loaded)
}

func TestRoundTripEmptyDocument(t *testing.T) {
	var buf bytes.Buffer
	doc := NewDocument("", "")
	if err := Encode(&buf, doc); err != nil {
		t.Fatal(err)
	}
	loaded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 0 || loaded.Spans().NumSpans() != 0 || loaded.Images().Len() != 0 {
		t.Fatalf("expected empty document, got %q %v %d", loaded.Text(), loaded.Spans().Spans(), loaded.Images().Len())
	}
}

func TestRoundTripSingleImage(t *testing.T) {
	doc := NewDocument("", "")
	if _, err := doc.InsertText(0, "A", plain); err != nil {
		t.Fatal(err)
	}
	img := testImage(t, 50, 50)
	original := append([]byte(nil), img.Encoded...)
	if err := doc.Images().Add(img, 10, 10); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		t.Fatal(err)
	}
	loaded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	imgs := loaded.Images().Images()
	if len(imgs) != 1 {
		t.Fatalf("expected 1 image, got %d", len(imgs))
	}
	got := imgs[0]
	if got.X != 10 || got.Y != 10 || got.Width != 50 || got.Height != 50 {
		t.Fatalf("geometry mismatch: %+v", got.Bounds())
	}
	if !bytes.Equal(got.Encoded, original) {
		t.Fatalf("stored image bytes differ from the inserted bytes")
	}
}

func TestSaveAppendsExtension(t *testing.T) {
	dir := t.TempDir()
	doc := styledSample(t)
	if err := Save(filepath.Join(dir, "MyNotes"), doc); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "MyNotes.ntm")); err != nil {
		t.Fatalf("expected MyNotes.ntm: %v", err)
	}
	if err := Save(filepath.Join(dir, "MyNotes.ntm"), doc); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected a single file, got %d", len(entries))
	}
	if _, err := Load(filepath.Join(dir, "MyNotes")); err != nil {
		t.Fatalf("load without extension: %v", err)
	}
}

func TestSaveFailureKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep.ntm")
	if err := Save(path, styledSample(t)); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	bad := styledSample(t)
	bad.spans.spans[0].Attrs.FontSize = 0
	if err := Save(path, bad); err == nil {
		t.Fatalf("expected validation failure")
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Fatalf("existing file modified by failed save")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
}

func TestSaveIntoMissingParentIsIOFailure(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := Save(filepath.Join(parent, "child.ntm"), styledSample(t))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestLoadMissingFileIsIOFailure(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.ntm"))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestDecodeRejectsSpanSumMismatch(t *testing.T) {
	content := encodeContent([]rune("Hello"), []Span{{4, plain}}, 5)
	images, _ := encodeImages(NewOverlay())
	blob := encodeEntries([]payloadEntry{
		{Name: EntryContent, Kind: EntryKindContent, Payload: content},
		{Name: EntryImages, Kind: EntryKindImages, Payload: images},
	}).Blob

	_, err := Decode(bytes.NewReader(blob))
	if !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
	if !strings.Contains(err.Error(), "sum to 4") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestDecodeRejectsDeclaredLengthMismatch(t *testing.T) {
	content := encodeContent([]rune("Hello"), []Span{{5, plain}}, 6)
	images, _ := encodeImages(NewOverlay())
	blob := encodeEntries([]payloadEntry{
		{Name: EntryContent, Kind: EntryKindContent, Payload: content},
		{Name: EntryImages, Kind: EntryKindImages, Payload: images},
	}).Blob
	if _, err := Decode(bytes.NewReader(blob)); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestDecodeRejectsUndecodableImage(t *testing.T) {
	content := encodeContent(nil, nil, 0)
	raw := testPNG(t, 8, 8, color.RGBA{A: 0xFF})
	raw = raw[:len(raw)/2]
	images := le.AppendUint32(nil, 1)
	images = le.AppendUint32(images, uint32(len(raw)))
	images = append(images, raw...)
	for _, v := range []uint32{0, 0, 20, 20} {
		images = le.AppendUint32(images, v)
	}
	blob := encodeEntries([]payloadEntry{
		{Name: EntryContent, Kind: EntryKindContent, Payload: content},
		{Name: EntryImages, Kind: EntryKindImages, Payload: images},
	}).Blob
	if _, err := Decode(bytes.NewReader(blob)); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestDecodeRequiresImagesEntry(t *testing.T) {
	blob := encodeEntries([]payloadEntry{
		{Name: EntryContent, Kind: EntryKindContent, Payload: encodeContent(nil, nil, 0)},
	}).Blob
	if _, err := Decode(bytes.NewReader(blob)); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestDecodeSkipsUnknownEntries(t *testing.T) {
	images, _ := encodeImages(NewOverlay())
	blob := encodeEntries([]payloadEntry{
		{Name: "thumbnail.png", Kind: EntryKind(9), Payload: []byte{1, 2, 3}},
		{Name: EntryContent, Kind: EntryKindContent, Payload: encodeContent([]rune("ok"), []Span{{2, plain}}, 2)},
		{Name: EntryImages, Kind: EntryKindImages, Payload: images},
	}).Blob
	doc, err := Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Text() != "ok" {
		t.Fatalf("text = %q", doc.Text())
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	blob := make([]byte, headerSize)
	copy(blob[:magicSize], "badbadbadbadbadb")
	binary.LittleEndian.PutUint16(blob[magicSize:magicSize+2], VersionV1)

	path := filepath.Join(t.TempDir(), "badmagic.ntm")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrInvalidMagic) || !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestLoadRejectsMissingRandomAccessFlag(t *testing.T) {
	res, err := encodeDocumentDetailed(styledSample(t))
	if err != nil {
		t.Fatal(err)
	}
	blob := res.Blob
	binary.LittleEndian.PutUint16(blob[magicSize+2:magicSize+4], 0)

	if _, err := Decode(bytes.NewReader(blob)); !errors.Is(err, ErrMissingRandomFlag) {
		t.Fatalf("expected ErrMissingRandomFlag, got %v", err)
	}
}

func TestLoadRejectsOverlappingTOCRanges(t *testing.T) {
	res, err := encodeDocumentDetailed(styledSample(t))
	if err != nil {
		t.Fatal(err)
	}
	blob := res.Blob

	// Point the content entry at the metadata payload.
	ptr := int(res.TOCOffset)
	metaField := ptr + 1 + len(EntryMeta) + 1
	ptr += tocFixedSz + len(EntryMeta)
	contentField := ptr + 1 + len(EntryContent) + 1
	copy(blob[contentField:contentField+8], blob[metaField:metaField+8])

	if _, err := Decode(bytes.NewReader(blob)); !errors.Is(err, ErrOverlappingBlocks) {
		t.Fatalf("expected ErrOverlappingBlocks, got %v", err)
	}
}

func TestLoadRejectsCRCMismatch(t *testing.T) {
	res, err := encodeDocumentDetailed(styledSample(t))
	if err != nil {
		t.Fatal(err)
	}
	blob := res.Blob
	blob[len(blob)-1] ^= 0xFF
	if _, err := Decode(bytes.NewReader(blob)); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestInspectLayoutListsNamedEntries(t *testing.T) {
	info, err := InspectLayout(styledSample(t))
	if err != nil {
		t.Fatalf("inspect layout failed: %v", err)
	}
	if info.HeaderLength != uint32(headerSize) {
		t.Fatalf("header length mismatch: got %d want %d", info.HeaderLength, headerSize)
	}
	names := map[string]bool{}
	var last uint64
	for _, seg := range info.Segments {
		names[seg.Name] = true
		if seg.Offset < last {
			t.Fatalf("segments not sorted by offset")
		}
		last = seg.Offset
	}
	for _, n := range []string{"Header", "Index", EntryMeta, EntryContent, EntryImages} {
		if !names[n] {
			t.Fatalf("missing segment %q", n)
		}
	}
}

func TestEncryptedSaveRequiresPasswordOnLoad(t *testing.T) {
	doc := styledSample(t)
	path := filepath.Join(t.TempDir(), "encrypted.ntm")
	err := SaveWithOptions(path, doc, SaveOptions{
		Compression: true,
		Encryption:  EncryptionOptions{Enabled: true, Password: "hunter2"},
	})
	if err != nil {
		t.Fatalf("save encrypted failed: %v", err)
	}

	if _, err := LoadWithOptions(path, LoadOptions{}); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := LoadWithOptions(path, LoadOptions{Password: "wrong"}); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	loaded, err := LoadWithOptions(path, LoadOptions{Password: "hunter2"})
	if err != nil {
		t.Fatalf("expected successful decrypt load, got %v", err)
	}
	assertSameDocument(t, doc, loaded)
}

func TestInspectEnvelopeFlags(t *testing.T) {
	doc := styledSample(t)

	plainPath := filepath.Join(t.TempDir(), "plain.ntm")
	if err := SaveWithOptions(plainPath, doc, SaveOptions{}); err != nil {
		t.Fatalf("save plain failed: %v", err)
	}
	info, err := InspectEnvelope(plainPath)
	if err != nil {
		t.Fatalf("inspect plain failed: %v", err)
	}
	if info.Wrapped {
		t.Fatalf("expected plain file to be unwrapped")
	}

	secure := filepath.Join(t.TempDir(), "secure.ntm")
	if err := SaveWithOptions(secure, doc, SaveOptions{Compression: true}); err != nil {
		t.Fatalf("save compressed failed: %v", err)
	}
	info, err = InspectEnvelope(secure)
	if err != nil {
		t.Fatalf("inspect secure failed: %v", err)
	}
	if !info.Wrapped || !info.Compressed || info.Encrypted {
		t.Fatalf("unexpected envelope flags: %#v", info)
	}
	if _, err := Load(secure); err != nil {
		t.Fatalf("compressed load: %v", err)
	}
}

func TestSaveRequiresPasswordWhenEncrypting(t *testing.T) {
	err := SaveWithOptions(filepath.Join(t.TempDir(), "x"), styledSample(t), SaveOptions{
		Encryption: EncryptionOptions{Enabled: true, Password: "  "},
	})
	if !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestPlainTextExportDropsStyling(t *testing.T) {
	doc := styledSample(t)
	var buf bytes.Buffer
	if err := ExportText(&buf, doc); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Hello NTM\nsecond line" {
		t.Fatalf("export = %q", buf.String())
	}

	imported, err := ImportText(strings.NewReader("one\r\ntwo" + string(Marker)))
	if err != nil {
		t.Fatal(err)
	}
	if imported.Text() != "one\ntwo" {
		t.Fatalf("import = %q", imported.Text())
	}
	if diff := cmp.Diff([]Span{{7, DefaultAttributes()}}, imported.Spans().Spans()); diff != "" {
		t.Fatalf("imported spans (-want +got):\n%s", diff)
	}
}

func TestStyledDocumentSavesAndLoads(t *testing.T) {
	doc, err := NewStyledDocument("Hello world", []Span{{5, plain.With(SetBold(true))}, {6, plain}})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "styled.ntm")
	if err := Save(path, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertSameDocument(t, doc, loaded)
	if _, err := loaded.InsertText(11, "!", plain); err != nil {
		t.Fatalf("typing into loaded document: %v", err)
	}
}

func TestStyledDocumentRejectsInvalidAttributes(t *testing.T) {
	_, err := NewStyledDocument("Hello world", []Span{{11, StyleAttributes{}}})
	if !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestDecodeRejectsInvalidUTF8Metadata(t *testing.T) {
	images, _ := encodeImages(NewOverlay())
	blob := encodeEntries([]payloadEntry{
		{Name: EntryMeta, Kind: EntryKindMetadata, Payload: encodeMetadata(Metadata{Author: "\xff"})},
		{Name: EntryContent, Kind: EntryKindContent, Payload: encodeContent(nil, nil, 0)},
		{Name: EntryImages, Kind: EntryKindImages, Payload: images},
	}).Blob
	if _, err := Decode(bytes.NewReader(blob)); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestImportTextRejectsInvalidUTF8(t *testing.T) {
	if _, err := ImportText(strings.NewReader("ok\xff")); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}
