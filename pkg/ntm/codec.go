package ntm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MagicString      = "NOTEMAT-DOCUMENT"
	VersionV1        = uint16(1)
	FlagRandomAccess = uint16(1 << 0)

	// Extension is appended to save paths that lack it.
	Extension = ".ntm"

	magicSize  = len(MagicString)
	headerSize = magicSize + 2 + 2 + 8 + 4 + 4
	tocFixedSz = 1 + 1 + 8 + 4 + 4

	EntryMeta    = "meta"
	EntryContent = "content.dat"
	EntryImages  = "images.dat"
)

type EntryKind uint8

const (
	EntryKindMetadata EntryKind = 0
	EntryKindContent  EntryKind = 1
	EntryKindImages   EntryKind = 2
)

// le is the byte order of every integer in the container.
var le = binary.LittleEndian

type SaveOptions struct {
	Compression bool
	Encryption  EncryptionOptions
}

type LoadOptions struct {
	Password string
}

type LayoutSegment struct {
	Name   string
	Kind   EntryKind
	Offset uint64
	Length uint32
}

type LayoutInfo struct {
	HeaderLength uint32
	IndexOffset  uint64
	IndexLength  uint32
	FileSize     uint64
	Segments     []LayoutSegment
}

type tocEntry struct {
	Name   string
	Kind   EntryKind
	Offset uint64
	Length uint32
	CRC32  uint32
}

type encodeResult struct {
	Blob      []byte
	Entries   []tocEntry
	TOCOffset uint64
	TOCLength uint32
}

type payloadEntry struct {
	Name    string
	Kind    EntryKind
	Payload []byte
}

// WithExtension appends Extension to path unless it already ends with it,
// so "MyNotes" and "MyNotes.ntm" name the same file.
func WithExtension(path string) string {
	if strings.EqualFold(filepath.Ext(path), Extension) {
		return path
	}
	return path + Extension
}

// Encode writes doc as a container to w.
func Encode(w io.Writer, doc *Document) error {
	if err := Validate(doc); err != nil {
		return err
	}
	res, err := encodeDocumentDetailed(doc)
	if err != nil {
		return err
	}
	if _, err := w.Write(res.Blob); err != nil {
		return fmt.Errorf("%w: write container: %w", ErrIO, err)
	}
	return nil
}

// Decode reads a container from r. The returned document is complete or
// nil: nothing is applied on error.
func Decode(r io.Reader) (*Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read container: %w", ErrIO, err)
	}
	return decodeAny(b, LoadOptions{})
}

func Save(path string, doc *Document) error {
	return SaveWithOptions(path, doc, SaveOptions{})
}

// SaveWithOptions writes doc to WithExtension(path). The container is
// written to a temporary file in the same directory and renamed over the
// target, so an existing file is either fully replaced or left untouched.
func SaveWithOptions(path string, doc *Document, opts SaveOptions) error {
	if doc == nil {
		return errors.New("ntm: document is nil")
	}
	if err := Validate(doc); err != nil {
		return err
	}
	if opts.Encryption.Enabled && strings.TrimSpace(opts.Encryption.Password) == "" {
		return ErrPasswordRequired
	}

	stamped := doc.Metadata
	now := time.Now().Unix()
	if stamped.CreatedUnix == 0 {
		stamped.CreatedUnix = now
	}
	stamped.ModifiedUnix = now
	view := *doc
	view.Metadata = stamped

	res, err := encodeDocumentDetailed(&view)
	if err != nil {
		return err
	}
	blob := res.Blob
	if opts.Compression || opts.Encryption.Enabled {
		blob, err = sealEnvelope(blob, opts)
		if err != nil {
			return err
		}
	}

	path = WithExtension(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ioFailure("mkdir", dir, err)
		}
	}
	if err := writeFileAtomic(path, blob); err != nil {
		return err
	}
	doc.Metadata = stamped
	return nil
}

func Load(path string) (*Document, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads a container from path, falling back to
// WithExtension(path) when path itself does not exist.
func LoadWithOptions(path string, opts LoadOptions) (*Document, error) {
	b, err := os.ReadFile(ResolveExisting(path))
	if err != nil {
		return nil, ioFailure("read", path, err)
	}
	return decodeAny(b, opts)
}

// ResolveExisting returns path, or path with Extension when only that exists.
func ResolveExisting(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if ext := WithExtension(path); ext != path {
		if _, err := os.Stat(ext); err == nil {
			return ext
		}
	}
	return path
}

func decodeAny(b []byte, opts LoadOptions) (*Document, error) {
	var err error
	if hasEnvelope(b) {
		b, err = openEnvelope(b, opts)
		if err != nil {
			return nil, err
		}
	}
	doc, err := decodeDocument(b)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func writeFileAtomic(path string, blob []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return ioFailure("create temp for", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(blob); err != nil {
		_ = f.Close()
		return ioFailure("write", tmp, err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return ioFailure("sync", tmp, err)
	}
	if err = f.Close(); err != nil {
		return ioFailure("close", tmp, err)
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return ioFailure("chmod", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return ioFailure("rename", path, err)
	}
	return nil
}

func InspectLayout(doc *Document) (*LayoutInfo, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	res, err := encodeDocumentDetailed(doc)
	if err != nil {
		return nil, err
	}

	segments := []LayoutSegment{{
		Name:   "Header",
		Kind:   EntryKindMetadata,
		Offset: 0,
		Length: uint32(headerSize),
	}, {
		Name:   "Index",
		Kind:   EntryKindMetadata,
		Offset: res.TOCOffset,
		Length: res.TOCLength,
	}}
	for _, e := range res.Entries {
		segments = append(segments, LayoutSegment{
			Name:   e.Name,
			Kind:   e.Kind,
			Offset: e.Offset,
			Length: e.Length,
		})
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Offset < segments[j].Offset })

	return &LayoutInfo{
		HeaderLength: uint32(headerSize),
		IndexOffset:  res.TOCOffset,
		IndexLength:  res.TOCLength,
		FileSize:     uint64(len(res.Blob)),
		Segments:     segments,
	}, nil
}

// Validate checks everything Encode relies on: the coverage invariant,
// attribute ranges, and that every image carries bytes and a sane size.
func Validate(doc *Document) error {
	if doc == nil {
		return errors.New("ntm: document is nil")
	}
	if !utf8.ValidString(doc.Metadata.Author) || !utf8.ValidString(doc.Metadata.Title) {
		return corrupt("metadata is not valid UTF-8")
	}
	if err := doc.CheckCoverage(); err != nil {
		return err
	}
	for i, s := range doc.spans.spans {
		if s.Length <= 0 {
			return corruptf("span[%d] has length %d", i, s.Length)
		}
		if err := s.Attrs.Validate(); err != nil {
			return fmt.Errorf("%w: span[%d]: %w", ErrCorruptDocument, i, err)
		}
	}
	for i, img := range doc.images.images {
		if len(img.Encoded) == 0 {
			return corruptf("image[%d] has no bytes", i)
		}
		if img.Width < MinImageSize || img.Height < MinImageSize {
			return corruptf("image[%d] size %dx%d below minimum", i, img.Width, img.Height)
		}
	}
	return nil
}

func encodeDocumentDetailed(doc *Document) (*encodeResult, error) {
	images, err := encodeImages(doc.images)
	if err != nil {
		return nil, err
	}
	payloads := []payloadEntry{
		{Name: EntryMeta, Kind: EntryKindMetadata, Payload: encodeMetadata(doc.Metadata)},
		{Name: EntryContent, Kind: EntryKindContent, Payload: encodeContent(doc.text, doc.spans.spans, len(doc.text))},
		{Name: EntryImages, Kind: EntryKindImages, Payload: images},
	}
	return encodeEntries(payloads), nil
}

func encodeEntries(payloads []payloadEntry) *encodeResult {
	tocLength := 0
	for _, p := range payloads {
		tocLength += tocFixedSz + len(p.Name)
	}
	tocOffset := uint64(headerSize)
	out := make([]byte, headerSize, headerSize+tocLength)
	copy(out[:magicSize], MagicString)

	entries := make([]tocEntry, 0, len(payloads))
	offset := uint64(headerSize + tocLength)
	for _, p := range payloads {
		entries = append(entries, tocEntry{
			Name:   p.Name,
			Kind:   p.Kind,
			Offset: offset,
			Length: uint32(len(p.Payload)),
			CRC32:  crc32.ChecksumIEEE(p.Payload),
		})
		offset += uint64(len(p.Payload))
	}
	for _, e := range entries {
		out = append(out, byte(len(e.Name)))
		out = append(out, e.Name...)
		out = append(out, byte(e.Kind))
		out = le.AppendUint64(out, e.Offset)
		out = le.AppendUint32(out, e.Length)
		out = le.AppendUint32(out, e.CRC32)
	}
	for _, p := range payloads {
		out = append(out, p.Payload...)
	}

	le.PutUint16(out[magicSize:magicSize+2], VersionV1)
	le.PutUint16(out[magicSize+2:magicSize+4], FlagRandomAccess)
	le.PutUint64(out[magicSize+4:magicSize+12], tocOffset)
	le.PutUint32(out[magicSize+12:magicSize+16], uint32(len(entries)))
	le.PutUint32(out[magicSize+16:magicSize+20], uint32(tocLength))

	return &encodeResult{Blob: out, Entries: entries, TOCOffset: tocOffset, TOCLength: uint32(tocLength)}
}

func decodeDocument(blob []byte) (*Document, error) {
	if len(blob) < headerSize || string(blob[:magicSize]) != MagicString {
		return nil, ErrInvalidMagic
	}
	if v := le.Uint16(blob[magicSize : magicSize+2]); v != VersionV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVer, v)
	}
	if flags := le.Uint16(blob[magicSize+2 : magicSize+4]); flags&FlagRandomAccess == 0 {
		return nil, ErrMissingRandomFlag
	}

	tocOffset := le.Uint64(blob[magicSize+4 : magicSize+12])
	tocCount := le.Uint32(blob[magicSize+12 : magicSize+16])
	tocLength := le.Uint32(blob[magicSize+16 : magicSize+20])
	if tocOffset > uint64(len(blob)) || tocOffset+uint64(tocLength) > uint64(len(blob)) {
		return nil, ErrInvalidTOC
	}

	toc := blob[tocOffset : tocOffset+uint64(tocLength)]
	entries := make([]tocEntry, 0, min(int(tocCount), 16))
	for i := 0; i < int(tocCount); i++ {
		if len(toc) < 1 {
			return nil, ErrInvalidTOC
		}
		n := int(toc[0])
		if len(toc) < 1+n+tocFixedSz-1 {
			return nil, ErrInvalidTOC
		}
		name := string(toc[1 : 1+n])
		p := toc[1+n:]
		entries = append(entries, tocEntry{
			Name:   name,
			Kind:   EntryKind(p[0]),
			Offset: le.Uint64(p[1:9]),
			Length: le.Uint32(p[9:13]),
			CRC32:  le.Uint32(p[13:17]),
		})
		toc = p[17:]
	}
	if len(toc) != 0 {
		return nil, ErrInvalidTOC
	}
	if err := validateEntryRanges(entries, tocOffset+uint64(tocLength), len(blob)); err != nil {
		return nil, err
	}

	doc := NewDocument("", "")
	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.Name] {
			return nil, corruptf("duplicate entry %q", e.Name)
		}
		seen[e.Name] = true

		payload := blob[e.Offset : e.Offset+uint64(e.Length)]
		if crc32.ChecksumIEEE(payload) != e.CRC32 {
			return nil, corruptf("crc mismatch for entry %q", e.Name)
		}
		switch e.Name {
		case EntryMeta:
			m, err := decodeMetadata(payload)
			if err != nil {
				return nil, err
			}
			doc.Metadata = m
		case EntryContent:
			text, spans, err := decodeContent(payload)
			if err != nil {
				return nil, err
			}
			doc.text = text
			doc.spans = spans
		case EntryImages:
			overlay, err := decodeImages(payload)
			if err != nil {
				return nil, err
			}
			doc.images = overlay
		default:
			// Unknown entries stay skippable via the TOC.
		}
	}
	if !seen[EntryContent] {
		return nil, corrupt("missing content entry")
	}
	if !seen[EntryImages] {
		return nil, corrupt("missing images entry")
	}
	return doc, nil
}

func validateEntryRanges(entries []tocEntry, dataStart uint64, fileLen int) error {
	type rng struct{ start, end uint64 }
	ranges := make([]rng, 0, len(entries))

	for _, e := range entries {
		if e.Offset < dataStart || e.Offset > uint64(fileLen) {
			return ErrInvalidBlockRange
		}
		end := e.Offset + uint64(e.Length)
		if end > uint64(fileLen) {
			return ErrInvalidBlockRange
		}
		ranges = append(ranges, rng{start: e.Offset, end: end})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i].start < ranges[i-1].end {
			return ErrOverlappingBlocks
		}
	}
	return nil
}

// encodeContent writes the text, its declared character count, then the
// (length, attributes) pairs. declared is separate so tests can build
// inconsistent payloads.
func encodeContent(text []rune, spans []Span, declared int) []byte {
	utf := []byte(string(text))
	out := make([]byte, 0, 12+len(utf)+len(spans)*16)
	out = le.AppendUint32(out, uint32(len(utf)))
	out = append(out, utf...)
	out = le.AppendUint32(out, uint32(declared))
	out = le.AppendUint32(out, uint32(len(spans)))
	for _, s := range spans {
		out = le.AppendUint32(out, uint32(s.Length))
		out = appendAttrs(out, s.Attrs)
	}
	return out
}

func decodeContent(b []byte) ([]rune, *SpanList, error) {
	utf, b, ok := readBytes(b)
	if !ok {
		return nil, nil, corrupt("malformed text payload")
	}
	if !utf8.Valid(utf) {
		return nil, nil, corrupt("text is not valid UTF-8")
	}
	text := []rune(string(utf))
	if len(b) < 8 {
		return nil, nil, corrupt("malformed span header")
	}
	declared := int(le.Uint32(b[:4]))
	count := int(le.Uint32(b[4:8]))
	b = b[8:]
	if declared != len(text) {
		return nil, nil, corruptf("text entry declares %d characters, holds %d", declared, len(text))
	}
	if count > len(b)/4 {
		return nil, nil, corrupt("span count exceeds payload")
	}

	list := &SpanList{spans: make([]Span, 0, count)}
	for i := 0; i < count; i++ {
		if len(b) < 4 {
			return nil, nil, corruptf("truncated span %d", i)
		}
		length := le.Uint32(b[:4])
		attrs, rest, err := readAttrs(b[4:])
		if err != nil {
			return nil, nil, fmt.Errorf("span %d: %w", i, err)
		}
		b = rest
		if length == 0 || length > math.MaxInt32 {
			return nil, nil, corruptf("span %d has length %d", i, length)
		}
		list.spans = append(list.spans, Span{Length: int(length), Attrs: attrs})
		list.total += int(length)
	}
	if len(b) != 0 {
		return nil, nil, corrupt("trailing bytes after spans")
	}
	if list.total != declared {
		return nil, nil, corruptf("span lengths sum to %d, text entry declares %d", list.total, declared)
	}
	return text, list, nil
}

func appendAttrs(dst []byte, a StyleAttributes) []byte {
	flags := uint8(0)
	if a.Bold {
		flags |= 1
	}
	if a.Italic {
		flags |= 2
	}
	if a.Underline {
		flags |= 4
	}
	dst = append(dst, flags)
	dst = le.AppendUint16(dst, uint16(a.FontSize))
	dst = append(dst, a.Color.R, a.Color.G, a.Color.B)
	dst = le.AppendUint16(dst, uint16(len(a.FontFamily)))
	return append(dst, a.FontFamily...)
}

func readAttrs(b []byte) (StyleAttributes, []byte, error) {
	var a StyleAttributes
	if len(b) < 1+2+3+2 {
		return a, nil, corrupt("truncated attributes")
	}
	flags := b[0]
	a.Bold = flags&1 != 0
	a.Italic = flags&2 != 0
	a.Underline = flags&4 != 0
	a.FontSize = int(le.Uint16(b[1:3]))
	a.Color = RGB{R: b[3], G: b[4], B: b[5]}
	n := int(le.Uint16(b[6:8]))
	b = b[8:]
	if len(b) < n {
		return a, nil, corrupt("truncated font family")
	}
	a.FontFamily = string(b[:n])
	return a, b[n:], nil
}

func encodeImages(o *Overlay) ([]byte, error) {
	out := le.AppendUint32(nil, uint32(len(o.images)))
	for i, img := range o.images {
		if len(img.Encoded) == 0 {
			return nil, fmt.Errorf("ntm: image[%d] has no bytes", i)
		}
		out = le.AppendUint32(out, uint32(len(img.Encoded)))
		out = append(out, img.Encoded...)
		out = le.AppendUint32(out, uint32(int32(img.X)))
		out = le.AppendUint32(out, uint32(int32(img.Y)))
		out = le.AppendUint32(out, uint32(img.Width))
		out = le.AppendUint32(out, uint32(img.Height))
	}
	return out, nil
}

func decodeImages(b []byte) (*Overlay, error) {
	if len(b) < 4 {
		return nil, corrupt("malformed images payload")
	}
	count := int(le.Uint32(b[:4]))
	b = b[4:]
	if count > len(b)/20 {
		return nil, corrupt("image count exceeds payload")
	}
	overlay := NewOverlay()
	for i := 0; i < count; i++ {
		enc, rest, ok := readBytes(b)
		if !ok || len(rest) < 16 {
			return nil, corruptf("truncated image %d", i)
		}
		img, err := NewImage(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", ErrCorruptDocument, i, err)
		}
		if _, err := img.Decode(); err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", ErrCorruptDocument, i, err)
		}
		x := int(int32(le.Uint32(rest[0:4])))
		y := int(int32(le.Uint32(rest[4:8])))
		img.Width = int(le.Uint32(rest[8:12]))
		img.Height = int(le.Uint32(rest[12:16]))
		if img.Width < MinImageSize || img.Height < MinImageSize || img.Width > math.MaxInt32 || img.Height > math.MaxInt32 {
			return nil, corruptf("image %d size %dx%d", i, img.Width, img.Height)
		}
		if err := overlay.Add(img, x, y); err != nil {
			return nil, err
		}
		b = rest[16:]
	}
	if len(b) != 0 {
		return nil, corrupt("trailing bytes after images")
	}
	return overlay, nil
}

func encodeMetadata(m Metadata) []byte {
	out := make([]byte, 0, 64)
	out = appendString(out, m.Author)
	out = appendString(out, m.Title)
	out = le.AppendUint64(out, uint64(m.CreatedUnix))
	out = le.AppendUint64(out, uint64(m.ModifiedUnix))
	return out
}

func decodeMetadata(b []byte) (Metadata, error) {
	var m Metadata
	var ok bool
	if m.Author, b, ok = readString(b); !ok {
		return m, corrupt("malformed metadata author")
	}
	if m.Title, b, ok = readString(b); !ok {
		return m, corrupt("malformed metadata title")
	}
	if !utf8.ValidString(m.Author) || !utf8.ValidString(m.Title) {
		return m, corrupt("metadata is not valid UTF-8")
	}
	if len(b) < 16 {
		return m, corrupt("malformed metadata timestamps")
	}
	m.CreatedUnix = int64(le.Uint64(b[:8]))
	m.ModifiedUnix = int64(le.Uint64(b[8:16]))
	return m, nil
}

func appendString(dst []byte, s string) []byte {
	dst = le.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func readString(src []byte) (string, []byte, bool) {
	b, rest, ok := readBytes(src)
	return string(b), rest, ok
}

func readBytes(src []byte) ([]byte, []byte, bool) {
	if len(src) < 4 {
		return nil, nil, false
	}
	ln := le.Uint32(src[:4])
	src = src[4:]
	if uint64(len(src)) < uint64(ln) {
		return nil, nil, false
	}
	return bytes.Clone(src[:ln]), src[ln:], true
}
