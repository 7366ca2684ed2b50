package app

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	textclip "github.com/atotto/clipboard"
	"github.com/sqweek/dialog"
	imgclip "golang.design/x/clipboard"

	"notemat/internal/editor"
	"notemat/internal/render"
	"notemat/pkg/ntm"
)

const usage = `usage: ntm <command> [flags] [path]

commands:
  new          create an empty document
  inspect      print metadata, spans, images and container layout
  append       append text at the end of a document
  style        apply formatting to a character range
  export       write the plain text to a file, stdout or the clipboard
  import       turn a plain-text file into a document
  preview      render a viewport of the page to PNG
  paste-image  paste the clipboard image into a document`

// App runs one command against documents on disk. Output goes to Stdout;
// progress is logged to Stderr.
type App struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer

	// PickFile chooses a path when none is given on the command line.
	PickFile func(save bool) (string, error)

	log *log.Logger
}

func New(args []string) *App {
	return &App{
		Args:     args,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		PickFile: pickFile,
	}
}

func (a *App) Run() error {
	a.log = log.New(a.Stderr, "", log.LstdFlags)
	if len(a.Args) == 0 {
		return errors.New(usage)
	}
	cmd, args := a.Args[0], a.Args[1:]
	switch cmd {
	case "new":
		return a.runNew(args)
	case "inspect":
		return a.runInspect(args)
	case "append":
		return a.runAppend(args)
	case "style":
		return a.runStyle(args)
	case "export":
		return a.runExport(args)
	case "import":
		return a.runImport(args)
	case "preview":
		return a.runPreview(args)
	case "paste-image":
		return a.runPasteImage(args)
	case "help", "-h", "-help", "--help":
		fmt.Fprintln(a.Stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

type saveFlags struct {
	password string
	compress bool
	encrypt  bool
}

func (f *saveFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.password, "password", "", "password for encrypted documents")
	fs.BoolVar(&f.compress, "compress", false, "compress the container on save")
	fs.BoolVar(&f.encrypt, "encrypt", false, "encrypt the container on save (needs -password)")
}

func (f *saveFlags) saveOptions() ntm.SaveOptions {
	return ntm.SaveOptions{
		Compression: f.compress,
		Encryption:  ntm.EncryptionOptions{Enabled: f.encrypt, Password: f.password},
	}
}

func (f *saveFlags) loadOptions() ntm.LoadOptions {
	return ntm.LoadOptions{Password: f.password}
}

func (a *App) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	return fs
}

func (a *App) pathArg(fs *flag.FlagSet, save bool) (string, error) {
	if p := fs.Arg(0); p != "" {
		return filepath.Clean(p), nil
	}
	if a.PickFile == nil {
		return "", errors.New("no file given")
	}
	p, err := a.PickFile(save)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", errors.New("no file selected")
	}
	return filepath.Clean(p), nil
}

func pickFile(save bool) (string, error) {
	b := dialog.File().Filter("Notemat files", strings.TrimPrefix(ntm.Extension, "."))
	if save {
		return b.Save()
	}
	return b.Load()
}

// open loads path into a fresh session, remembering the envelope settings
// so a later save keeps them unless overridden.
func (a *App) open(path string, sf *saveFlags) (*editor.Session, error) {
	env, err := ntm.InspectEnvelope(ntm.ResolveExisting(path))
	if err != nil {
		return nil, err
	}
	if env.Compressed {
		sf.compress = true
	}
	if env.Encrypted {
		sf.encrypt = true
	}
	s := editor.NewSession(nil, editor.Options{})
	if err := s.LoadWithOptions(path, sf.loadOptions()); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	a.log.Printf("[load] %s (%d chars, %d images)", s.Path(), s.Len(), len(s.Images()))
	return s, nil
}

func (a *App) save(s *editor.Session, path string, sf *saveFlags) error {
	if err := s.SaveWithOptions(path, sf.saveOptions()); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	a.log.Printf("[save] %s (compressed=%v, encrypted=%v)", s.Path(), sf.compress, sf.encrypt)
	return nil
}

func (a *App) runNew(args []string) error {
	fs := a.newFlagSet("new")
	var sf saveFlags
	sf.register(fs)
	author := fs.String("author", "", "document author")
	title := fs.String("title", "Untitled", "document title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.pathArg(fs, true)
	if err != nil {
		return err
	}
	s := editor.NewSession(ntm.NewDocument(*author, *title), editor.Options{})
	return a.save(s, path, &sf)
}

func (a *App) runAppend(args []string) error {
	fs := a.newFlagSet("append")
	var sf saveFlags
	sf.register(fs)
	text := fs.String("text", "", "text to append")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.pathArg(fs, false)
	if err != nil {
		return err
	}
	s, err := a.open(path, &sf)
	if err != nil {
		return err
	}
	s.SetCaret(s.Len())
	if _, err := s.InsertText(*text); err != nil {
		return err
	}
	return a.save(s, path, &sf)
}

func (a *App) runStyle(args []string) error {
	fs := a.newFlagSet("style")
	var sf saveFlags
	sf.register(fs)
	rng := fs.String("range", "", "character range start:end (default: whole document)")
	font := fs.String("font", "", "font family")
	size := fs.Int("size", 0, "font size in points")
	colour := fs.String("color", "", "text colour as #rrggbb")
	var flags [3]string
	fs.StringVar(&flags[0], "bold", "", "true or false")
	fs.StringVar(&flags[1], "italic", "", "true or false")
	fs.StringVar(&flags[2], "underline", "", "true or false")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var changes []ntm.Change
	if *font != "" {
		changes = append(changes, ntm.SetFontFamily(*font))
	}
	if *size != 0 {
		changes = append(changes, ntm.SetFontSize(*size))
	}
	if *colour != "" {
		c, err := ntm.ParseHex(*colour)
		if err != nil {
			return err
		}
		changes = append(changes, ntm.SetColor(c))
	}
	setters := [3]func(bool) ntm.Change{ntm.SetBold, ntm.SetItalic, ntm.SetUnderline}
	for i, v := range flags {
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("style: %w", err)
		}
		changes = append(changes, setters[i](b))
	}
	if len(changes) == 0 {
		return errors.New("style: nothing to apply")
	}

	path, err := a.pathArg(fs, false)
	if err != nil {
		return err
	}
	s, err := a.open(path, &sf)
	if err != nil {
		return err
	}
	start, end := 0, s.Len()
	if *rng != "" {
		if start, end, err = parseRange(*rng); err != nil {
			return err
		}
	}
	if err := s.ApplyStyleRange(start, end, changes...); err != nil {
		return err
	}
	a.log.Printf("[style] [%d,%d) %v", start, end, changes)
	return a.save(s, path, &sf)
}

func parseRange(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("range %q: want start:end", s)
	}
	start, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", s, err)
	}
	end, err := strconv.Atoi(hi)
	if err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", s, err)
	}
	return start, end, nil
}

func (a *App) runInspect(args []string) error {
	fs := a.newFlagSet("inspect")
	var sf saveFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.pathArg(fs, false)
	if err != nil {
		return err
	}
	env, err := ntm.InspectEnvelope(ntm.ResolveExisting(path))
	if err != nil {
		return err
	}
	doc, err := ntm.LoadWithOptions(path, sf.loadOptions())
	if err != nil {
		return err
	}
	layout, err := ntm.InspectLayout(doc)
	if err != nil {
		return err
	}

	w := a.Stdout
	fmt.Fprintf(w, "title:      %s\n", doc.Metadata.Title)
	fmt.Fprintf(w, "author:     %s\n", doc.Metadata.Author)
	fmt.Fprintf(w, "envelope:   wrapped=%v compressed=%v encrypted=%v\n", env.Wrapped, env.Compressed, env.Encrypted)
	fmt.Fprintf(w, "characters: %d\n", doc.Len())
	spans := doc.Spans().Spans()
	fmt.Fprintf(w, "spans:      %d\n", len(spans))
	off := 0
	for _, sp := range spans {
		fmt.Fprintf(w, "  [%d,%d) %s\n", off, off+sp.Length, sp.Attrs)
		off += sp.Length
	}
	imgs := doc.Images().Images()
	fmt.Fprintf(w, "images:     %d\n", len(imgs))
	for i, img := range imgs {
		fmt.Fprintf(w, "  #%d %s %dx%d at (%d,%d) shown %dx%d, %d bytes\n",
			i, img.Format, img.NaturalWidth, img.NaturalHeight, img.X, img.Y, img.Width, img.Height, len(img.Encoded))
	}
	fmt.Fprintf(w, "layout:     %d bytes\n", layout.FileSize)
	for _, seg := range layout.Segments {
		fmt.Fprintf(w, "  %-12s offset=%d length=%d\n", seg.Name, seg.Offset, seg.Length)
	}
	return nil
}

func (a *App) runExport(args []string) error {
	fs := a.newFlagSet("export")
	var sf saveFlags
	sf.register(fs)
	out := fs.String("o", "", "output file (default stdout)")
	toClipboard := fs.Bool("clipboard", false, "copy the text to the clipboard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.pathArg(fs, false)
	if err != nil {
		return err
	}
	s, err := a.open(path, &sf)
	if err != nil {
		return err
	}
	switch {
	case *toClipboard:
		if err := textclip.WriteAll(s.Text()); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		a.log.Printf("[export] %d chars to clipboard", s.Len())
	case *out != "":
		if err := s.ExportText(*out); err != nil {
			return err
		}
		a.log.Printf("[export] %s", *out)
	default:
		_, err := io.WriteString(a.Stdout, s.Text())
		return err
	}
	return nil
}

func (a *App) runImport(args []string) error {
	fs := a.newFlagSet("import")
	var sf saveFlags
	sf.register(fs)
	out := fs.String("o", "", "document to write (default: input with "+ntm.Extension+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.pathArg(fs, false)
	if err != nil {
		return err
	}
	s := editor.NewSession(nil, editor.Options{})
	if err := s.ImportText(path); err != nil {
		return err
	}
	a.log.Printf("[import] %s (%d chars)", path, s.Len())
	dest := *out
	if dest == "" {
		dest = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return a.save(s, dest, &sf)
}

func (a *App) runPreview(args []string) error {
	fs := a.newFlagSet("preview")
	var sf saveFlags
	sf.register(fs)
	out := fs.String("o", "preview.png", "output PNG")
	width := fs.Int("width", 800, "viewport width")
	height := fs.Int("height", 600, "viewport height")
	scroll := fs.Int("scroll", 0, "vertical scroll offset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.pathArg(fs, false)
	if err != nil {
		return err
	}
	s, err := a.open(path, &sf)
	if err != nil {
		return err
	}
	s.SetScroll(*scroll)

	fb := render.NewFrameBuffer(*width, *height)
	if n := render.Page(fb, render.NewFontBank(), s.Snapshot(), s.ScrollY(), nil, render.DefaultTheme()); n > 0 {
		a.log.Printf("[preview] %d images could not be decoded", n)
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, fb.Image()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.log.Printf("[preview] %s (%dx%d at scroll %d)", *out, fb.W, fb.H, s.ScrollY())
	return nil
}

func (a *App) runPasteImage(args []string) error {
	fs := a.newFlagSet("paste-image")
	var sf saveFlags
	sf.register(fs)
	scroll := fs.Int("scroll", 0, "vertical scroll offset of the view pasted into")
	file := fs.String("file", "", "read the image from a file instead of the clipboard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.pathArg(fs, false)
	if err != nil {
		return err
	}

	var raw []byte
	if *file != "" {
		if raw, err = os.ReadFile(*file); err != nil {
			return err
		}
	} else {
		if err := imgclip.Init(); err != nil {
			return fmt.Errorf("clipboard unavailable: %w", err)
		}
		raw = imgclip.Read(imgclip.FmtImage)
		if len(raw) == 0 {
			return errors.New("clipboard holds no image")
		}
	}
	img, err := ntm.NewImage(raw)
	if err != nil {
		return err
	}

	s, err := a.open(path, &sf)
	if err != nil {
		return err
	}
	s.SetScroll(*scroll)
	if err := s.PasteImage(img); err != nil {
		return err
	}
	a.log.Printf("[paste] %s %dx%d at (%d,%d)", img.Format, img.Width, img.Height, img.X, img.Y)
	return a.save(s, path, &sf)
}
