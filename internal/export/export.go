package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/adapta/internal/tables"
)

// Document is what gets rendered: the tables found in Source, plus Source
// itself for renderers that append the raw text.
type Document struct {
	Tables    []tables.Table
	Source    string
	CreatedAt time.Time
}

type Renderer interface {
	Render(w io.Writer, doc Document) error
	ContentType() string
	Extension() string
}

// grid squares up a table: width is the longest of the header and every
// row, short rows are padded with blanks.
func grid(t tables.Table) (header []string, rows [][]string) {
	width := len(t.Headers)
	for _, r := range t.Rows {
		if len(r) > width {
			width = len(r)
		}
	}
	header = pad(t.Headers, width)
	rows = make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = pad(r, width)
	}
	return header, rows
}

func pad(cells []string, width int) []string {
	out := make([]string, width)
	copy(out, cells)
	return out
}

// WriteTemp renders doc into a new file under dir (os.TempDir when empty).
// On failure the partial file is already gone; on success the caller must
// call cleanup once the file has been sent.
func WriteTemp(dir string, r Renderer, doc Document) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp(dir, "adapta-export-*."+r.Extension())
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	path = f.Name()
	cleanup = func() { os.Remove(path) }

	if err := r.Render(f, doc); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("render %s: %w", r.Extension(), err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}._ -]+`)

// Filename returns a safe attachment name with the given extension. An empty
// or unusable request falls back to tables_YYYY-MM-DD_HH-MM-SS.<ext>.
func Filename(requested, ext string, now time.Time) string {
	name := strings.ReplaceAll(requested, "\\", "/")
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = unsafeFilename.ReplaceAllString(name, "_")
	name = strings.Trim(name, " ._")

	if name == "" {
		name = "tables_" + now.Format("2006-01-02_15-04-05")
	}
	return name + "." + ext
}
