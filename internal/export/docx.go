package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"
)

const (
	docxHeaderFill  = "DDEBF7"
	docxHeaderColor = "002060"
	docxTableStyle  = "TableGrid"
)

// DOCX renders a Word document: a title, every table under a "Table #n"
// heading, then the source text on its own page.
type DOCX struct{}

func (DOCX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

func (DOCX) Extension() string { return "docx" }

func (DOCX) Render(w io.Writer, doc Document) error {
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	d, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("new docx: %w", err)
	}

	if _, err := d.AddHeading("Tables from conversation", 0); err != nil {
		return fmt.Errorf("add title: %w", err)
	}
	d.AddParagraph("Created: " + created.Format("2006-01-02 15:04:05"))

	for i, t := range doc.Tables {
		if _, err := d.AddHeading(fmt.Sprintf("Table #%d", i+1), 2); err != nil {
			return fmt.Errorf("add table heading: %w", err)
		}
		header, rows := grid(t)
		addTable(d, header, rows)
		d.AddEmptyParagraph()
	}

	d.AddPageBreak()
	if _, err := d.AddHeading("Source text", 2); err != nil {
		return fmt.Errorf("add source heading: %w", err)
	}
	for _, line := range strings.Split(strings.ReplaceAll(doc.Source, "\r\n", "\n"), "\n") {
		d.AddParagraph(line)
	}

	if err := d.Write(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

func addTable(d *docx.RootDoc, header []string, rows [][]string) {
	if len(header) == 0 {
		return
	}

	tbl := d.AddTable()
	tbl.Style(docxTableStyle)

	hdr := tbl.AddRow()
	for _, text := range header {
		p := hdr.AddCell().AddEmptyPara()
		p.Justification(stypes.JustificationCenter)
		p.GetCT().Property.Shading = ctypes.NewShading().SetFill(docxHeaderFill)
		p.AddText(text).Bold(true).Color(docxHeaderColor)
	}

	for _, row := range rows {
		r := tbl.AddRow()
		for _, text := range row {
			r.AddCell().AddParagraph(text)
		}
	}
}
