package export

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/MikeSquared-Agency/adapta/internal/tables"
)

const (
	xlsxHeaderFill = "4F81BD"
	minColWidth    = 8
	maxColWidth    = 80
)

// XLSX renders one worksheet per table, named Table_1, Table_2, ...
type XLSX struct{}

func (XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSX) Extension() string { return "xlsx" }

func (XLSX) Render(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{xlsxHeaderFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("cell style: %w", err)
	}

	for i, t := range doc.Tables {
		sheet := fmt.Sprintf("Table_%d", i+1)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("new sheet %s: %w", sheet, err)
		}

		if err := writeSheet(f, sheet, t, headerStyle, cellStyle); err != nil {
			return fmt.Errorf("sheet %s: %w", sheet, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t tables.Table, headerStyle, cellStyle int) error {
	header, rows := grid(t)
	cols := len(header)
	if cols == 0 {
		return nil
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}

	lastHeader, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}
	if len(rows) > 0 {
		lastCell, err := excelize.CoordinatesToCellName(cols, len(rows)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A2", lastCell, cellStyle); err != nil {
			return err
		}
	}

	for c := 0; c < cols; c++ {
		width := textWidth(header[c])
		for _, r := range rows {
			if w := textWidth(r[c]); w > width {
				width = w
			}
		}
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, float64(clampWidth(width+2))); err != nil {
			return err
		}
	}
	return nil
}

// textWidth is the rune length of the longest line in s.
func textWidth(s string) int {
	longest := 0
	for _, line := range strings.Split(s, "\n") {
		if n := utf8.RuneCountInString(line); n > longest {
			longest = n
		}
	}
	return longest
}

func clampWidth(w int) int {
	if w < minColWidth {
		return minColWidth
	}
	if w > maxColWidth {
		return maxColWidth
	}
	return w
}
