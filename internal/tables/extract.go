package tables

import "strings"

// Table is a pipe-delimited Markdown table lifted out of an answer.
// Rows are kept exactly as scanned; their width is not reconciled with Headers.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Extract scans markdown line by line and returns every table that has a
// header row, a "---" separator row and at least one data row, in order of
// appearance. It never fails; text without tables yields an empty slice.
//
// Empty cells are discarded while splitting, so "| a | | b |" reads as two
// cells. Callers rely on that.
func Extract(markdown string) []Table {
	out := []Table{}

	var (
		header    []string
		rows      [][]string
		inTable   bool
		separated bool
	)

	flush := func() {
		if inTable && separated && len(rows) > 0 {
			out = append(out, Table{Headers: header, Rows: rows})
		}
		header, rows = nil, nil
		inTable, separated = false, false
	}

	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)

		cells, ok := rowCells(line)
		if !ok || len(cells) < 2 {
			flush()
			continue
		}

		switch {
		case !inTable:
			inTable = true
			header = cells
		case !separated && strings.Contains(line, "---"):
			separated = true
		case separated:
			rows = append(rows, cells)
		}
	}
	flush()

	return out
}

// rowCells reports whether line is a table row candidate and returns its
// non-empty trimmed cells.
func rowCells(line string) ([]string, bool) {
	if len(line) < 2 || !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
		return nil, false
	}
	parts := strings.Split(line[1:len(line)-1], "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := strings.TrimSpace(p); c != "" {
			cells = append(cells, c)
		}
	}
	return cells, true
}
