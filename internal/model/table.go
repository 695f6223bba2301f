package model

import "strings"

// Table is one extracted table: a page number, a header row and data rows.
type Table struct {
	Page    int        `json:"page"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// CellCount returns the total number of cells, headers included.
func (t Table) CellCount() int {
	n := len(t.Headers)
	for _, row := range t.Rows {
		n += len(row)
	}
	return n
}

// FilledCells returns the number of non-empty cells, headers included.
func (t Table) FilledCells() int {
	n := 0
	for _, h := range t.Headers {
		if strings.TrimSpace(h) != "" {
			n++
		}
	}
	for _, row := range t.Rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				n++
			}
		}
	}
	return n
}

// FillRatio returns the fraction of non-empty cells across all given tables,
// or 0 when there are no cells at all.
func FillRatio(tables []Table) float64 {
	total, filled := 0, 0
	for _, t := range tables {
		total += t.CellCount()
		filled += t.FilledCells()
	}
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total)
}
