package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// LayoutTables recovers tables from pdftotext -layout output. Layout mode
// renders table columns as whitespace-aligned runs, so consecutive lines
// that split into the same number of columns are treated as one table.
type LayoutTables struct{}

// NewLayoutTables creates the layout table parser.
func NewLayoutTables() *LayoutTables {
	return &LayoutTables{}
}

// ExtractTables extracts layout tables from document text.
func (l *LayoutTables) ExtractTables(_ context.Context, text string) ([]model.Table, error) {
	return ParseLayoutTables(text), nil
}

var columnSplit = regexp.MustCompile(`\s{2,}`)

// minTableLines is header plus at least one data row.
const minTableLines = 2

// ParseLayoutTables scans layout-mode text for table regions. Pages are
// delimited by form feeds; within a page, a run of consecutive lines that
// all split into two or more columns forms one table, with the first line
// taken as the header row.
func ParseLayoutTables(text string) []model.Table {
	var tables []model.Table

	for pageIdx, page := range strings.Split(text, "\f") {
		lines := strings.Split(page, "\n")

		var run [][]string
		flush := func() {
			if len(run) >= minTableLines {
				t := model.Table{
					Page:    pageIdx + 1,
					Headers: run[0],
				}
				width := len(run[0])
				for _, cells := range run[1:] {
					t.Rows = append(t.Rows, padRow(cells, width))
				}
				tables = append(tables, t)
			}
			run = nil
		}

		for _, line := range lines {
			cells := splitColumns(line)
			if len(cells) >= 2 {
				run = append(run, cells)
				continue
			}
			flush()
		}
		flush()
	}

	return tables
}

func splitColumns(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	parts := columnSplit.Split(line, -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

func padRow(cells []string, width int) []string {
	if len(cells) >= width {
		return cells[:width]
	}
	padded := make([]string, width)
	copy(padded, cells)
	return padded
}
