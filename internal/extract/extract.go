// Package extract holds the deterministic extractors: plain-text and table
// extraction from PDF files. These are the cheap collaborators the tiered
// strategies build on; the expensive semantic analyzer lives elsewhere.
package extract

import (
	"context"

	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// TextExtractor extracts the plain text content of a PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// TableExtractor recovers tables from already-extracted document text, so
// the PDF is only parsed once per task.
type TableExtractor interface {
	ExtractTables(ctx context.Context, text string) ([]model.Table, error)
}

// Extractors bundles the deterministic extraction collaborators.
type Extractors struct {
	Text   TextExtractor
	Tables TableExtractor
}

// New creates the default extractor set: pdftotext for text and the layout
// column parser for tables.
func New(cfg config.ExtractConfig) Extractors {
	return Extractors{
		Text:   NewPdfToText(cfg.PdfToTextPath),
		Tables: NewLayoutTables(),
	}
}
