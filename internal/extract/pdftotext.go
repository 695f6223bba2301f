package extract

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"

	"github.com/markbunyevacz/lambda-extract/internal/normalize"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool in layout
// mode. Layout mode preserves column alignment, which the table parser
// depends on.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText validates the PDF, runs pdftotext -layout and returns the
// normalized UTF-8 output. Pages are separated by form feeds.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	if err := Preflight(pdfPath); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "extract: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	text, err := normalize.Text(stdout.Bytes())
	if err != nil {
		return "", eris.Wrapf(err, "extract: normalize output of %s", pdfPath)
	}
	return text, nil
}
