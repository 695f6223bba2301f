package extract

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
)

// Preflight checks that the file is a structurally valid PDF before any
// extraction work is spent on it.
func Preflight(pdfPath string) error {
	if err := api.ValidateFile(pdfPath, nil); err != nil {
		return eris.Wrapf(err, "extract: invalid PDF %s", pdfPath)
	}
	return nil
}

// PageCount returns the number of pages in the PDF.
func PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: page count of %s", pdfPath)
	}
	return n, nil
}
