// Package export renders golden records into spreadsheet workbooks for the
// humans reviewing them.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
)

// Workbook writes records to an .xlsx file: one row per record, one column
// per registry field, plus the confidence and review columns reviewers sort
// by.
func Workbook(path string, reg *registry.Registry, records []*model.GoldenRecord) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Extractions")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	fieldKeys := reg.Keys()

	header := sheet.AddRow()
	for _, h := range []string{"document", "source", "confidence", "completeness", "consistency", "requires_review"} {
		header.AddCell().Value = h
	}
	for _, key := range fieldKeys {
		header.AddCell().Value = key
		header.AddCell().Value = key + "_confidence"
	}
	header.AddCell().Value = "review_notes"

	sorted := make([]*model.GoldenRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OverallConfidence < sorted[j].OverallConfidence
	})

	for _, rec := range sorted {
		row := sheet.AddRow()
		row.AddCell().Value = rec.Document
		row.AddCell().Value = rec.SourceName
		row.AddCell().SetFloatWithFormat(rec.OverallConfidence, "0.00")
		row.AddCell().SetFloatWithFormat(rec.Completeness, "0.00")
		row.AddCell().SetFloatWithFormat(rec.Consistency, "0.00")
		row.AddCell().SetBool(rec.RequiresReview)

		for _, key := range fieldKeys {
			valCell := row.AddCell()
			if v, ok := rec.Fields[key]; ok {
				switch n := v.(type) {
				case float64:
					valCell.SetFloat(n)
				default:
					valCell.Value = fmt.Sprint(v)
				}
			}
			confCell := row.AddCell()
			if fc, ok := rec.FieldConfidences[key]; ok {
				confCell.SetFloatWithFormat(fc.Score, "0.00")
			}
		}
		row.AddCell().Value = strings.Join(rec.ReviewNotes, "; ")
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
