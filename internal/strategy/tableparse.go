package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/markbunyevacz/lambda-extract/internal/confidence"
	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
)

// TableParse is the tier 1 strategy. Datasheets carry their technical
// properties in tables far more reliably than in prose, so this strategy
// matches registry aliases against table headers and row labels.
type TableParse struct {
	reg     *registry.Registry
	timeout time.Duration
}

func NewTableParse(reg *registry.Registry, timeout time.Duration) *TableParse {
	return &TableParse{reg: reg, timeout: timeout}
}

func (t *TableParse) Name() string           { return confidence.KindTableParse }
func (t *TableParse) Tier() int              { return 1 }
func (t *TableParse) Timeout() time.Duration { return t.timeout }
func (t *TableParse) Needs() Needs           { return Needs{Text: true, Tables: true} }

func (t *TableParse) Execute(ctx context.Context, in *Input) model.StrategyResult {
	start := time.Now()
	if len(in.Tables) == 0 {
		return model.Failed(t.Name(), t.Tier(), eris.New("tableparse: no tables detected in document"), time.Since(start))
	}

	fields := make(map[string]any)
	for _, tbl := range in.Tables {
		if err := ctx.Err(); err != nil {
			return model.Failed(t.Name(), t.Tier(), eris.Wrap(err, "tableparse: cancelled"), time.Since(start))
		}
		t.scanColumns(tbl, fields)
		t.scanRows(tbl, fields)
	}

	if len(fields) == 0 {
		return model.Failed(t.Name(), t.Tier(), eris.New("tableparse: tables match no known field labels"), time.Since(start))
	}
	return model.StrategyResult{
		Strategy: t.Name(),
		Tier:     t.Tier(),
		Success:  true,
		Fields:   fields,
		Duration: time.Since(start),
	}
}

// scanColumns handles the "one property per column" layout: a header cell
// names the field and the first data row carries its value.
func (t *TableParse) scanColumns(tbl model.Table, out map[string]any) {
	if len(tbl.Rows) == 0 {
		return
	}
	for col, header := range tbl.Headers {
		f := t.matchField(header)
		if f == nil {
			continue
		}
		if _, done := out[f.Key]; done {
			continue
		}
		for _, row := range tbl.Rows {
			if col >= len(row) {
				continue
			}
			if v, ok := coerceValue(*f, row[col]); ok {
				out[f.Key] = v
				break
			}
		}
	}
}

// scanRows handles the "property name in the first cell" layout: the label
// lives in column 0 and the value in the first cell that parses.
func (t *TableParse) scanRows(tbl model.Table, out map[string]any) {
	for _, row := range tbl.Rows {
		if len(row) < 2 {
			continue
		}
		f := t.matchField(row[0])
		if f == nil {
			continue
		}
		if _, done := out[f.Key]; done {
			continue
		}
		for _, cell := range row[1:] {
			if v, ok := coerceValue(*f, cell); ok {
				out[f.Key] = v
				break
			}
		}
	}
}

func (t *TableParse) matchField(label string) *registry.Field {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return nil
	}
	for i := range t.reg.Fields {
		f := &t.reg.Fields[i]
		for _, alias := range append([]string{f.Label}, f.Aliases...) {
			if strings.Contains(label, strings.ToLower(alias)) {
				return f
			}
		}
	}
	return nil
}
