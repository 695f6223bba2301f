package strategy

import (
	"context"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markbunyevacz/lambda-extract/internal/confidence"
	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
)

var columnGapRe = regexp.MustCompile(`\s{2,}`)

type fieldMatcher struct {
	field    registry.Field
	patterns []*regexp.Regexp
}

// TextScan is the tier 0 strategy: a label/value scan over the layout text.
// It knows nothing about document structure beyond "the value follows its
// label on the same line", which is true often enough to be nearly free.
type TextScan struct {
	matchers []fieldMatcher
	timeout  time.Duration
}

func NewTextScan(reg *registry.Registry, timeout time.Duration) *TextScan {
	ts := &TextScan{timeout: timeout}
	for _, f := range reg.Fields {
		m := fieldMatcher{field: f}
		for _, alias := range append([]string{f.Label}, f.Aliases...) {
			// Label, optional unit in parens, separator, then the value up
			// to end of line. Layout text keeps label and value together.
			p := `(?im)` + regexp.QuoteMeta(alias) + `[^\n:=]{0,24}[:=\t ]\s*([^\n]{1,40})`
			re, err := regexp.Compile(p)
			if err != nil {
				zap.L().Warn("textscan: unusable alias", zap.String("field", f.Key), zap.String("alias", alias))
				continue
			}
			m.patterns = append(m.patterns, re)
		}
		ts.matchers = append(ts.matchers, m)
	}
	return ts
}

func (t *TextScan) Name() string           { return confidence.KindTextScan }
func (t *TextScan) Tier() int              { return 0 }
func (t *TextScan) Timeout() time.Duration { return t.timeout }
func (t *TextScan) Needs() Needs           { return Needs{Text: true} }

func (t *TextScan) Execute(ctx context.Context, in *Input) model.StrategyResult {
	start := time.Now()
	if in.Text == "" {
		return model.Failed(t.Name(), t.Tier(), eris.New("textscan: document has no extractable text"), time.Since(start))
	}

	fields := make(map[string]any)
	for _, m := range t.matchers {
		if err := ctx.Err(); err != nil {
			return model.Failed(t.Name(), t.Tier(), eris.Wrap(err, "textscan: cancelled"), time.Since(start))
		}
		for _, re := range m.patterns {
			grp := re.FindStringSubmatch(in.Text)
			if grp == nil {
				continue
			}
			if v, ok := coerceValue(m.field, grp[1]); ok {
				fields[m.field.Key] = v
				break
			}
		}
	}

	if len(fields) == 0 {
		return model.Failed(t.Name(), t.Tier(), eris.New("textscan: no known field labels found"), time.Since(start))
	}
	return model.StrategyResult{
		Strategy: t.Name(),
		Tier:     t.Tier(),
		Success:  true,
		Fields:   fields,
		Duration: time.Since(start),
	}
}

// coerceValue turns raw matched text into a typed field value. A label hit
// with an unparseable value counts as no hit at all.
func coerceValue(f registry.Field, raw string) (any, bool) {
	switch f.Kind {
	case registry.KindNumber:
		return firstNumber(raw)
	default:
		// In layout text a run of two or more spaces means the next
		// column started; the value ends there.
		v := cleanString(columnGapRe.Split(raw, 2)[0])
		if v == "" {
			return nil, false
		}
		return v, true
	}
}

func firstNumber(raw string) (any, bool) {
	v, ok := parseNumber(raw)
	if !ok {
		return nil, false
	}
	return v, true
}
