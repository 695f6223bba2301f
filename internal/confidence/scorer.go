// Package confidence turns raw extraction quality signals into one numeric
// trust value per strategy attempt.
package confidence

import (
	"math"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// Strategy kinds recognized for scoring adjustments. These match the
// Name() values of the concrete strategies.
const (
	KindTextScan   = "textscan"
	KindTableParse = "tableparse"
	KindSemantic   = "semantic"
)

// datasheetHints mark documents recognizably of the expected type.
var datasheetHints = []string{
	"datasheet", "technical data", "declaration of performance",
	"műszaki adatlap", "teljesítménynyilatkozat",
}

// Scorer computes a calibrated trust value in [0,1] for one strategy
// attempt. The weighting is policy, not law: weights are configuration and
// must sum to 1.
type Scorer struct {
	cfg config.ScorerConfig
}

// New creates a Scorer after validating the weight configuration.
func New(cfg config.ScorerConfig) (*Scorer, error) {
	sum := cfg.SelfWeight + cfg.TextWeight + cfg.TableWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, eris.Errorf("confidence: weights must sum to 1, got %.4f", sum)
	}
	if cfg.SelfWeight < 0 || cfg.TextWeight < 0 || cfg.TableWeight < 0 {
		return nil, eris.New("confidence: weights must be non-negative")
	}
	return &Scorer{cfg: cfg}, nil
}

// Score combines three independent signals: the strategy's own
// self-reported confidence (0 when absent), a text-quality heuristic and a
// table-quality heuristic, plus small additive adjustments for
// known-reliable strategy kinds and recognized document types.
func (s *Scorer) Score(text string, tables []model.Table, result model.StrategyResult, kind string) float64 {
	self := 0.0
	if result.SelfConfidence != nil {
		self = clamp01(*result.SelfConfidence)
	}

	score := s.cfg.SelfWeight*self +
		s.cfg.TextWeight*s.textQuality(text) +
		s.cfg.TableWeight*s.tableQuality(tables)

	switch kind {
	case KindTableParse:
		score += s.cfg.KindBonusTable
	case KindSemantic:
		score += s.cfg.KindBonusSemantic
	}

	if looksLikeDatasheet(text) {
		score += s.cfg.DatasheetHintBonus
	}

	return clamp01(score)
}

// textQuality scores extracted text: very short or low-alphanumeric text
// scores near 0; text above the saturation length with a healthy character
// mix saturates near 1.
func (s *Scorer) textQuality(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	sat := s.cfg.TextSaturationLen
	if sat <= 0 {
		sat = 1000
	}
	lengthScore := math.Min(1.0, float64(len(trimmed))/float64(sat))

	alnum := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	ratio := float64(alnum) / float64(len([]rune(trimmed)))
	// A healthy text layer sits around 60%+ alphanumeric; garbled
	// extractions (symbol soup) fall well below.
	ratioScore := clamp01(ratio / 0.6)

	return lengthScore * ratioScore
}

// tableQuality scores the fraction of non-empty cells across all tables.
// Documents without tables get the neutral baseline: absence of tables is
// not evidence of a bad extraction.
func (s *Scorer) tableQuality(tables []model.Table) float64 {
	if len(tables) == 0 {
		return s.cfg.TableNeutralScore
	}
	return model.FillRatio(tables)
}

func looksLikeDatasheet(text string) bool {
	lower := strings.ToLower(text)
	for _, hint := range datasheetHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
