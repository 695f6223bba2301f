package confidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/model"
)

func testScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		SelfWeight:        0.6,
		TextWeight:        0.2,
		TableWeight:       0.2,
		TextSaturationLen: 1000,
		TableNeutralScore: 0.5,
	}
}

func goodText() string {
	return strings.Repeat("Thermal conductivity 0.035 W/mK measured per EN 12667. ", 40)
}

func fullTable() []model.Table {
	return []model.Table{{
		Headers: []string{"Property", "Value"},
		Rows:    [][]string{{"Density", "140"}, {"Lambda", "0.035"}},
	}}
}

func TestNewValidatesWeights(t *testing.T) {
	cfg := testScorerConfig()
	cfg.SelfWeight = 0.9
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testScorerConfig()
	cfg.TextWeight = -0.2
	cfg.SelfWeight = 1.0
	_, err = New(cfg)
	assert.Error(t, err)

	_, err = New(testScorerConfig())
	assert.NoError(t, err)
}

func TestScoreAlwaysInUnitInterval(t *testing.T) {
	cfg := testScorerConfig()
	cfg.KindBonusSemantic = 0.5
	cfg.DatasheetHintBonus = 0.5
	s, err := New(cfg)
	require.NoError(t, err)

	high := 5.0
	res := model.StrategyResult{Success: true, SelfConfidence: &high}
	score := s.Score(goodText()+" datasheet", fullTable(), res, KindSemantic)
	assert.LessOrEqual(t, score, 1.0)

	low := -3.0
	res.SelfConfidence = &low
	score = s.Score("", nil, res, KindTextScan)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestScoreMissingSelfConfidenceContributesZero(t *testing.T) {
	s, err := New(testScorerConfig())
	require.NoError(t, err)

	text := goodText()
	without := s.Score(text, fullTable(), model.StrategyResult{Success: true}, KindTextScan)

	full := 1.0
	with := s.Score(text, fullTable(), model.StrategyResult{Success: true, SelfConfidence: &full}, KindTextScan)

	// The self signal is worth exactly its weight.
	assert.InDelta(t, 0.6, with-without, 1e-9)
}

func TestScoreDegradedSignalsLowerConfidence(t *testing.T) {
	s, err := New(testScorerConfig())
	require.NoError(t, err)

	self := 0.9
	res := model.StrategyResult{Success: true, SelfConfidence: &self}

	rich := s.Score(goodText(), fullTable(), res, KindSemantic)
	garbled := s.Score("@@#$%^&*((!@#", nil, res, KindSemantic)
	assert.Greater(t, rich, garbled)

	sparse := []model.Table{{Headers: []string{"A", "B"}, Rows: [][]string{{"", ""}, {"", ""}}}}
	sparseScore := s.Score(goodText(), sparse, res, KindSemantic)
	assert.Greater(t, rich, sparseScore)
}

func TestScoreNoTablesIsNeutralNotZero(t *testing.T) {
	s, err := New(testScorerConfig())
	require.NoError(t, err)

	self := 0.8
	res := model.StrategyResult{Success: true, SelfConfidence: &self}

	none := s.Score(goodText(), nil, res, KindSemantic)
	empty := s.Score(goodText(), []model.Table{{Headers: []string{"A", "B"}, Rows: [][]string{{"", ""}}}}, res, KindSemantic)
	assert.Greater(t, none, empty)
}

func TestScoreKindAndHintBonuses(t *testing.T) {
	cfg := testScorerConfig()
	cfg.KindBonusTable = 0.03
	cfg.KindBonusSemantic = 0.05
	cfg.DatasheetHintBonus = 0.02
	s, err := New(cfg)
	require.NoError(t, err)

	res := model.StrategyResult{Success: true}
	text := "Some short extract"

	base := s.Score(text, nil, res, KindTextScan)
	table := s.Score(text, nil, res, KindTableParse)
	semantic := s.Score(text, nil, res, KindSemantic)
	assert.InDelta(t, 0.03, table-base, 1e-9)
	assert.InDelta(t, 0.05, semantic-base, 1e-9)

	hinted := s.Score(text+" műszaki adatlap", nil, res, KindTextScan)
	assert.Greater(t, hinted, base)
}
