package strategy

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markbunyevacz/lambda-extract/internal/analyzer"
	"github.com/markbunyevacz/lambda-extract/internal/confidence"
	"github.com/markbunyevacz/lambda-extract/internal/cost"
	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// Semantic is the tier 2 strategy: it hands the extracted text and tables to
// the AI analyzer and trusts its structured reply. Unlike the deterministic
// tiers it reports a self confidence and a real dollar cost, and its
// concurrency is capped by a gate shared across all in-flight tasks.
type Semantic struct {
	client  analyzer.Client
	gate    *analyzer.Gate
	costs   *cost.Calculator
	model   string
	timeout time.Duration
}

func NewSemantic(client analyzer.Client, gate *analyzer.Gate, costs *cost.Calculator, modelName string, timeout time.Duration) *Semantic {
	return &Semantic{
		client:  client,
		gate:    gate,
		costs:   costs,
		model:   modelName,
		timeout: timeout,
	}
}

func (s *Semantic) Name() string           { return confidence.KindSemantic }
func (s *Semantic) Tier() int              { return 2 }
func (s *Semantic) Timeout() time.Duration { return s.timeout }
func (s *Semantic) Needs() Needs           { return Needs{Text: true, Tables: true} }

func (s *Semantic) Execute(ctx context.Context, in *Input) model.StrategyResult {
	start := time.Now()

	if err := s.gate.Acquire(ctx); err != nil {
		return model.Failed(s.Name(), s.Tier(), eris.Wrap(err, "semantic: waiting for analyzer slot"), time.Since(start))
	}
	defer s.gate.Release()

	analysis, err := s.client.Analyze(ctx, in.Text, in.Tables, in.DocumentName)
	if err != nil {
		return model.Failed(s.Name(), s.Tier(), eris.Wrap(err, "semantic: analyzer call"), time.Since(start))
	}
	if len(analysis.Fields) == 0 {
		res := model.Failed(s.Name(), s.Tier(), eris.New("semantic: analyzer returned no fields"), time.Since(start))
		res.CostUSD = s.costs.Analyzer(s.model, analysis.Usage.InputTokens, analysis.Usage.OutputTokens)
		return res
	}

	conf := analysis.SelfConfidence
	spent := s.costs.Analyzer(s.model, analysis.Usage.InputTokens, analysis.Usage.OutputTokens)
	zap.L().Debug("semantic: analysis complete",
		zap.String("document", in.DocumentName),
		zap.Int("fields", len(analysis.Fields)),
		zap.Float64("self_confidence", conf),
		zap.Float64("cost_usd", spent))

	return model.StrategyResult{
		Strategy:       s.Name(),
		Tier:           s.Tier(),
		Success:        true,
		Fields:         analysis.Fields,
		Duration:       time.Since(start),
		SelfConfidence: &conf,
		CostUSD:        spent,
	}
}
