// Package cost computes the dollar cost of extraction work so the
// orchestrator can enforce per-task cost ceilings.
package cost

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds pricing for the analyzer models and the nominal per-run cost
// of the deterministic tiers.
type Rates struct {
	Analyzer map[string]ModelRate `yaml:"analyzer" mapstructure:"analyzer"`
	// TierUnits is the fixed bookkeeping cost charged per strategy run in
	// each deterministic tier. Deterministic tiers are nearly free; the
	// non-zero value keeps escalation accounting monotonic.
	TierUnits map[int]float64 `yaml:"tier_units" mapstructure:"tier_units"`
}

// Calculator computes USD costs for extraction work.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Analyzer computes the cost of one analyzer call. Unknown models cost 0.
func (c *Calculator) Analyzer(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := c.rates.Analyzer[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// TierRun returns the fixed cost charged for one strategy run in the given
// tier. The analyzer tier's token cost is charged separately via Analyzer.
func (c *Calculator) TierRun(tier int) float64 {
	return c.rates.TierUnits[tier]
}

// DefaultRates returns the default pricing table.
func DefaultRates() Rates {
	return Rates{
		Analyzer: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		TierUnits: map[int]float64{
			0: 0.0001,
			1: 0.0002,
			2: 0.001,
		},
	}
}
