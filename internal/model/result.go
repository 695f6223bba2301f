package model

import "time"

// StrategyResult is the output of one strategy execution. Strategies never
// return Go errors; any internal failure is captured as Success=false with
// an error message.
type StrategyResult struct {
	Strategy       string         `json:"strategy"`
	Tier           int            `json:"tier"`
	Success        bool           `json:"success"`
	Fields         map[string]any `json:"fields,omitempty"`
	Error          string         `json:"error,omitempty"`
	Duration       time.Duration  `json:"duration"`
	SelfConfidence *float64       `json:"self_confidence,omitempty"`
	CostUSD        float64        `json:"cost_usd,omitempty"`
}

// Failed builds a failure result for the given strategy.
func Failed(strategy string, tier int, err error, took time.Duration) StrategyResult {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return StrategyResult{
		Strategy: strategy,
		Tier:     tier,
		Success:  false,
		Error:    msg,
		Duration: took,
	}
}
