// Package strategy defines the polymorphic unit of extraction work and its
// concrete implementations, from cheap deterministic parsers to the
// AI-backed semantic analyzer.
package strategy

import (
	"context"
	"time"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// Needs declares which previously-extracted inputs a strategy consumes.
// Higher-tier strategies depend on lower-tier output so the orchestrator
// never parses the same document twice.
type Needs struct {
	Text   bool
	Tables bool
}

// Input carries the document and everything extracted from it so far.
// Strategies read it and never write it; the orchestrator is its owner.
type Input struct {
	Task         model.Task
	DocumentName string
	Text         string
	Tables       []model.Table
}

// Strategy is one unit of extraction work. Execute never panics and never
// returns a Go error: any internal failure is captured in the result with
// Success=false. The orchestrator treats an escaping failure as a bug, not
// a business outcome.
type Strategy interface {
	Name() string
	Tier() int
	Timeout() time.Duration
	Needs() Needs
	Execute(ctx context.Context, in *Input) model.StrategyResult
}
