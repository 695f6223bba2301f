// Package analyzer wraps the AI semantic analyzer: a Claude-backed client
// that turns extracted text and tables into a structured attribute guess
// with a self-reported confidence. It is the costliest collaborator in the
// pipeline, so calls are rate limited and capped by a shared gate.
package analyzer

import (
	"context"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// Usage tracks token consumption of one analyzer call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Analysis is the analyzer's structured guess for one document.
type Analysis struct {
	Fields         map[string]any `json:"fields"`
	SelfConfidence float64        `json:"self_confidence"`
	Usage          Usage          `json:"usage"`
}

// Client is the AI analyzer collaborator. Analyze must respect the context
// deadline and never block indefinitely.
type Client interface {
	Analyze(ctx context.Context, text string, tables []model.Table, documentName string) (*Analysis, error)
}
