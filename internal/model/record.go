package model

import "time"

// ConfidenceLevel is a discrete bucket derived from a numeric score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// LevelFor maps a score in [0,1] to a discrete confidence level.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.75:
		return ConfidenceHigh
	case score >= 0.45:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// FieldConfidence is the per-field trust record inside a golden record.
type FieldConfidence struct {
	Score float64         `json:"score"`
	Level ConfidenceLevel `json:"level"`
	Notes string          `json:"notes,omitempty"`
}

// GoldenRecord is the final merged, confidence-scored extraction result for
// one document. The orchestrator is its sole writer; once handed to the
// storage adapters it is immutable history.
type GoldenRecord struct {
	TaskID            string                     `json:"task_id"`
	Document          string                     `json:"document"`
	SourceName        string                     `json:"source_name"`
	Fingerprint       string                     `json:"fingerprint"`
	Fields            map[string]any             `json:"fields"`
	FieldConfidences  map[string]FieldConfidence `json:"field_confidences"`
	OverallConfidence float64                    `json:"overall_confidence"`
	Completeness      float64                    `json:"completeness"`
	Consistency       float64                    `json:"consistency"`
	StrategiesUsed    []string                   `json:"strategies_used"`
	ProcessingTime    time.Duration              `json:"processing_time"`
	RequiresReview    bool                       `json:"requires_review"`
	ReviewNotes       []string                   `json:"review_notes,omitempty"`
	CostUSD           float64                    `json:"cost_usd"`
	CreatedAt         time.Time                  `json:"created_at"`
}
