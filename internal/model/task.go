// Package model defines the core data types shared across the extraction
// pipeline: tasks, strategy results, tables and golden records.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Task identifies one unit of extraction work. Immutable once created;
// the orchestrator owns it for its lifetime.
type Task struct {
	ID           string    `json:"id"`
	DocumentPath string    `json:"document_path"`
	SourceName   string    `json:"source_name"`
	TargetFields []string  `json:"target_fields,omitempty"`
	CostCeiling  float64   `json:"cost_ceiling_usd,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// NewTask creates a Task for the given document with a fresh ID.
func NewTask(documentPath, sourceName string) Task {
	return Task{
		ID:           uuid.New().String(),
		DocumentPath: documentPath,
		SourceName:   sourceName,
		SubmittedAt:  time.Now().UTC(),
	}
}

// OutcomeKind classifies the terminal result of a submitted task.
type OutcomeKind string

const (
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
)

// PersistenceStatus reports the two storage writes separately so a caller
// can retry only the failed half.
type PersistenceStatus struct {
	RelationalOK  bool   `json:"relational_ok"`
	SearchOK      bool   `json:"search_ok"`
	RelationalErr string `json:"relational_err,omitempty"`
	SearchErr     string `json:"search_err,omitempty"`
}

// Partial reports whether exactly one of the two writes failed.
func (p PersistenceStatus) Partial() bool {
	return p.RelationalOK != p.SearchOK
}

// Outcome is the terminal result of Submit. Exactly one of the three kinds
// is produced for every task; the orchestrator never leaves a task pending.
type Outcome struct {
	Kind        OutcomeKind        `json:"kind"`
	Fingerprint string             `json:"fingerprint,omitempty"`
	Record      *GoldenRecord      `json:"record,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Persistence *PersistenceStatus `json:"persistence,omitempty"`
}
