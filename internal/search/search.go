// Package search maintains the secondary full-text index of golden records.
// The relational store is the source of truth; this index is a derived view
// optimized for "which datasheets mention X" queries.
package search

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// Document is the denormalized, searchable projection of a golden record.
type Document struct {
	TaskID     string  `json:"task_id"`
	Title      string  `json:"title"`
	SourceName string  `json:"source_name"`
	Body       string  `json:"body"`
	Confidence float64 `json:"confidence"`
}

// Hit is one search result.
type Hit struct {
	TaskID     string  `json:"task_id"`
	Title      string  `json:"title"`
	SourceName string  `json:"source_name"`
	Confidence float64 `json:"confidence"`
}

// Store is the search index backend.
type Store interface {
	Migrate(ctx context.Context) error
	Index(ctx context.Context, doc Document) error
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	Close() error
}

// FromRecord flattens a golden record into an indexable document. Field
// keys and values both become body text so either side of a property is
// findable.
func FromRecord(rec *model.GoldenRecord) Document {
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %v\n", strings.ReplaceAll(k, "_", " "), rec.Fields[k])
	}

	return Document{
		TaskID:     rec.TaskID,
		Title:      filepath.Base(rec.Document),
		SourceName: rec.SourceName,
		Body:       b.String(),
		Confidence: rec.OverallConfidence,
	}
}
