// Package golden merges the results of all executed strategies into a
// single golden record: one winning value per field, a per-field confidence
// trail, and document-level completeness and consistency scores.
package golden

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markbunyevacz/lambda-extract/internal/confidence"
	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
)

// Floors keep the completeness and consistency multipliers from erasing the
// field-level signal entirely: a sparse but internally coherent record still
// scores above zero, it just cannot score high.
const (
	completenessFloor = 0.5
	consistencyFloor  = 0.7

	agreementBoost  = 0.10
	conflictPenalty = 0.70
)

// Builder merges strategy results into golden records.
type Builder struct {
	reg    *registry.Registry
	scorer *confidence.Scorer
	cfg    config.ExtractionConfig
}

func NewBuilder(reg *registry.Registry, scorer *confidence.Scorer, cfg config.ExtractionConfig) *Builder {
	return &Builder{reg: reg, scorer: scorer, cfg: cfg}
}

type candidate struct {
	value    any
	strategy string
	tier     int
	score    float64
}

// Build merges results into one golden record. The merge is order
// independent: results are sorted by tier (descending) and strategy name
// before any field is resolved, so callers may pass them in any order.
//
// floor is the overall confidence an earlier merge of the same task already
// reached. Adding tiers only adds evidence, so the rebuilt record never
// scores below it; conflicts introduced by a higher tier still reduce the
// contested field's confidence and attach their notes.
func (b *Builder) Build(task model.Task, text string, tables []model.Table, results []model.StrategyResult, floor float64, took time.Duration) *model.GoldenRecord {
	sorted := make([]model.StrategyResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Tier != sorted[j].Tier {
			return sorted[i].Tier > sorted[j].Tier
		}
		return sorted[i].Strategy < sorted[j].Strategy
	})

	rec := &model.GoldenRecord{
		TaskID:           task.ID,
		Document:         task.DocumentPath,
		SourceName:       task.SourceName,
		Fields:           make(map[string]any),
		FieldConfidences: make(map[string]model.FieldConfidence),
		ProcessingTime:   took,
		CreatedAt:        time.Now().UTC(),
	}

	var totalCost float64
	byField := make(map[string][]candidate)
	for _, r := range sorted {
		totalCost += r.CostUSD
		if !r.Success {
			continue
		}
		rec.StrategiesUsed = append(rec.StrategiesUsed, r.Strategy)
		score := b.scorer.Score(text, tables, r, r.Strategy)
		for key, val := range r.Fields {
			if val == nil {
				continue
			}
			byField[key] = append(byField[key], candidate{
				value:    val,
				strategy: r.Strategy,
				tier:     r.Tier,
				score:    score,
			})
		}
	}
	rec.CostUSD = totalCost

	if len(byField) == 0 {
		rec.RequiresReview = true
		rec.ReviewNotes = append(rec.ReviewNotes, "no strategy extracted any field")
		zap.L().Warn("golden: empty merge", zap.String("task_id", task.ID), zap.String("document", task.DocumentPath))
		return rec
	}

	agreedFields, contestedFields := 0, 0
	for _, key := range b.fieldOrder(byField) {
		cands := byField[key]
		winner := cands[0]
		rec.Fields[key] = winner.value

		score := winner.score
		var notes []string
		if len(cands) > 1 {
			contestedFields++
			if conflicts := b.disagreements(key, cands); len(conflicts) > 0 {
				score *= conflictPenalty
				notes = append(notes, conflicts...)
			} else {
				agreedFields++
				score = clamp01(score + agreementBoost)
				notes = append(notes, fmt.Sprintf("confirmed by %d strategies", len(cands)))
			}
		}

		if score < b.cfg.FieldReviewThreshold {
			rec.RequiresReview = true
			rec.ReviewNotes = append(rec.ReviewNotes, fmt.Sprintf("field %s below review threshold (%.2f)", key, score))
		}
		rec.FieldConfidences[key] = model.FieldConfidence{
			Score: score,
			Level: model.LevelFor(score),
			Notes: strings.Join(notes, "; "),
		}
	}

	rec.Completeness = b.completeness(task, rec.Fields)
	if contestedFields == 0 {
		rec.Consistency = 1.0
	} else {
		rec.Consistency = float64(agreedFields) / float64(contestedFields)
	}

	mean := 0.0
	for _, fc := range rec.FieldConfidences {
		mean += fc.Score
	}
	mean /= float64(len(rec.FieldConfidences))

	rec.OverallConfidence = clamp01(mean *
		scaled(rec.Completeness, completenessFloor) *
		scaled(rec.Consistency, consistencyFloor))
	if rec.OverallConfidence < floor {
		rec.OverallConfidence = clamp01(floor)
	}

	if rec.OverallConfidence < b.cfg.ReviewThreshold {
		rec.RequiresReview = true
		rec.ReviewNotes = append(rec.ReviewNotes, fmt.Sprintf("overall confidence %.2f below review threshold", rec.OverallConfidence))
	}

	return rec
}

// fieldOrder returns candidate field keys sorted for deterministic output.
func (b *Builder) fieldOrder(byField map[string][]candidate) []string {
	keys := make([]string, 0, len(byField))
	for k := range byField {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// disagreements returns a conflict note for every losing candidate whose
// value does not agree with the winner. Agreement is tolerant for numbers.
func (b *Builder) disagreements(key string, cands []candidate) []string {
	winner := cands[0]
	var notes []string
	for _, c := range cands[1:] {
		if b.valuesAgree(winner.value, c.value) {
			continue
		}
		notes = append(notes, fmt.Sprintf("conflict on %s: kept %v from %s, dropped %v from %s",
			key, winner.value, winner.strategy, c.value, c.strategy))
	}
	return notes
}

// valuesAgree compares two extracted values. Numbers agree within the
// configured tolerance scaled by magnitude; strings compare case and
// whitespace insensitively.
func (b *Builder) valuesAgree(a, c any) bool {
	af, aok := asNumber(a)
	cf, cok := asNumber(c)
	if aok && cok {
		tol := b.cfg.NumericTolerance * math.Max(1, math.Max(math.Abs(af), math.Abs(cf)))
		return math.Abs(af-cf) <= tol
	}
	if aok != cok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(fmt.Sprint(a)), strings.TrimSpace(fmt.Sprint(c)))
}

// completeness is the fraction of expected fields present. The task's
// explicit target list wins; otherwise the whole registry is expected.
func (b *Builder) completeness(task model.Task, fields map[string]any) float64 {
	expected := task.TargetFields
	if len(expected) == 0 {
		expected = b.reg.Keys()
	}
	if len(expected) == 0 {
		return 1.0
	}
	found := 0
	for _, key := range expected {
		if _, ok := fields[key]; ok {
			found++
		}
	}
	return float64(found) / float64(len(expected))
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// scaled maps v in [0,1] onto [floor,1] so a low score dampens but never
// zeroes the overall confidence.
func scaled(v, floor float64) float64 {
	return floor + (1-floor)*clamp01(v)
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
