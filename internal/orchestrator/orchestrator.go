// Package orchestrator drives one extraction task through its lifecycle:
// duplicate gate, tiered strategy execution with escalation, golden record
// merge, and dual persistence. Submit always produces exactly one terminal
// outcome; business failures live in the outcome, not in the error return.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/cost"
	"github.com/markbunyevacz/lambda-extract/internal/dedupe"
	"github.com/markbunyevacz/lambda-extract/internal/extract"
	"github.com/markbunyevacz/lambda-extract/internal/golden"
	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/search"
	"github.com/markbunyevacz/lambda-extract/internal/store"
	"github.com/markbunyevacz/lambda-extract/internal/strategy"
)

// State is one phase of the task lifecycle.
type State string

const (
	StatePending       State = "pending"
	StateDeduplicating State = "deduplicating"
	StateRunningTier   State = "running_tier"
	StateMerging       State = "merging"
	StateDeciding      State = "deciding"
	StateEscalating    State = "escalating"
	StateFinalizing    State = "finalizing"
	StateDone          State = "done"
)

// finalizeTimeout bounds the Finalizing phase (fingerprint log + dual
// persistence), which deliberately outlives the task's own deadline.
const finalizeTimeout = 30 * time.Second

// Orchestrator coordinates the collaborators of one extraction pipeline.
// It is safe for concurrent Submit calls; per-task state lives on the stack.
type Orchestrator struct {
	cfg        config.ExtractionConfig
	dedup      *dedupe.Deduplicator
	extractors extract.Extractors
	strategies []strategy.Strategy
	builder    *golden.Builder
	costs      *cost.Calculator
	records    store.Store
	index      search.Store

	// OnTransition, when set, observes every state change. Used by tests
	// and the batch progress reporter.
	OnTransition func(taskID string, from, to State)
}

func New(cfg config.ExtractionConfig, dedup *dedupe.Deduplicator, ex extract.Extractors,
	strategies []strategy.Strategy, builder *golden.Builder, costs *cost.Calculator,
	records store.Store, index search.Store) *Orchestrator {

	sorted := make([]strategy.Strategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tier() < sorted[j].Tier() })

	return &Orchestrator{
		cfg:        cfg,
		dedup:      dedup,
		extractors: ex,
		strategies: sorted,
		builder:    builder,
		costs:      costs,
		records:    records,
		index:      index,
	}
}

// taskRun is the mutable per-task state. It never escapes Submit.
type taskRun struct {
	task    model.Task
	state   State
	input   strategy.Input
	hasText bool
	hasTabs bool
	results []model.StrategyResult
	spent   float64
}

// Submit runs one task to completion. The returned error is reserved for
// infrastructure faults that prevented producing any outcome; everything
// the document did wrong is reported through the Outcome.
func (o *Orchestrator) Submit(ctx context.Context, task model.Task) (*model.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout())
	defer cancel()

	run := &taskRun{
		task:  task,
		state: StatePending,
		input: strategy.Input{
			Task:         task,
			DocumentName: filepath.Base(task.DocumentPath),
		},
	}
	started := time.Now()

	o.transition(run, StateDeduplicating)
	fp, known, err := o.dedup.Check(ctx, task.DocumentPath)
	if err != nil {
		o.transition(run, StateDone)
		return &model.Outcome{
			Kind:   model.OutcomeFailed,
			Reason: fmt.Sprintf("duplicate check: %v", err),
		}, nil
	}
	if known {
		o.transition(run, StateDone)
		zap.L().Info("orchestrator: duplicate skipped",
			zap.String("task_id", task.ID),
			zap.String("fingerprint", fp))
		return &model.Outcome{
			Kind:        model.OutcomeSkipped,
			Fingerprint: fp,
			Reason:      "document already processed",
		}, nil
	}

	ceiling := task.CostCeiling
	if ceiling <= 0 {
		ceiling = o.cfg.DefaultCostCeiling
	}

	var rec *model.GoldenRecord
	var stopNote string
	var reached float64

	for tier := 0; tier <= o.cfg.MaxTier; tier++ {
		tierStrategies := o.tierStrategies(tier)
		if len(tierStrategies) == 0 {
			continue
		}

		o.transition(run, StateRunningTier)
		o.runTier(ctx, run, tier, tierStrategies)

		o.transition(run, StateMerging)
		rec = o.builder.Build(task, run.input.Text, run.input.Tables, run.results, reached, time.Since(started))
		reached = rec.OverallConfidence

		o.transition(run, StateDeciding)
		if rec.OverallConfidence >= o.cfg.TargetConfidence {
			break
		}
		if tier == o.cfg.MaxTier {
			stopNote = "target confidence not reached after final tier"
			break
		}
		if run.spent >= ceiling {
			stopNote = fmt.Sprintf("cost ceiling reached (%.4f USD of %.4f)", run.spent, ceiling)
			break
		}
		if ctx.Err() != nil {
			stopNote = "task deadline exhausted before escalation"
			break
		}

		o.transition(run, StateEscalating)
		zap.L().Info("orchestrator: escalating",
			zap.String("task_id", task.ID),
			zap.Int("next_tier", tier+1),
			zap.Float64("confidence", rec.OverallConfidence))
	}

	o.transition(run, StateFinalizing)
	if rec == nil {
		rec = o.builder.Build(task, run.input.Text, run.input.Tables, run.results, reached, time.Since(started))
	}
	rec.Fingerprint = fp
	if stopNote != "" {
		rec.RequiresReview = true
		rec.ReviewNotes = append(rec.ReviewNotes, stopNote)
	}

	// Finalizing runs on its own clock. The task budget may already be
	// exhausted by the tier loop, and the record must still reach the
	// fingerprint log and both stores.
	finCtx, finCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finCancel()

	// The fingerprint goes into the processed log before the storage
	// writes: a duplicate submitted moments later must be skipped even if
	// one of the writes below fails.
	if err := o.dedup.Mark(finCtx, fp, task.SourceName); err != nil {
		zap.L().Warn("orchestrator: fingerprint not recorded",
			zap.String("task_id", task.ID), zap.Error(err))
	}

	persist := o.persist(finCtx, rec)
	o.transition(run, StateDone)

	if !persist.RelationalOK && !persist.SearchOK {
		return &model.Outcome{
			Kind:        model.OutcomeFailed,
			Fingerprint: fp,
			Record:      rec,
			Reason:      "both storage writes failed",
			Persistence: &persist,
		}, nil
	}
	return &model.Outcome{
		Kind:        model.OutcomeCompleted,
		Fingerprint: fp,
		Record:      rec,
		Persistence: &persist,
	}, nil
}

func (o *Orchestrator) tierStrategies(tier int) []strategy.Strategy {
	var out []strategy.Strategy
	for _, s := range o.strategies {
		if s.Tier() == tier {
			out = append(out, s)
		}
	}
	return out
}

// runTier prepares the inputs the tier's strategies declared and executes
// them concurrently. Every strategy contributes exactly one result,
// successful or not.
func (o *Orchestrator) runTier(ctx context.Context, run *taskRun, tier int, strategies []strategy.Strategy) {
	for _, s := range strategies {
		o.ensureInputs(ctx, run, s.Needs())
	}

	results := make([]model.StrategyResult, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			results[i] = o.execute(gctx, run, s)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	for _, res := range results {
		run.spent += res.CostUSD + o.costs.TierRun(res.Tier)
		run.results = append(run.results, res)
		if !res.Success {
			zap.L().Warn("orchestrator: strategy failed",
				zap.String("task_id", run.task.ID),
				zap.String("strategy", res.Strategy),
				zap.Int("tier", tier),
				zap.String("error", res.Error))
		}
	}
}

// execute runs one strategy under its own timeout. A panic escaping a
// strategy is a contract violation; it is converted to a failure result so
// one bad strategy cannot take down the task.
func (o *Orchestrator) execute(ctx context.Context, run *taskRun, s strategy.Strategy) (res model.StrategyResult) {
	timeout := s.Timeout()
	if timeout <= 0 {
		timeout = o.cfg.TierTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan model.StrategyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- model.Failed(s.Name(), s.Tier(),
					eris.Errorf("strategy panic: %v", r), time.Since(start))
			}
		}()
		done <- s.Execute(ctx, &run.input)
	}()

	select {
	case res = <-done:
		return res
	case <-ctx.Done():
		return model.Failed(s.Name(), s.Tier(),
			eris.Wrapf(ctx.Err(), "strategy %s timed out after %s", s.Name(), timeout), time.Since(start))
	}
}

// ensureInputs lazily extracts text and tables the first time a strategy
// asks for them. Extraction failures are logged and leave the input empty;
// the strategies themselves report the resulting misses.
func (o *Orchestrator) ensureInputs(ctx context.Context, run *taskRun, needs strategy.Needs) {
	// Tables are parsed out of the text layer, so needing tables implies
	// needing text.
	if (needs.Text || needs.Tables) && !run.hasText {
		run.hasText = true
		text, err := o.extractors.Text.ExtractText(ctx, run.task.DocumentPath)
		if err != nil {
			zap.L().Warn("orchestrator: text extraction failed",
				zap.String("task_id", run.task.ID), zap.Error(err))
		} else {
			run.input.Text = text
		}
	}
	if needs.Tables && !run.hasTabs {
		run.hasTabs = true
		tables, err := o.extractors.Tables.ExtractTables(ctx, run.input.Text)
		if err != nil {
			zap.L().Warn("orchestrator: table extraction failed",
				zap.String("task_id", run.task.ID), zap.Error(err))
		} else {
			run.input.Tables = tables
		}
	}
}

// persist writes the record to both stores, reporting each write separately.
func (o *Orchestrator) persist(ctx context.Context, rec *model.GoldenRecord) model.PersistenceStatus {
	var status model.PersistenceStatus

	if err := o.records.SaveRecord(ctx, rec); err != nil {
		status.RelationalErr = err.Error()
		zap.L().Error("orchestrator: relational write failed",
			zap.String("task_id", rec.TaskID), zap.Error(err))
	} else {
		status.RelationalOK = true
	}

	if err := o.index.Index(ctx, search.FromRecord(rec)); err != nil {
		status.SearchErr = err.Error()
		zap.L().Error("orchestrator: search index write failed",
			zap.String("task_id", rec.TaskID), zap.Error(err))
	} else {
		status.SearchOK = true
	}

	if status.Partial() {
		zap.L().Warn("orchestrator: partial persistence",
			zap.String("task_id", rec.TaskID),
			zap.Bool("relational_ok", status.RelationalOK),
			zap.Bool("search_ok", status.SearchOK))
	}
	return status
}

func (o *Orchestrator) transition(run *taskRun, to State) {
	from := run.state
	run.state = to
	zap.L().Debug("orchestrator: state",
		zap.String("task_id", run.task.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	if o.OnTransition != nil {
		o.OnTransition(run.task.ID, from, to)
	}
}
