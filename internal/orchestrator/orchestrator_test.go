package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markbunyevacz/lambda-extract/internal/confidence"
	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/cost"
	"github.com/markbunyevacz/lambda-extract/internal/dedupe"
	"github.com/markbunyevacz/lambda-extract/internal/extract"
	"github.com/markbunyevacz/lambda-extract/internal/golden"
	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
	"github.com/markbunyevacz/lambda-extract/internal/search"
	"github.com/markbunyevacz/lambda-extract/internal/store"
	"github.com/markbunyevacz/lambda-extract/internal/strategy"
)

// -- test doubles --

type stubStrategy struct {
	name     string
	tier     int
	fields   map[string]any
	self     *float64
	cost     float64
	sleep    time.Duration
	timeout  time.Duration
	panicMsg string
	calls    atomic.Int32
}

func (s *stubStrategy) Name() string           { return s.name }
func (s *stubStrategy) Tier() int              { return s.tier }
func (s *stubStrategy) Timeout() time.Duration { return s.timeout }
func (s *stubStrategy) Needs() strategy.Needs  { return strategy.Needs{Text: true, Tables: true} }

func (s *stubStrategy) Execute(ctx context.Context, _ *strategy.Input) model.StrategyResult {
	s.calls.Add(1)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.sleep > 0 {
		select {
		case <-time.After(s.sleep):
		case <-ctx.Done():
			return model.Failed(s.name, s.tier, ctx.Err(), 0)
		}
	}
	if s.fields == nil {
		return model.Failed(s.name, s.tier, eris.New("nothing found"), 0)
	}
	return model.StrategyResult{
		Strategy:       s.name,
		Tier:           s.tier,
		Success:        true,
		Fields:         s.fields,
		SelfConfidence: s.self,
		CostUSD:        s.cost,
	}
}

type fakeText struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeText) ExtractText(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type memStore struct {
	mu      sync.Mutex
	records map[string]*model.GoldenRecord
	fps     map[string]string
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]*model.GoldenRecord),
		fps:     make(map[string]string),
	}
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func (m *memStore) SaveRecord(ctx context.Context, rec *model.GoldenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.TaskID] = rec
	return nil
}

func (m *memStore) GetRecord(_ context.Context, taskID string) (*model.GoldenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[taskID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) ListRecords(context.Context, int) ([]*model.GoldenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.GoldenRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) Lookup(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.fps[fp]
	return ok, nil
}

func (m *memStore) Record(ctx context.Context, fp, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fps[fp]; !ok {
		m.fps[fp] = source
	}
	return nil
}

func (m *memStore) CountFingerprints(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.fps)), nil
}

type fakeIndex struct {
	mu   sync.Mutex
	docs map[string]search.Document
	err  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]search.Document)}
}

func (f *fakeIndex) Migrate(context.Context) error { return nil }
func (f *fakeIndex) Close() error                  { return nil }

func (f *fakeIndex) Index(ctx context.Context, doc search.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs[doc.TaskID] = doc
	return nil
}

func (f *fakeIndex) Search(context.Context, string, int) ([]search.Hit, error) {
	return nil, nil
}

// -- harness --

type harness struct {
	orch  *Orchestrator
	store *memStore
	index *fakeIndex
	text  *fakeText
}

func testExtractionConfig() config.ExtractionConfig {
	return config.ExtractionConfig{
		TargetConfidence:     0.75,
		ReviewThreshold:      0.6,
		FieldReviewThreshold: 0.35,
		NumericTolerance:     0.01,
		MaxTier:              2,
		TaskTimeoutSecs:      10,
		TierTimeoutSecs:      2,
		DefaultCostCeiling:   0.5,
	}
}

func newHarness(t *testing.T, cfg config.ExtractionConfig, strategies ...strategy.Strategy) *harness {
	t.Helper()
	scorer, err := confidence.New(config.ScorerConfig{
		SelfWeight:        0.6,
		TextWeight:        0.2,
		TableWeight:       0.2,
		TextSaturationLen: 1000,
		TableNeutralScore: 0.5,
	})
	require.NoError(t, err)

	st := newMemStore()
	idx := newFakeIndex()
	text := &fakeText{text: "Product datasheet with thermal properties listed in full.\n"}

	orch := New(cfg, dedupe.New(st), extract.Extractors{
		Text:   text,
		Tables: extract.NewLayoutTables(),
	}, strategies, golden.NewBuilder(registry.Default(), scorer, cfg),
		cost.NewCalculator(cost.DefaultRates()), st, idx)

	return &harness{orch: orch, store: st, index: idx, text: text}
}

func writeTestPDF(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"+body), 0o644))
	return path
}

func confident(v float64) *float64 { return &v }

// -- tests --

func TestSubmitCompletesAndPersists(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)

	task := model.NewTask(writeTestPDF(t, "body"), "unit")
	outcome, err := h.orch.Submit(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, outcome.Fingerprint, outcome.Record.Fingerprint)
	assert.NotEmpty(t, outcome.Fingerprint)
	require.NotNil(t, outcome.Persistence)
	assert.True(t, outcome.Persistence.RelationalOK)
	assert.True(t, outcome.Persistence.SearchOK)

	stored, err := h.store.GetRecord(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 140.0, stored.Fields["density"])
	assert.Contains(t, h.index.docs, task.ID)
}

func TestSubmitSkipsKnownDuplicateWithoutRunningStrategies(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)

	path := writeTestPDF(t, "identical bytes")
	fp, err := dedupe.Fingerprint(path)
	require.NoError(t, err)
	require.NoError(t, h.store.Record(context.Background(), fp, "earlier-run"))

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(path, "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSkipped, outcome.Kind)
	assert.Equal(t, fp, outcome.Fingerprint)
	assert.Nil(t, outcome.Record)
	assert.Zero(t, s0.calls.Load(), "no strategy may run for a duplicate")
	assert.Zero(t, h.text.calls.Load(), "no extraction may run for a duplicate")
	assert.Empty(t, h.store.records)
}

func TestSubmitSecondRunOfSameContentIsSkipped(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)
	path := writeTestPDF(t, "body")

	first, err := h.orch.Submit(context.Background(), model.NewTask(path, "unit"))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeCompleted, first.Kind)

	second, err := h.orch.Submit(context.Background(), model.NewTask(path, "unit"))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSkipped, second.Kind)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, int32(1), s0.calls.Load())
}

func TestSubmitNonPDFFails(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)

	path := filepath.Join(t.TempDir(), "letter.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a datasheet"), 0o644))

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(path, "unit"))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	assert.Contains(t, outcome.Reason, "duplicate check")
	assert.Zero(t, s0.calls.Load())
}

func TestSubmitStopsEscalatingOnceTargetReached(t *testing.T) {
	cfg := testExtractionConfig()
	cfg.TargetConfidence = 0.1
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	s1 := &stubStrategy{name: "tableparse", tier: 1, fields: map[string]any{"density": 140.0}}
	s2 := &stubStrategy{name: "semantic", tier: 2, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, cfg, s0, s1, s2)

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, int32(1), s0.calls.Load())
	assert.Zero(t, s1.calls.Load(), "tier 1 must not run once the target is met")
	assert.Zero(t, s2.calls.Load())
}

func TestSubmitEscalatesThroughAllTiersWhenConfidenceStaysLow(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	s1 := &stubStrategy{name: "tableparse", tier: 1, fields: map[string]any{"density": 140.0}}
	s2 := &stubStrategy{name: "semantic", tier: 2, self: confident(0.3), fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0, s1, s2)

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, int32(1), s0.calls.Load())
	assert.Equal(t, int32(1), s1.calls.Load())
	assert.Equal(t, int32(1), s2.calls.Load())

	require.NotNil(t, outcome.Record)
	assert.True(t, outcome.Record.RequiresReview)
	assert.Contains(t, outcome.Record.ReviewNotes, "target confidence not reached after final tier")
}

func TestSubmitAnalyzerTimeoutStillProducesRecord(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	s2 := &stubStrategy{name: "semantic", tier: 2, sleep: time.Second, timeout: 30 * time.Millisecond,
		fields: map[string]any{"density": 140.0}}
	cfg := testExtractionConfig()
	cfg.MaxTier = 2
	h := newHarness(t, cfg, s0, s2)

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, 140.0, outcome.Record.Fields["density"])
	assert.True(t, outcome.Record.RequiresReview)
	assert.NotContains(t, outcome.Record.StrategiesUsed, "semantic")
}

func TestSubmitExhaustedBudgetStillPersists(t *testing.T) {
	cfg := testExtractionConfig()
	cfg.TaskTimeoutSecs = 1
	s0 := &stubStrategy{name: "textscan", tier: 0, sleep: 1200 * time.Millisecond,
		fields: map[string]any{"density": 140.0}}
	h := newHarness(t, cfg, s0)

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	// The tier loop ate the whole budget, but the record still lands in
	// both stores and the duplicate gate is armed.
	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Record)
	assert.True(t, outcome.Record.RequiresReview)
	require.NotNil(t, outcome.Persistence)
	assert.True(t, outcome.Persistence.RelationalOK)
	assert.True(t, outcome.Persistence.SearchOK)

	known, err := h.store.Lookup(context.Background(), outcome.Fingerprint)
	require.NoError(t, err)
	assert.True(t, known)

	saved, err := h.store.GetRecord(context.Background(), outcome.Record.TaskID)
	require.NoError(t, err)
	assert.Equal(t, outcome.Fingerprint, saved.Fingerprint)
}

func TestSubmitCostCeilingStopsEscalation(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, cost: 0.6, fields: map[string]any{"density": 140.0}}
	s1 := &stubStrategy{name: "tableparse", tier: 1, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0, s1)

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	assert.Zero(t, s1.calls.Load(), "escalation must stop at the cost ceiling")
	require.NotNil(t, outcome.Record)
	assert.True(t, outcome.Record.RequiresReview)

	found := false
	for _, note := range outcome.Record.ReviewNotes {
		if strings.HasPrefix(note, "cost ceiling reached") {
			found = true
		}
	}
	assert.True(t, found, "expected a cost ceiling review note, got %v", outcome.Record.ReviewNotes)
}

func TestSubmitTaskCostCeilingOverridesDefault(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, cost: 0.6, fields: map[string]any{"density": 140.0}}
	s1 := &stubStrategy{name: "tableparse", tier: 1, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0, s1)

	task := model.NewTask(writeTestPDF(t, "body"), "unit")
	task.CostCeiling = 5.0
	_, err := h.orch.Submit(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, int32(1), s1.calls.Load(), "a raised ceiling must allow escalation")
}

func TestSubmitPanickingStrategyBecomesFailedResult(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, panicMsg: "index out of range"}
	s1 := &stubStrategy{name: "tableparse", tier: 1, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0, s1)

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, 140.0, outcome.Record.Fields["density"])
}

func TestSubmitPartialPersistenceIsCompletedWithDetail(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)
	h.index.err = eris.New("index unavailable")

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Persistence)
	assert.True(t, outcome.Persistence.Partial())
	assert.True(t, outcome.Persistence.RelationalOK)
	assert.False(t, outcome.Persistence.SearchOK)
	assert.Contains(t, outcome.Persistence.SearchErr, "index unavailable")
}

func TestSubmitBothStoresFailingIsFailure(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)
	h.store.saveErr = eris.New("db down")
	h.index.err = eris.New("index down")

	outcome, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	require.NotNil(t, outcome.Record, "the record must survive for manual recovery")
	require.NotNil(t, outcome.Persistence)
	assert.False(t, outcome.Persistence.RelationalOK)
	assert.False(t, outcome.Persistence.SearchOK)
}

func TestSubmitFingerprintRecordedEvenWhenPersistenceFails(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)
	h.store.saveErr = eris.New("db down")
	h.index.err = eris.New("index down")

	path := writeTestPDF(t, "body")
	outcome, err := h.orch.Submit(context.Background(), model.NewTask(path, "unit"))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeFailed, outcome.Kind)

	known, err := h.store.Lookup(context.Background(), outcome.Fingerprint)
	require.NoError(t, err)
	assert.True(t, known)
}

func TestSubmitStateTransitions(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	cfg := testExtractionConfig()
	cfg.TargetConfidence = 0.1
	h := newHarness(t, cfg, s0)

	var mu sync.Mutex
	var seen []State
	h.orch.OnTransition = func(_ string, _, to State) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	}

	_, err := h.orch.Submit(context.Background(), model.NewTask(writeTestPDF(t, "body"), "unit"))
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateDeduplicating,
		StateRunningTier,
		StateMerging,
		StateDeciding,
		StateFinalizing,
		StateDone,
	}, seen)
}

func TestSubmitConcurrentTasks(t *testing.T) {
	s0 := &stubStrategy{name: "textscan", tier: 0, fields: map[string]any{"density": 140.0}}
	h := newHarness(t, testExtractionConfig(), s0)

	var wg sync.WaitGroup
	outcomes := make([]*model.Outcome, 4)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := filepath.Join(t.TempDir(), "doc.pdf")
			if err := os.WriteFile(path, []byte("%PDF-1.4\nbody-"+string(rune('a'+i))), 0o644); err != nil {
				return
			}
			outcomes[i], _ = h.orch.Submit(context.Background(), model.NewTask(path, "unit"))
		}()
	}
	wg.Wait()

	for i, outcome := range outcomes {
		require.NotNil(t, outcome, "task %d", i)
		assert.Equal(t, model.OutcomeCompleted, outcome.Kind, "task %d", i)
	}
	assert.Len(t, h.store.records, 4)
}
