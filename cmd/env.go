package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markbunyevacz/lambda-extract/internal/analyzer"
	"github.com/markbunyevacz/lambda-extract/internal/confidence"
	"github.com/markbunyevacz/lambda-extract/internal/cost"
	"github.com/markbunyevacz/lambda-extract/internal/dedupe"
	"github.com/markbunyevacz/lambda-extract/internal/extract"
	"github.com/markbunyevacz/lambda-extract/internal/golden"
	"github.com/markbunyevacz/lambda-extract/internal/orchestrator"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
	"github.com/markbunyevacz/lambda-extract/internal/search"
	"github.com/markbunyevacz/lambda-extract/internal/store"
	"github.com/markbunyevacz/lambda-extract/internal/strategy"
)

// pipelineEnv holds the initialized stores, registry and orchestrator shared
// by the process/batch/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Index        search.Store
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Index != nil {
		_ = pe.Index.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the relational store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline wires the full extraction pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := search.NewSQLite(cfg.Search.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := idx.Migrate(ctx); err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate search index")
	}

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, err
	}

	scorer, err := confidence.New(cfg.Scorer)
	if err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, err
	}

	costs := cost.NewCalculator(cost.DefaultRates())

	strategies := []strategy.Strategy{
		strategy.NewTextScan(reg, cfg.Extraction.TierTimeout()),
		strategy.NewTableParse(reg, cfg.Extraction.TierTimeout()),
	}

	if cfg.Analyzer.Key != "" {
		gate := analyzer.NewGate(cfg.Analyzer.MaxConcurrent)
		claude := analyzer.NewClaude(cfg.Analyzer, reg)
		strategies = append(strategies,
			strategy.NewSemantic(claude, gate, costs, cfg.Analyzer.Model, cfg.Analyzer.Timeout()))
	} else {
		zap.L().Warn("LAMBDA_ANALYZER_KEY not set, semantic tier disabled")
	}

	orch := orchestrator.New(
		cfg.Extraction,
		dedupe.New(st),
		extract.New(cfg.Extract),
		strategies,
		golden.NewBuilder(reg, scorer, cfg.Extraction),
		costs,
		st,
		idx,
	)

	return &pipelineEnv{
		Store:        st,
		Index:        idx,
		Registry:     reg,
		Orchestrator: orch,
	}, nil
}
