package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

var (
	batchLimit  int
	batchSource string
)

var batchCmd = &cobra.Command{
	Use:   "batch <directory>",
	Short: "Extract every PDF in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := collectPDFs(args[0], batchLimit)
		if err != nil {
			return err
		}

		return processBatch(ctx, paths, cfg.Batch.MaxConcurrentDocuments, func(ctx context.Context, task model.Task) (*model.Outcome, error) {
			return env.Orchestrator.Submit(ctx, task)
		})
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to process (0 = all)")
	batchCmd.Flags().StringVar(&batchSource, "source", "batch", "source name recorded on golden records")
	rootCmd.AddCommand(batchCmd)
}

func collectPDFs(dir string, limit int) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, eris.Wrapf(err, "list PDFs in %s", dir)
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("no PDF files in %s", dir)
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

// submitFunc is the callback signature for processing one document.
type submitFunc func(ctx context.Context, task model.Task) (*model.Outcome, error)

// processBatch runs documents concurrently up to the configured limit and
// tallies outcomes. A single bad document never aborts the batch; only a
// cancelled context does.
func processBatch(ctx context.Context, paths []string, concurrency int, submit submitFunc) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(paths)),
		zap.Int("concurrency", concurrency))

	var completed, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			task := model.NewTask(path, batchSource)
			outcome, err := submit(gctx, task)
			if err != nil {
				failed.Add(1)
				zap.L().Error("batch document errored",
					zap.String("document", path), zap.Error(err))
				return nil
			}
			switch outcome.Kind {
			case model.OutcomeCompleted:
				completed.Add(1)
			case model.OutcomeSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
				zap.L().Warn("batch document failed",
					zap.String("document", path),
					zap.String("reason", outcome.Reason))
			}
			return nil
		})
	}
	err := g.Wait()

	zap.L().Info("batch finished",
		zap.Int64("completed", completed.Load()),
		zap.Int64("skipped", skipped.Load()),
		zap.Int64("failed", failed.Load()))

	if err != nil && !eris.Is(err, context.Canceled) {
		return eris.Wrap(err, "batch")
	}
	return nil
}
