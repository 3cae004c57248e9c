package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// Fleet runs a batch of bank sources through a bounded worker pool. Each
// bank gets its own Runner so a failing bank never disturbs the others.
type Fleet struct {
	store       Store
	logger      *slog.Logger
	concurrency int
}

// NewFleet builds a fleet persisting through store with the given crawl
// concurrency.
func NewFleet(store Store, concurrency int, logger *slog.Logger) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Fleet{store: store, logger: logger, concurrency: concurrency}
}

// RunAll crawls every source and collects one summary per bank, in source
// order. Fatal per-bank errors are joined into the returned error; banks
// that failed before bank resolution produce no summary.
func (f *Fleet) RunAll(ctx context.Context, sources []Source) ([]types.RunSummary, error) {
	pool, err := newWorkerPool(ctx, f.concurrency, len(sources)+1)
	if err != nil {
		return nil, err
	}
	defer pool.close()

	summaries := make([]*types.RunSummary, len(sources))
	fatals := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, source := range sources {
		i, source := i, source
		wg.Add(1)
		err := pool.submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			runner, err := NewRunner(ctx, f.store, source, f.logger)
			if err != nil {
				fatals[i] = err
				f.logger.Error("bank resolution failed",
					"bank", source.Seed().Code, "error", err)
				return
			}
			summary, err := runner.Run(ctx)
			summaries[i] = &summary
			if err != nil {
				fatals[i] = err
				f.logger.Error("crawl run failed",
					"bank", source.Seed().Code, "error", err)
			}
		})
		if err != nil {
			wg.Done()
			fatals[i] = err
		}
	}
	wg.Wait()

	results := make([]types.RunSummary, 0, len(sources))
	for _, s := range summaries {
		if s != nil {
			results = append(results, *s)
		}
	}
	return results, errors.Join(fatals...)
}
