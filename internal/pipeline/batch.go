package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor handles concurrent crawling of multiple seeds.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding
// batch functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-seed execution
// 2. It allows different batch strategies (e.g., rate limiting, retries)
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each seed.
	// We use a factory to ensure each run gets a fresh pipeline instance.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent runs.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed runs in seed order.
	// Access is synchronized via mutex.
	results []*Run
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Default is 3 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each seed to create a fresh
// pipeline instance. This ensures that pipeline state doesn't leak
// between runs and allows for per-seed customization if needed.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     3,
		results:         make([]*Run, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls multiple seeds concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Each seed gets its own goroutine, but only 'concurrency' goroutines
// run simultaneously.
//
// All runs are returned in seed order, including failed ones; per-seed
// errors are aggregated into the returned error so one bad seed never
// hides the others' outcomes.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*Run, error) {
	bp.logger.Info("starting batch crawl",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	bp.results = make([]*Run, len(seeds))

	var errs *multierror.Error
	var errMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			run := NewRun(seed)
			pipeline := bp.pipelineFactory()
			err := pipeline.Execute(ctx, run)

			// Store the run regardless of error; it carries the
			// error and any partial result
			bp.mu.Lock()
			bp.results[i] = run
			bp.mu.Unlock()

			if err != nil {
				bp.logger.Warn("seed failed",
					"seed", seed,
					"error", err,
				)
				// Aggregate instead of returning, so other seeds
				// keep crawling
				errMu.Lock()
				errs = multierror.Append(errs, err)
				errMu.Unlock()
				return nil
			}

			bp.logger.Info("seed completed",
				"seed", seed,
			)

			return nil
		})
	}

	// Wait returns non-nil only when the batch itself was cancelled
	if err := g.Wait(); err != nil {
		errMu.Lock()
		errs = multierror.Append(errs, err)
		errMu.Unlock()
	}

	elapsed := time.Since(startTime)
	bp.logger.Info("batch crawl complete",
		"total_seeds", len(seeds),
		"elapsed", elapsed,
	)

	return bp.results, errs.ErrorOrNil()
}

// ProcessBatchWithCallback crawls multiple seeds and calls a callback
// for each completed run. This is useful for streaming results.
//
// The callback receives the run and the index of the seed in the
// original slice. The callback is called from the goroutine that
// completed the run, so it should be thread-safe if it accesses shared
// state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(run *Run, index int),
) error {
	bp.logger.Info("starting batch crawl with callback",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			run := NewRun(seed)
			pipeline := bp.pipelineFactory()
			_ = pipeline.Execute(ctx, run) //nolint:errcheck // Error is stored on the run

			// Call the callback with the result
			callback(run, i)

			return nil
		})
	}

	return g.Wait()
}
