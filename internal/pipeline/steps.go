package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/data-tamer/crawlerWhipAI/internal/crawler"
	"github.com/data-tamer/crawlerWhipAI/internal/database"
	"github.com/data-tamer/crawlerWhipAI/internal/report"
)

// CrawlStep runs the crawl engine for the run's seed.
// This is the step that produces the run's result; steps after it
// consume what it recorded.
//
// Design decision: The step borrows a fully configured engine instead of
// building one because:
// 1. Engine construction needs config, cache, and limiter wiring that
//    belongs to the caller
// 2. One engine is safe to share across concurrent runs, so batches
//    reuse its connection pools and robots cache
// 3. It keeps this step trivially testable with a small engine
type CrawlStep struct {
	// engine performs the actual crawl.
	engine *crawler.Engine

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step around the given engine.
func NewCrawlStep(engine *crawler.Engine, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		engine: engine,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl. A cancelled crawl still stores its partial
// result on the run before the error propagates.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	result, err := s.engine.Crawl(ctx, run.Seed)
	run.Result = result
	if err != nil {
		return fmt.Errorf("crawl %s: %w", run.Seed, err)
	}

	s.logger.Debug("crawl step finished",
		"seed", run.Seed,
		"pages", result.Stats.Pages,
		"failed", result.Stats.Failed,
	)
	return nil
}

// ReportStep renders the run's result through a report writer.
//
// Design decision: The writer is injected rather than constructed here
// because output format and destination are command-line concerns; the
// step only decides when writing happens in the run lifecycle.
type ReportStep struct {
	// writer receives the finished result.
	writer report.Writer

	// logger for structured logging.
	logger *slog.Logger
}

// ReportStepOption configures a ReportStep.
type ReportStepOption func(*ReportStep)

// WithReportLogger sets a custom logger for the report step.
func WithReportLogger(logger *slog.Logger) ReportStepOption {
	return func(s *ReportStep) {
		s.logger = logger
	}
}

// NewReportStep creates a report step that writes to the given writer.
func NewReportStep(writer report.Writer, opts ...ReportStepOption) *ReportStep {
	s := &ReportStep{
		writer: writer,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do writes the report. A run without a result (the crawl step failed
// fatally or never ran) is skipped, not an error.
func (s *ReportStep) Do(_ context.Context, run *Run) error {
	if run.Result == nil {
		s.logger.Debug("report step skipped, no result", "seed", run.Seed)
		return nil
	}

	n, err := s.writer.Write(run.Result)
	if err != nil {
		return fmt.Errorf("write report for %s: %w", run.Seed, err)
	}

	s.logger.Debug("report written", "seed", run.Seed, "bytes", n)
	return nil
}

// CleanupStep removes expired entries from the cache store after a run.
// Running it per pipeline keeps the store bounded without a separate
// maintenance daemon.
type CleanupStep struct {
	// db is the cache store to clean.
	db *database.CacheDB

	// logger for structured logging.
	logger *slog.Logger
}

// CleanupStepOption configures a CleanupStep.
type CleanupStepOption func(*CleanupStep)

// WithCleanupLogger sets a custom logger for the cleanup step.
func WithCleanupLogger(logger *slog.Logger) CleanupStepOption {
	return func(s *CleanupStep) {
		s.logger = logger
	}
}

// NewCleanupStep creates a cleanup step over the given cache store.
func NewCleanupStep(db *database.CacheDB, opts ...CleanupStepOption) *CleanupStep {
	s := &CleanupStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CleanupStep) Name() string {
	return "cache_cleanup"
}

// Do removes expired cache entries.
func (s *CleanupStep) Do(ctx context.Context, _ *Run) error {
	removed, err := s.db.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("cache cleanup: %w", err)
	}

	s.logger.Debug("cache cleanup finished", "removed", removed)
	return nil
}
