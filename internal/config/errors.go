package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoSeed is returned when no seed URL or list file is specified.
	// This error occurs when neither --list nor a positional argument provides a seed.
	ErrNoSeed = errors.New("no seed specified: provide a URL or use --list")

	// ErrInvalidStrategy is returned when the strategy is not one of
	// "bfs", "dfs", or "best_first".
	ErrInvalidStrategy = errors.New("invalid strategy: must be bfs, dfs, or best_first")

	// ErrInvalidCacheMode is returned when the cache mode is not one of
	// "bypass", "cached", "read_only", or "write_only".
	ErrInvalidCacheMode = errors.New("invalid cache mode: must be bypass, cached, read_only, or write_only")

	// ErrInvalidMaxDepth is returned when the max depth is negative.
	// Depth 0 is valid and crawls only the seed page.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page budget is not positive.
	// A budget of zero would record nothing.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidMaxConcurrent is returned when the concurrency limit is
	// not positive. A limit of zero would admit no fetches.
	ErrInvalidMaxConcurrent = errors.New("invalid max concurrent: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate request failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when the politeness delay is negative.
	// A negative delay is invalid; use 0 for no delay between requests.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidCacheTTL is returned when the cache TTL is not positive.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL: must be positive")

	// ErrInvalidRobotsTTL is returned when the robots TTL is not positive.
	ErrInvalidRobotsTTL = errors.New("invalid robots TTL: must be positive")

	// ErrInvalidChangePercent is returned when the change-significance
	// threshold is outside the 0-100 range.
	ErrInvalidChangePercent = errors.New("invalid min change percent: must be between 0 and 100")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMemoryLimit is returned when the memory soft limit is negative.
	// Use 0 to disable memory-adaptive throttling.
	ErrInvalidMemoryLimit = errors.New("invalid memory limit: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	// A batch size of zero would mean no concurrent crawls, effectively
	// stopping the batch.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
