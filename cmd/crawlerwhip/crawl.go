package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/data-tamer/crawlerWhipAI/internal/config"
	"github.com/data-tamer/crawlerWhipAI/internal/crawler"
	"github.com/data-tamer/crawlerWhipAI/internal/database"
	"github.com/data-tamer/crawlerWhipAI/internal/diff"
	"github.com/data-tamer/crawlerWhipAI/internal/log"
	"github.com/data-tamer/crawlerWhipAI/internal/pipeline"
	"github.com/data-tamer/crawlerWhipAI/internal/ratelimit"
	"github.com/data-tamer/crawlerWhipAI/internal/report"
	"github.com/data-tamer/crawlerWhipAI/internal/robots"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl a site and record its link graph",
		Long: `Crawl walks a site from a seed URL, following links up to the configured
depth and page budget, and records the resulting link graph.

Fetched pages are cached in a local SQLite database; a later crawl of the
same site reports which pages changed since the cached snapshot. The
frontier strategy controls exploration order: bfs (level by level), dfs
(deep paths first), or best_first (highest-scored pages first).

Examples:
  # Crawl a site two levels deep (the default)
  crawlerwhip crawl https://example.com

  # Deeper crawl with a larger page budget
  crawlerwhip crawl -d 4 -p 500 https://example.com

  # Re-crawl ignoring the cache
  crawlerwhip crawl --cache bypass https://example.com

  # Respect robots.txt and seed the frontier from the sitemap
  crawlerwhip crawl --robots --sitemap https://example.com

  # Crawl every seed in a file, ten at a time
  crawlerwhip crawl --list seeds.txt -b 10

  # Write a Markdown report to a file
  crawlerwhip crawl -m -o report.md https://example.com

Configuration file (.crawlerwhip) example:
  settings:
    maxDepth: 3
    checkRobots: true
  sites:
    example.com:
      delayMs: 2000
      ignorePatterns:
        - "*/admin/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().StringP("strategy", "s", config.DefaultStrategy,
		"Frontier strategy: bfs, dfs, or best_first")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum crawl depth (seed is depth 0)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to record per seed")
	cmd.Flags().IntP("concurrent", "n", config.DefaultMaxConcurrent,
		"Maximum concurrent fetches per domain")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Politeness delay between requests to the same domain")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Per-request timeout including body read")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header for requests and robots.txt matching")
	cmd.Flags().String("proxy", "",
		"Proxy URL for all requests (e.g., http://127.0.0.1:8080)")
	cmd.Flags().StringArrayP("header", "H", nil,
		"Extra request header as \"Name: Value\" (repeatable)")
	cmd.Flags().Bool("external", false,
		"Follow links that leave the seed's domain")
	cmd.Flags().Bool("keep-fragment", false,
		"Keep URL fragments during canonicalization (for fragment-routed apps)")
	cmd.Flags().Bool("sitemap", false,
		"Seed the frontier from the site's sitemap before crawling")

	// Robots compliance flags
	cmd.Flags().Bool("robots", false,
		"Check robots.txt before fetching each page")
	cmd.Flags().Bool("robots-fail-closed", false,
		"Block a domain when its robots.txt cannot be fetched")
	cmd.Flags().Duration("robots-ttl", config.DefaultRobotsTTL,
		"How long fetched robots.txt rules stay fresh")

	// Cache and change detection flags
	cmd.Flags().String("cache", config.DefaultCacheMode,
		"Cache mode: bypass, cached, read_only, or write_only")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL,
		"Time-to-live for cache entries written by this crawl")
	cmd.Flags().Float64("min-change", config.DefaultMinChangePercent,
		"Change percentage at which a page counts as changed")

	// Resource limit flags
	cmd.Flags().Int("max-body-mb", 0,
		"Maximum response body size in MB (0 uses the 5MB default)")
	cmd.Flags().Int("memory-limit", 0,
		"Pause new fetches while the heap exceeds this many MB (0 disables)")

	// URL filter flags
	cmd.Flags().StringSlice("allow-domain", nil,
		"Restrict crawling to these domains (repeatable)")
	cmd.Flags().StringSlice("block-domain", nil,
		"Never crawl these domains (repeatable)")
	cmd.Flags().StringSlice("ignore", nil,
		"URL glob patterns to skip (repeatable)")
	cmd.Flags().StringSlice("follow", nil,
		"URL glob patterns to restrict crawling to (repeatable)")
	cmd.Flags().StringSlice("allow-ext", nil,
		"Restrict candidates to these path extensions (e.g., .html)")
	cmd.Flags().StringSlice("skip-ext", nil,
		"Skip candidates with these path extensions")
	cmd.Flags().Int("max-path-depth", 0,
		"Skip URLs with more than this many path segments (0 disables)")

	// Batch crawling flags
	cmd.Flags().StringP("list", "l", "",
		"File with seed URLs, one per line (# comments allowed)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .crawlerwhip in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging with credential redaction
	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runCrawl(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildCrawlConfig creates a Config from the configuration file and
// cobra command flags. File settings overlay the built-in defaults;
// flags the user actually set overlay the file.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load the configuration file before the flag overlay.
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs.Settings.Apply(cfg)
	} else if explicitConfigPath {
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		// Use empty config if no file found and user didn't explicitly specify one
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	if err := applyCrawlFlags(cmd, cfg); err != nil {
		return nil, err
	}

	// Seeds come from positional arguments plus the optional list file
	cfg.Seeds = append(cfg.Seeds, args...)

	listPath, err := cmd.Flags().GetString("list")
	if err != nil {
		return nil, err
	}
	if listPath != "" {
		seeds, err := readSeedList(listPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed list %s: %w", listPath, err)
		}
		cfg.Seeds = append(cfg.Seeds, seeds...)
	}

	// Report flags have no file counterpart, so plain reads suffice
	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}
	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// applyCrawlFlags overlays explicitly-set flags onto cfg. Unset flags are
// skipped so values from the configuration file survive; this is what
// makes flags win only when the user typed them.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	if err := applyStringFlag(cmd, "strategy", &cfg.Strategy); err != nil {
		return err
	}
	if err := applyIntFlag(cmd, "depth", &cfg.MaxDepth); err != nil {
		return err
	}
	if err := applyIntFlag(cmd, "max-pages", &cfg.MaxPages); err != nil {
		return err
	}
	if err := applyIntFlag(cmd, "concurrent", &cfg.MaxConcurrent); err != nil {
		return err
	}
	if err := applyDurationFlag(cmd, "delay", &cfg.Delay); err != nil {
		return err
	}
	if err := applyDurationFlag(cmd, "timeout", &cfg.Timeout); err != nil {
		return err
	}
	if err := applyStringFlag(cmd, "user-agent", &cfg.UserAgent); err != nil {
		return err
	}
	if err := applyStringFlag(cmd, "proxy", &cfg.Proxy); err != nil {
		return err
	}
	if err := applyBoolFlag(cmd, "external", &cfg.IncludeExternal); err != nil {
		return err
	}
	if err := applyBoolFlag(cmd, "keep-fragment", &cfg.PreserveFragment); err != nil {
		return err
	}
	if err := applyBoolFlag(cmd, "sitemap", &cfg.UseSitemap); err != nil {
		return err
	}
	if err := applyBoolFlag(cmd, "robots", &cfg.CheckRobots); err != nil {
		return err
	}
	if err := applyBoolFlag(cmd, "robots-fail-closed", &cfg.RobotsFailClosed); err != nil {
		return err
	}
	if err := applyDurationFlag(cmd, "robots-ttl", &cfg.RobotsTTL); err != nil {
		return err
	}
	if err := applyStringFlag(cmd, "cache", &cfg.CacheMode); err != nil {
		return err
	}
	if err := applyDurationFlag(cmd, "cache-ttl", &cfg.CacheTTL); err != nil {
		return err
	}
	if err := applyFloat64Flag(cmd, "min-change", &cfg.MinChangePercent); err != nil {
		return err
	}
	if err := applyIntFlag(cmd, "memory-limit", &cfg.MemoryLimitMB); err != nil {
		return err
	}
	if err := applyStringSliceFlag(cmd, "allow-domain", &cfg.AllowedDomains); err != nil {
		return err
	}
	if err := applyStringSliceFlag(cmd, "block-domain", &cfg.BlockedDomains); err != nil {
		return err
	}
	if err := applyStringSliceFlag(cmd, "ignore", &cfg.IgnorePatterns); err != nil {
		return err
	}
	if err := applyStringSliceFlag(cmd, "follow", &cfg.FollowPatterns); err != nil {
		return err
	}
	if err := applyStringSliceFlag(cmd, "allow-ext", &cfg.AllowedExtensions); err != nil {
		return err
	}
	if err := applyStringSliceFlag(cmd, "skip-ext", &cfg.SkipExtensions); err != nil {
		return err
	}
	if err := applyIntFlag(cmd, "max-path-depth", &cfg.MaxPathDepth); err != nil {
		return err
	}
	if err := applyIntFlag(cmd, "batch", &cfg.BatchSize); err != nil {
		return err
	}

	// The body cap flag is in MB; the config carries bytes.
	if cmd.Flags().Changed("max-body-mb") {
		mb, err := cmd.Flags().GetInt("max-body-mb")
		if err != nil {
			return err
		}
		cfg.MaxBodySize = int64(mb) * 1024 * 1024
	}

	// Headers from flags merge over headers from the file
	if cmd.Flags().Changed("header") {
		pairs, err := cmd.Flags().GetStringArray("header")
		if err != nil {
			return err
		}
		headers, err := parseHeaders(pairs)
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.Headers[k] = v
		}
	}

	return nil
}

// applyStringFlag copies the flag value into dst only when the user set
// the flag on the command line.
func applyStringFlag(cmd *cobra.Command, name string, dst *string) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// applyIntFlag copies the flag value into dst only when the user set it.
func applyIntFlag(cmd *cobra.Command, name string, dst *int) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// applyBoolFlag copies the flag value into dst only when the user set it.
func applyBoolFlag(cmd *cobra.Command, name string, dst *bool) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// applyDurationFlag copies the flag value into dst only when the user set it.
func applyDurationFlag(cmd *cobra.Command, name string, dst *time.Duration) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetDuration(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// applyFloat64Flag copies the flag value into dst only when the user set it.
func applyFloat64Flag(cmd *cobra.Command, name string, dst *float64) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// applyStringSliceFlag copies the flag value into dst only when the user set it.
func applyStringSliceFlag(cmd *cobra.Command, name string, dst *[]string) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// parseHeaders converts "Name: Value" pairs from --header flags into a
// header map. Later duplicates win.
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q (expected \"Name: Value\")", pair)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid header %q (empty name)", pair)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// readSeedList reads seed URLs from a file, one per line.
// Blank lines and lines starting with # are skipped.
func readSeedList(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided seed list path is intentional
	if err != nil {
		return nil, err
	}

	var seeds []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	return seeds, nil
}

// crawlDeps bundles the shared collaborators a crawl needs: the database,
// the HTTP client, the rate limiter, and the robots gate are built once
// and shared by every seed so per-domain politeness holds across the
// whole invocation.
type crawlDeps struct {
	cfg      *config.Config
	db       *database.CacheDB
	client   *http.Client
	limiter  *ratelimit.Limiter
	memGate  *ratelimit.MemoryGate
	gate     *robots.Gate
	strategy crawler.Strategy
	mode     crawler.CacheMode
	logger   *slog.Logger
}

// runCrawl executes the crawl across all configured seeds.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	strategy, err := crawler.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	mode, err := crawler.ParseCacheMode(cfg.CacheMode)
	if err != nil {
		return err
	}

	// Canonicalize seeds up front so bad URLs fail before any work starts
	for i, seed := range cfg.Seeds {
		canonical, err := crawler.Canonicalize(seed, cfg.PreserveFragment)
		if err != nil {
			return fmt.Errorf("invalid seed URL %q: %w", seed, err)
		}
		cfg.Seeds[i] = canonical
	}

	logger.Info("starting crawl",
		"seeds", len(cfg.Seeds),
		"strategy", cfg.Strategy,
		"maxDepth", cfg.MaxDepth,
		"maxPages", cfg.MaxPages,
		"cacheMode", cfg.CacheMode,
	)

	// An unavailable database degrades the crawl to live fetches without
	// caching or run history; it never stops the crawl.
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("cache database unavailable; crawling without cache",
			"dir", cfg.DBDir,
			"error", err,
		)
		db = nil
	} else {
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	client, err := crawler.NewClient(cfg.Timeout, cfg.Proxy)
	if err != nil {
		return fmt.Errorf("failed to build HTTP client: %w", err)
	}

	deps := &crawlDeps{
		cfg:      cfg,
		db:       db,
		client:   client,
		strategy: strategy,
		mode:     mode,
		logger:   logger,
	}

	if cfg.MemoryLimitMB > 0 {
		deps.memGate = ratelimit.NewMemoryGate(cfg.MemoryLimitMB,
			ratelimit.WithMemoryLogger(logger))
	}
	deps.limiter = deps.newLimiter(cfg.Delay)

	if cfg.CheckRobots {
		gate, err := deps.newRobotsGate()
		if err != nil {
			return fmt.Errorf("failed to build robots gate: %w", err)
		}
		deps.gate = gate
	}

	writer, closeOutput, err := buildReportWriter(cfg)
	if err != nil {
		return err
	}
	defer closeOutput()

	// Use the batch processor for parallel crawling if multiple seeds
	if len(cfg.Seeds) > 1 && cfg.BatchSize > 1 {
		return runBatchCrawl(ctx, deps, writer)
	}

	return runSequentialCrawl(ctx, deps, writer)
}

// newLimiter builds a rate limiter with the invocation-wide concurrency
// bounds and the given politeness delay.
func (d *crawlDeps) newLimiter(delay time.Duration) *ratelimit.Limiter {
	opts := []ratelimit.Option{
		ratelimit.WithBaseDelay(delay),
		ratelimit.WithPerDomainLimit(d.cfg.MaxConcurrent),
		ratelimit.WithGlobalLimit(d.cfg.MaxConcurrent * d.cfg.BatchSize),
		ratelimit.WithLogger(d.logger),
	}
	if d.memGate != nil {
		opts = append(opts, ratelimit.WithMemoryGate(d.memGate))
	}
	return ratelimit.NewLimiter(opts...)
}

// limiterFor returns the shared limiter, or a dedicated one when the
// site overrides the politeness delay. The dedicated limiter keeps the
// same concurrency bounds and memory gate.
func (d *crawlDeps) limiterFor(site config.SiteConfig) *ratelimit.Limiter {
	if site.DelayMS <= 0 {
		return d.limiter
	}
	return d.newLimiter(site.Delay(d.cfg.Delay))
}

// newRobotsGate builds the robots.txt compliance gate shared by all seeds.
func (d *crawlDeps) newRobotsGate() (*robots.Gate, error) {
	fetcher := crawler.NewFetcher(d.client,
		crawler.WithFetcherUserAgent(d.cfg.UserAgent),
		crawler.WithFetcherLogger(d.logger),
	)

	opts := []robots.GateOption{
		robots.WithUserAgent(d.cfg.UserAgent),
		robots.WithTTL(d.cfg.RobotsTTL),
		robots.WithFailClosed(d.cfg.RobotsFailClosed),
		robots.WithLogger(d.logger),
	}
	if d.db != nil {
		opts = append(opts, robots.WithDatabase(d.db))
	}
	return robots.NewGate(fetcher, opts...)
}

// engineFor assembles a crawl engine for one seed, applying the site's
// overrides for headers, delay, depth, and page budget.
func (d *crawlDeps) engineFor(site config.SiteConfig) *crawler.Engine {
	cfg := d.cfg

	fetcherOpts := []crawler.FetcherOption{
		crawler.WithFetcherUserAgent(cfg.UserAgent),
		crawler.WithFetcherLogger(d.logger),
	}
	if cfg.MaxBodySize > 0 {
		fetcherOpts = append(fetcherOpts, crawler.WithMaxBodyBytes(cfg.MaxBodySize))
	}
	if headers := mergeHeaders(cfg.Headers, site.Headers); len(headers) > 0 {
		fetcherOpts = append(fetcherOpts, crawler.WithFetcherHeaders(headers))
	}
	fetcher := crawler.NewFetcher(d.client, fetcherOpts...)

	maxDepth := cfg.MaxDepth
	if site.MaxDepth > 0 {
		maxDepth = site.MaxDepth
	}
	maxPages := cfg.MaxPages
	if site.MaxPages > 0 {
		maxPages = site.MaxPages
	}

	opts := []crawler.Option{
		crawler.WithStrategy(d.strategy),
		crawler.WithMaxDepth(maxDepth),
		crawler.WithMaxPages(maxPages),
		crawler.WithConcurrency(cfg.MaxConcurrent),
		crawler.WithExternalLinks(cfg.IncludeExternal),
		crawler.WithPreserveFragment(cfg.PreserveFragment),
		crawler.WithRateLimiter(d.limiterFor(site)),
		crawler.WithLogger(d.logger),
	}

	if chain := buildFilterChain(cfg, site); chain.Len() > 0 {
		opts = append(opts, crawler.WithFilters(chain))
	}
	if d.db != nil {
		opts = append(opts, crawler.WithCache(d.db, d.mode, cfg.CacheTTL))
		opts = append(opts, crawler.WithChangeDetector(diff.NewDetector(true, cfg.MinChangePercent)))
	}
	if d.gate != nil {
		opts = append(opts, crawler.WithRobotsGate(d.gate))
	}
	if cfg.UseSitemap {
		opts = append(opts, crawler.WithSitemap(crawler.NewSitemapParser(fetcher,
			crawler.WithSitemapLogger(d.logger))))
	}

	return crawler.NewEngine(fetcher, opts...)
}

// buildFilterChain assembles the URL filter chain from global and
// site-specific settings. Site patterns replace global ones when set.
func buildFilterChain(cfg *config.Config, site config.SiteConfig) *crawler.Chain {
	follow := cfg.FollowPatterns
	if len(site.FollowPatterns) > 0 {
		follow = site.FollowPatterns
	}
	ignore := cfg.IgnorePatterns
	if len(site.IgnorePatterns) > 0 {
		ignore = site.IgnorePatterns
	}

	var filters []crawler.Filter
	if len(follow) > 0 {
		filters = append(filters, crawler.NewFollowPatterns(follow))
	}
	if len(ignore) > 0 {
		filters = append(filters, crawler.NewIgnorePatterns(ignore))
	}
	if len(cfg.AllowedDomains) > 0 || len(cfg.BlockedDomains) > 0 {
		filters = append(filters, crawler.NewDomainFilter(cfg.AllowedDomains, cfg.BlockedDomains))
	}
	// The extension filter always runs so the built-in binary/media skip
	// list applies even with no explicit configuration.
	filters = append(filters, crawler.NewExtensionFilter(cfg.AllowedExtensions, cfg.SkipExtensions))
	if cfg.MaxPathDepth > 0 {
		filters = append(filters, crawler.NewPathDepthFilter(cfg.MaxPathDepth))
	}

	return crawler.NewChain(filters...)
}

// mergeHeaders overlays site headers onto global headers.
func mergeHeaders(global, site map[string]string) map[string]string {
	if len(site) == 0 {
		return global
	}
	merged := make(map[string]string, len(global)+len(site))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range site {
		merged[k] = v
	}
	return merged
}

// siteConfigFor resolves the per-site overrides for a seed URL. The
// seed's host is tried first, then its registrable domain.
func siteConfigFor(cfg *config.Config, seed string) config.SiteConfig {
	if cfg.SiteConfigs == nil {
		return config.SiteConfig{}
	}

	host := crawler.Host(seed)
	if host == "" {
		return cfg.SiteConfigs.Defaults
	}
	if _, ok := cfg.SiteConfigs.Sites[host]; !ok {
		if domain := crawler.RegistrableDomain(host); domain != host {
			if _, ok := cfg.SiteConfigs.Sites[domain]; ok {
				host = domain
			}
		}
	}
	return cfg.SiteConfigs.GetSiteConfig(host)
}

// runSequentialCrawl crawls seeds one at a time, applying per-site
// overrides and reporting after each seed.
func runSequentialCrawl(ctx context.Context, deps *crawlDeps, writer report.Writer) error {
	for _, seed := range deps.cfg.Seeds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		site := siteConfigFor(deps.cfg, seed)
		engine := deps.engineFor(site)

		p := pipeline.New(
			pipeline.WithLogger(deps.logger),
			pipeline.WithContinueOnError(true),
		)
		p.AddStep(pipeline.NewCrawlStep(engine, pipeline.WithCrawlLogger(deps.logger)))
		p.AddStep(pipeline.NewReportStep(writer, pipeline.WithReportLogger(deps.logger)))
		if deps.db != nil {
			p.AddStep(pipeline.NewCleanupStep(deps.db, pipeline.WithCleanupLogger(deps.logger)))
		}

		run := pipeline.NewRun(seed)

		fmt.Printf("Crawling %s...\n", seed)
		startTime := time.Now()

		if err := p.Execute(ctx, run); err != nil {
			// Execute only returns an error here on cancellation
			return err
		}
		if run.Err != nil {
			deps.logger.Error("crawl failed", "seed", seed, "error", run.Err)
			fmt.Fprintf(os.Stderr, "Crawl error for %s: %v\n", seed, run.Err)
			continue
		}

		fmt.Printf("Crawl completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))
	}

	return nil
}

// runBatchCrawl crawls multiple seeds concurrently using BatchProcessor.
func runBatchCrawl(ctx context.Context, deps *crawlDeps, writer report.Writer) error {
	cfg := deps.cfg

	fmt.Printf("Starting batch crawl of %d seeds (concurrency: %d)...\n\n",
		len(cfg.Seeds), cfg.BatchSize)

	startTime := time.Now()

	// Warn user about batch processing limitation
	if cfg.SiteConfigs != nil && len(cfg.SiteConfigs.Sites) > 0 {
		deps.logger.Warn("batch crawling uses default site config only; per-site overrides (headers, delay, depth) are ignored",
			"siteCount", len(cfg.SiteConfigs.Sites))
		fmt.Fprintf(os.Stderr, "Warning: per-site settings are ignored in batch mode. Use sequential mode (--batch 1) to apply them.\n\n")
	}

	// Create batch processor with pipeline factory.
	// The factory has no seed in scope, so batch engines are built from
	// the default site config; per-site overrides need sequential mode.
	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			var site config.SiteConfig
			if cfg.SiteConfigs != nil {
				site = cfg.SiteConfigs.Defaults
			}
			p := pipeline.New(
				pipeline.WithLogger(deps.logger),
				pipeline.WithContinueOnError(true),
			)
			p.AddStep(pipeline.NewCrawlStep(deps.engineFor(site), pipeline.WithCrawlLogger(deps.logger)))
			return p
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(deps.logger),
	)

	// Process with callback for streaming output; the mutex keeps
	// reports from interleaving
	var mu sync.Mutex
	err := bp.ProcessBatchWithCallback(ctx, cfg.Seeds, func(run *pipeline.Run, index int) {
		mu.Lock()
		defer mu.Unlock()

		if run.Err != nil {
			fmt.Fprintf(os.Stderr, "[%d/%d] Crawl failed: %s: %v\n",
				index+1, len(cfg.Seeds), run.Seed, run.Err)
		} else {
			fmt.Printf("[%d/%d] Crawl completed: %s\n", index+1, len(cfg.Seeds), run.Seed)
		}

		// A failed run can still carry a partial graph worth reporting
		if run.Result != nil {
			if _, werr := writer.Write(run.Result); werr != nil {
				deps.logger.Error("report failed", "seed", run.Seed, "error", werr)
			}
		}
	})

	// One expiry sweep for the whole batch instead of one per seed
	if deps.db != nil {
		if removed, cerr := deps.db.CleanupExpired(ctx); cerr != nil {
			deps.logger.Warn("cache cleanup failed", "error", cerr)
		} else if removed > 0 {
			deps.logger.Debug("cache cleanup complete", "removed", removed)
		}
	}

	fmt.Printf("\nBatch crawl completed in %s\n", time.Since(startTime).Round(time.Millisecond))

	return err
}

// buildReportWriter selects the report writer from the configured format
// and opens the output destination. The returned func closes the output
// file; it is a no-op for stdout.
func buildReportWriter(cfg *config.Config) (report.Writer, func(), error) {
	var output io.Writer = os.Stdout
	closeOutput := func() {}

	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output file: %w", err)
		}
		output = f
		closeOutput = func() { _ = f.Close() } //nolint:errcheck // Best effort close
	}

	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint()), closeOutput, nil
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output), closeOutput, nil
	default:
		return report.NewSimpleWriter(output), closeOutput, nil
	}
}
