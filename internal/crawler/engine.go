package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/data-tamer/crawlerWhipAI/internal/database"
	"github.com/data-tamer/crawlerWhipAI/internal/diff"
	"github.com/data-tamer/crawlerWhipAI/internal/model"
	"github.com/data-tamer/crawlerWhipAI/internal/ratelimit"
	"github.com/data-tamer/crawlerWhipAI/internal/robots"
)

// CacheMode selects how the engine uses the cache store during a crawl.
type CacheMode string

const (
	// CacheModeBypass skips both cache reads and writes.
	CacheModeBypass CacheMode = "bypass"

	// CacheModeCached reads before fetching and writes after.
	CacheModeCached CacheMode = "cached"

	// CacheModeReadOnly reads before fetching but never writes.
	CacheModeReadOnly CacheMode = "read_only"

	// CacheModeWriteOnly always fetches and always writes.
	CacheModeWriteOnly CacheMode = "write_only"
)

// ParseCacheMode converts a configuration string into a CacheMode.
func ParseCacheMode(s string) (CacheMode, error) {
	switch CacheMode(s) {
	case CacheModeBypass, CacheModeCached, CacheModeReadOnly, CacheModeWriteOnly:
		return CacheMode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCacheMode, s)
	}
}

// reads reports whether the mode consults the cache before fetching.
func (m CacheMode) reads() bool {
	return m == CacheModeCached || m == CacheModeReadOnly
}

// writes reports whether the mode stores fetched content.
func (m CacheMode) writes() bool {
	return m == CacheModeCached || m == CacheModeWriteOnly
}

// Metadata keys stored alongside cached page content. The links entry
// is what lets a cache hit keep feeding the frontier without a refetch.
const (
	metaTitle       = "title"
	metaDescription = "description"
	metaStatusCode  = "status_code"
	metaLinks       = "links"
)

// Engine is the frontier manager: it decides what to fetch next, whether
// it needs fetching at all, and how each result feeds back into further
// discovery. A single coordinating loop owns the frontier, the visited
// set, and the link graph while a pool of workers performs the fetching.
//
// Design decision: Graph and frontier mutation stay on one goroutine
// instead of sharing them under a mutex because:
//  1. First-discoverer-wins parentage needs admissions applied in a
//     single deterministic order
//  2. The breadth-first level barrier needs one place that knows both
//     "queue drained" and "results integrated"
//  3. Workers stay trivial: fetch, parse, hand the outcome back
type Engine struct {
	// fetcher retrieves pages over HTTP.
	fetcher *Fetcher

	// cache is the persistent page store. nil disables caching and
	// change detection regardless of cacheMode.
	cache *database.CacheDB

	// gate answers robots.txt permission checks. nil disables them.
	gate *robots.Gate

	// limiter enforces per-domain politeness, the global in-flight
	// ceiling, and rate-limit backoff.
	limiter *ratelimit.Limiter

	// detector flags significant content changes against the previous
	// cached snapshot. nil disables change detection.
	detector *diff.Detector

	// sitemaps discovers extra seeds from sitemap.xml when useSitemap
	// is set.
	sitemaps *SitemapParser

	// filters is the admission filter chain. nil accepts everything.
	filters *Chain

	// strategy selects the frontier ordering.
	strategy Strategy

	// scorer assigns best-first priorities at admission time.
	scorer Scorer

	// cacheMode selects cache behavior for this crawl.
	cacheMode CacheMode

	// cacheTTL is applied to cache entries written during this crawl.
	cacheTTL time.Duration

	// maxDepth is the deepest level admitted. The seed is depth 0.
	maxDepth int

	// maxPages caps recorded nodes, counting failures.
	maxPages int

	// workers is the fetch worker pool size.
	workers int

	// includeExternal admits links that leave the seed's registrable
	// domain instead of only counting them.
	includeExternal bool

	// preserveFragment keeps URL fragments during canonicalization,
	// for sites that route on the fragment.
	preserveFragment bool

	// useSitemap seeds the frontier from the site's sitemap before
	// link-walking begins.
	useSitemap bool

	// logger records crawl progress.
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy selects the frontier ordering.
func WithStrategy(strategy Strategy) Option {
	return func(e *Engine) {
		e.strategy = strategy
	}
}

// WithMaxDepth sets the deepest admitted level. 0 crawls only the seed.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithMaxPages caps the number of recorded nodes, counting failures.
func WithMaxPages(pages int) Option {
	return func(e *Engine) {
		if pages > 0 {
			e.maxPages = pages
		}
	}
}

// WithConcurrency sets the fetch worker pool size.
func WithConcurrency(workers int) Option {
	return func(e *Engine) {
		if workers > 0 {
			e.workers = workers
		}
	}
}

// WithFilters sets the admission filter chain.
func WithFilters(chain *Chain) Option {
	return func(e *Engine) {
		e.filters = chain
	}
}

// WithCache enables the cache store in the given mode, applying ttl to
// entries written during the crawl.
func WithCache(cache *database.CacheDB, mode CacheMode, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		e.cacheMode = mode
		e.cacheTTL = ttl
	}
}

// WithRobotsGate enables robots.txt compliance checks.
func WithRobotsGate(gate *robots.Gate) Option {
	return func(e *Engine) {
		e.gate = gate
	}
}

// WithRateLimiter replaces the default rate limiter.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(e *Engine) {
		if limiter != nil {
			e.limiter = limiter
		}
	}
}

// WithChangeDetector enables change detection against cached snapshots.
// It has no effect without a cache in a writing mode.
func WithChangeDetector(detector *diff.Detector) Option {
	return func(e *Engine) {
		e.detector = detector
	}
}

// WithSitemap enables sitemap seeding using the given discoverer.
func WithSitemap(sitemaps *SitemapParser) Option {
	return func(e *Engine) {
		e.sitemaps = sitemaps
		e.useSitemap = sitemaps != nil
	}
}

// WithScorer replaces the default best-first scorer.
func WithScorer(scorer Scorer) Option {
	return func(e *Engine) {
		if scorer != nil {
			e.scorer = scorer
		}
	}
}

// WithExternalLinks admits links that leave the seed's registrable
// domain. They are still subject to the filter chain and robots checks.
func WithExternalLinks(include bool) Option {
	return func(e *Engine) {
		e.includeExternal = include
	}
}

// WithPreserveFragment keeps URL fragments during canonicalization so
// hash-routed pages stay distinct.
func WithPreserveFragment(preserve bool) Option {
	return func(e *Engine) {
		e.preserveFragment = preserve
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a crawl engine around the given fetcher.
// Without options it crawls breadth-first to depth 2, records at most
// 100 pages, runs 5 workers, and uses no cache.
func NewEngine(fetcher *Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:   fetcher,
		strategy:  StrategyBFS,
		scorer:    DepthScorer,
		cacheMode: CacheModeBypass,
		maxDepth:  2,
		maxPages:  100,
		workers:   5,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.limiter == nil {
		e.limiter = ratelimit.NewLimiter()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.cache == nil {
		e.cacheMode = CacheModeBypass
	}

	return e
}

// fetchOutcome is what a worker hands back to the coordinating loop.
type fetchOutcome struct {
	// node is the fully-built node, except for children.
	node *model.LinkNode

	// links are the extracted candidates, nil when the page produced
	// none (failure, non-HTML, or a cache entry without link metadata).
	links *model.ExtractedLinks

	// fetched reports that a live fetch was attempted, whatever came
	// of it.
	fetched bool

	// changed reports a significant content change against the cached
	// snapshot.
	changed bool
}

// crawlState is the coordinator-owned mutable state of one crawl.
type crawlState struct {
	// graph is the link graph under construction. nil until the seed
	// outcome arrives.
	graph *model.LinkGraph

	// visited holds every canonical URL ever admitted, including
	// in-flight ones, so a URL is dispatched at most once.
	visited map[string]bool

	// seedHost is the canonical seed host, the reference point for
	// internal/external classification.
	seedHost string

	// stats accumulates run statistics.
	stats model.CrawlStats
}

// Crawl discovers pages reachable from the seed URL under the
// configured limits and returns the resulting link graph. Per-URL
// failures are recorded on their nodes and never abort the crawl; only
// an invalid seed is a fatal error. On context cancellation the partial
// result is returned together with the context's error.
func (e *Engine) Crawl(ctx context.Context, seedURL string) (*model.CrawlResult, error) {
	seed, err := Canonicalize(seedURL, e.preserveFragment)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL %q: %w", seedURL, err)
	}

	st := &crawlState{
		visited:  map[string]bool{seed: true},
		seedHost: Host(seed),
		stats: model.CrawlStats{
			Seed:      seed,
			Strategy:  string(e.strategy),
			StartedAt: time.Now(),
		},
	}

	e.logger.Info("crawl started",
		"seed", seed,
		"strategy", e.strategy,
		"max_depth", e.maxDepth,
		"max_pages", e.maxPages,
		"cache_mode", e.cacheMode,
	)

	frontier := NewFrontier(e.strategy)

	// The seed is fetched synchronously before the pool starts so that
	// every later outcome integrates under a parent that already exists.
	if e.gate != nil && !e.gate.CanFetch(ctx, seed) {
		st.stats.RobotsBlocked++
		root := &model.LinkNode{
			URL:        seed,
			IsInternal: true,
			CrawledAt:  time.Now(),
			Error:      "blocked by robots.txt",
		}
		e.integrate(ctx, &fetchOutcome{node: root}, st, frontier)
		return e.finish(ctx, st), nil
	}
	e.integrate(ctx, e.process(ctx, &FrontierItem{URL: seed}, st.seedHost), st, frontier)

	if e.useSitemap && e.sitemaps != nil {
		e.seedFromSitemap(ctx, st, frontier)
	}

	e.run(ctx, st, frontier)

	result := e.finish(ctx, st)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// run drains the frontier through the worker pool until the page budget
// is spent, the frontier empties, or the context is cancelled. New
// admissions stop immediately on budget exhaustion; in-flight fetches
// always run to completion and their results are integrated.
func (e *Engine) run(ctx context.Context, st *crawlState, frontier Frontier) {
	dispatch := make(chan *FrontierItem, e.workers)
	results := make(chan *fetchOutcome, e.workers)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range dispatch {
				results <- e.process(ctx, item, st.seedHost)
			}
		}()
	}

	// pending is bounded by e.workers, and both channels buffer
	// e.workers entries, so no send below ever blocks: the coordinator
	// cannot deadlock against a worker stuck on a full results channel.
	pending := 0
	for {
		for ctx.Err() == nil && pending < e.workers && st.graph.Len()+pending < e.maxPages {
			item, ok := frontier.Pop()
			if !ok {
				break
			}
			dispatch <- item
			pending++
		}

		if pending == 0 {
			if ctx.Err() != nil || st.graph.Len() >= e.maxPages {
				break
			}
			if frontier.Advance() {
				continue
			}
			break
		}

		out := <-results
		pending--
		e.integrate(ctx, out, st, frontier)
	}

	close(dispatch)
	wg.Wait()
}

// integrate applies one outcome to the graph and admits the extracted
// links. Only the coordinating loop calls it.
func (e *Engine) integrate(ctx context.Context, out *fetchOutcome, st *crawlState, frontier Frontier) {
	node := out.node
	if st.graph == nil {
		st.graph = model.NewLinkGraph(node)
	} else {
		st.graph.Add(st.graph.Node(node.ParentURL), node)
	}

	switch {
	case node.FromCache:
		st.stats.CacheHits++
	case out.fetched:
		st.stats.Fetched++
	}
	if node.Error != "" {
		st.stats.Failed++
	}
	if out.changed {
		st.stats.Changed++
	}

	if out.links == nil {
		return
	}

	var admitted []*FrontierItem
	for _, link := range out.links.Internal {
		if item := e.admit(ctx, link, node, st); item != nil {
			admitted = append(admitted, item)
		}
	}
	st.stats.ExternalLinks += len(out.links.External)
	if e.includeExternal {
		for _, link := range out.links.External {
			if item := e.admit(ctx, link, node, st); item != nil {
				admitted = append(admitted, item)
			}
		}
	}
	e.push(frontier, admitted)
}

// admit runs one extracted URL through canonicalization, deduplication,
// the filter chain, and the robots gate. It returns the frontier item
// to enqueue, or nil when the candidate is dropped. Re-discoveries of
// an admitted URL become cross-edges instead of duplicate nodes.
func (e *Engine) admit(ctx context.Context, rawURL string, parent *model.LinkNode, st *crawlState) *FrontierItem {
	canonical, err := Canonicalize(rawURL, e.preserveFragment)
	if err != nil {
		return nil
	}

	if st.visited[canonical] {
		if canonical != parent.URL {
			st.graph.AddEdge(parent.URL, canonical)
		}
		return nil
	}

	if parent.Depth+1 > e.maxDepth {
		return nil
	}

	if e.filters != nil && !e.filters.Matches(canonical) {
		st.stats.FilteredOut++
		return nil
	}

	if e.gate != nil && !e.gate.CanFetch(ctx, canonical) {
		st.stats.RobotsBlocked++
		e.logger.Debug("blocked by robots.txt", "url", canonical)
		return nil
	}

	st.visited[canonical] = true
	item := &FrontierItem{
		URL:       canonical,
		Depth:     parent.Depth + 1,
		ParentURL: parent.URL,
	}
	item.Score = e.scorer(item)
	return item
}

// push enqueues admitted items. Depth-first pushes in reverse so the
// first link on a page is the first one explored.
func (e *Engine) push(frontier Frontier, items []*FrontierItem) {
	if e.strategy == StrategyDFS {
		for i := len(items) - 1; i >= 0; i-- {
			frontier.Push(items[i])
		}
		return
	}
	for _, item := range items {
		frontier.Push(item)
	}
}

// seedFromSitemap admits the site's sitemap URLs as depth-1 children of
// the root, so a crawl can cover pages that link-walking alone would
// miss.
func (e *Engine) seedFromSitemap(ctx context.Context, st *crawlState, frontier Frontier) {
	var declared []string
	if e.gate != nil {
		if rs := e.gate.RuleSetFor(ctx, st.stats.Seed); rs != nil {
			declared = rs.Sitemaps
		}
	}

	var admitted []*FrontierItem
	for _, u := range e.sitemaps.URLs(ctx, st.stats.Seed, declared) {
		if item := e.admit(ctx, u, st.graph.Root, st); item != nil {
			admitted = append(admitted, item)
		}
	}
	st.stats.SitemapSeeded = len(admitted)
	e.push(frontier, admitted)
}

// process fetches one admitted candidate and builds its node. It runs
// on a worker goroutine and touches no coordinator state.
func (e *Engine) process(ctx context.Context, item *FrontierItem, seedHost string) *fetchOutcome {
	node := &model.LinkNode{
		URL:        item.URL,
		Depth:      item.Depth,
		ParentURL:  item.ParentURL,
		IsInternal: IsInternal(Host(item.URL), seedHost),
	}
	out := &fetchOutcome{node: node}

	if e.cacheMode.reads() {
		if entry := e.cacheGet(ctx, item.URL); entry != nil {
			e.fillFromCache(out, entry)
			return out
		}
	}

	result, err := e.fetchWithRetry(ctx, item.URL)
	out.fetched = true
	node.CrawledAt = time.Now()
	if err != nil {
		node.Error = err.Error()
		e.logger.Debug("fetch failed", "url", item.URL, "error", err)
		return out
	}

	node.StatusCode = result.StatusCode
	node.CrawledAt = result.FetchedAt
	if result.StatusCode >= 400 {
		node.Error = fmt.Sprintf("HTTP %d", result.StatusCode)
		return out
	}
	if !result.IsHTML() {
		return out
	}

	parser, err := NewParser(result.FinalURL)
	if err != nil {
		parser, _ = NewParser(item.URL)
	}
	pr, err := parser.Parse(strings.NewReader(result.HTML))
	if err != nil {
		// The node keeps its status and timing; only extraction failed.
		node.Error = fmt.Sprintf("extract: %v", err)
		return out
	}
	node.Title = pr.Title
	node.Description = pr.Description
	node.MetaTags = pr.MetaTags
	out.links = SplitLinks(pr.Links, seedHost)

	if e.cacheMode.writes() {
		e.detectAndStore(ctx, out, ExtractText(result.HTML))
	}

	return out
}

// fetchWithRetry fetches under rate-limit admission, retrying retryable
// transport failures and rate-limit responses up to the limiter's retry
// budget. Waiting happens inside Acquire: a 429/503 retunes the domain
// pacer, so the next admission for that domain is what absorbs the
// backoff delay.
func (e *Engine) fetchWithRetry(ctx context.Context, rawURL string) (*model.FetchResult, error) {
	domain := Host(rawURL)
	transportFailures := 0

	for {
		if err := e.limiter.Acquire(ctx, domain); err != nil {
			return nil, err
		}
		result, err := e.fetcher.Fetch(ctx, rawURL)
		e.limiter.Release(domain)

		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) && fe.Retryable && ctx.Err() == nil {
				transportFailures++
				if e.limiter.ShouldRetry(transportFailures) {
					e.logger.Debug("retrying fetch",
						"url", rawURL,
						"attempt", transportFailures,
						"error", err,
					)
					continue
				}
			}
			return nil, err
		}

		if ratelimit.RateLimited(result.StatusCode) {
			failures := e.limiter.OnRateLimited(domain)
			if e.limiter.ShouldRetry(failures) && ctx.Err() == nil {
				continue
			}
			return result, nil
		}

		if result.StatusCode < 400 {
			e.limiter.OnSuccess(domain)
		}
		return result, nil
	}
}

// cacheGet reads the cache, degrading to a miss when the store is
// unavailable so the crawl keeps going on live fetches.
func (e *Engine) cacheGet(ctx context.Context, url string) *database.CacheEntry {
	entry, err := e.cache.Get(ctx, url)
	if err != nil {
		e.logger.Warn("cache read failed, fetching live", "url", url, "error", err)
		return nil
	}
	return entry
}

// fillFromCache populates a node from a cache entry. The stored link
// metadata lets the frontier keep growing without refetching the page.
func (e *Engine) fillFromCache(out *fetchOutcome, entry *database.CacheEntry) {
	node := out.node
	node.FromCache = true
	node.CrawledAt = entry.CreatedAt
	node.Title = entry.Metadata[metaTitle]
	node.Description = entry.Metadata[metaDescription]
	if sc := entry.Metadata[metaStatusCode]; sc != "" {
		node.StatusCode, _ = strconv.Atoi(sc)
	}
	if raw := entry.Metadata[metaLinks]; raw != "" {
		var links model.ExtractedLinks
		if err := json.Unmarshal([]byte(raw), &links); err == nil {
			out.links = &links
		}
	}
}

// detectAndStore diffs the freshly extracted text against the previous
// snapshot, including an expired one, then writes the new entry. Cache
// failures are logged and swallowed: a broken cache degrades the crawl,
// it does not stop it.
func (e *Engine) detectAndStore(ctx context.Context, out *fetchOutcome, text string) {
	node := out.node

	if e.detector != nil {
		prev, err := e.cache.GetStale(ctx, node.URL)
		switch {
		case err != nil:
			e.logger.Warn("cache read failed", "url", node.URL, "error", err)
		case prev != nil && prev.ContentHash != model.HashContent(text):
			changes, derr := e.detector.Detect(text, prev.Content)
			if derr == nil && e.detector.Significant(changes) {
				out.changed = true
				node.Changed = true
				e.logger.Info("content changed",
					"url", node.URL,
					"change_percent", fmt.Sprintf("%.1f", changes.PercentChanged()),
					"added_lines", len(changes.AddedLines),
					"removed_lines", len(changes.RemovedLines),
				)
			}
		}
	}

	metadata := map[string]string{
		metaTitle:       node.Title,
		metaDescription: node.Description,
		metaStatusCode:  strconv.Itoa(node.StatusCode),
	}
	if out.links != nil {
		if data, err := json.Marshal(out.links); err == nil {
			metadata[metaLinks] = string(data)
		}
	}
	if err := e.cache.Set(ctx, node.URL, text, metadata, e.cacheTTL); err != nil {
		e.logger.Warn("cache write failed", "url", node.URL, "error", err)
	}
}

// finish closes out the statistics and records the run in the history.
// Recording uses a detached context so a cancelled crawl still leaves a
// history row behind.
func (e *Engine) finish(ctx context.Context, st *crawlState) *model.CrawlResult {
	st.stats.FinishedAt = time.Now()
	st.stats.Duration = st.stats.FinishedAt.Sub(st.stats.StartedAt)
	st.stats.Pages = st.graph.Len()

	e.logger.Info("crawl finished",
		"seed", st.stats.Seed,
		"pages", st.stats.Pages,
		"fetched", st.stats.Fetched,
		"cache_hits", st.stats.CacheHits,
		"failed", st.stats.Failed,
		"duration", st.stats.Duration.Round(time.Millisecond),
	)

	if e.cache != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		id, err := e.cache.RecordCrawlRun(recordCtx, &database.CrawlRun{
			Seed:      st.stats.Seed,
			Strategy:  st.stats.Strategy,
			StartedAt: st.stats.StartedAt,
			Duration:  st.stats.Duration,
			Pages:     st.stats.Pages,
			Failures:  st.stats.Failed,
		})
		if err != nil {
			e.logger.Warn("failed to record crawl run", "error", err)
		} else {
			st.stats.RunID = id
		}
	}

	return &model.CrawlResult{Graph: st.graph, Stats: st.stats}
}
