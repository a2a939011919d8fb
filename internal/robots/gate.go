package robots

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/data-tamer/crawlerWhipAI/internal/database"
)

// TextFetcher retrieves small text resources such as robots.txt.
// The crawler's HTTP fetcher implements this interface.
type TextFetcher interface {
	// FetchText retrieves the URL and returns the response body and
	// HTTP status code.
	FetchText(ctx context.Context, url string) (string, int, error)
}

// Default gate settings.
const (
	// DefaultTTL is how long fetched rule sets stay fresh.
	DefaultTTL = 12 * time.Hour

	// DefaultCacheSize bounds the number of domains held in memory.
	// Rule sets for evicted domains are reloaded from the database.
	DefaultCacheSize = 512

	// DefaultFetchTimeout bounds a single robots.txt fetch. Kept short so
	// an unresponsive domain cannot stall admission for the whole crawl.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultUserAgent is matched against rule groups when none is configured.
	DefaultUserAgent = "crawlerwhip"
)

// Gate answers "may this URL be fetched?" per the robots exclusion
// protocol. Rule sets are fetched once per domain, shared between
// concurrent callers, cached in bounded memory, and optionally persisted
// so they survive restarts.
type Gate struct {
	// fetcher retrieves robots.txt bodies.
	fetcher TextFetcher

	// db persists rule sets across runs. Nil disables persistence.
	db *database.CacheDB

	// cache holds recently used rule sets keyed by domain.
	cache *lru.Cache[string, *RuleSet]

	// group collapses concurrent loads for the same uncached domain
	// into a single fetch.
	group singleflight.Group

	// logger records fetch failures and persistence problems.
	logger *slog.Logger

	// userAgent is the agent string matched against rule groups.
	userAgent string

	// ttl is how long fetched rule sets stay fresh.
	ttl time.Duration

	// failClosed blocks a domain when its robots.txt is unreachable.
	// The default (false) treats an unreachable robots.txt as unrestricted.
	failClosed bool

	// fetchTimeout bounds a single robots.txt fetch.
	fetchTimeout time.Duration

	// cacheSize bounds the number of domains held in memory.
	cacheSize int
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithUserAgent sets the agent string matched against rule groups.
func WithUserAgent(ua string) GateOption {
	return func(g *Gate) {
		g.userAgent = ua
	}
}

// WithTTL sets how long fetched rule sets stay fresh.
func WithTTL(ttl time.Duration) GateOption {
	return func(g *Gate) {
		g.ttl = ttl
	}
}

// WithFailClosed blocks domains whose robots.txt cannot be retrieved.
func WithFailClosed(failClosed bool) GateOption {
	return func(g *Gate) {
		g.failClosed = failClosed
	}
}

// WithCacheSize bounds the number of domains held in memory.
func WithCacheSize(size int) GateOption {
	return func(g *Gate) {
		if size > 0 {
			g.cacheSize = size
		}
	}
}

// WithFetchTimeout bounds a single robots.txt fetch.
func WithFetchTimeout(timeout time.Duration) GateOption {
	return func(g *Gate) {
		if timeout > 0 {
			g.fetchTimeout = timeout
		}
	}
}

// WithDatabase persists rule sets to the given database so they survive
// process restarts.
func WithDatabase(db *database.CacheDB) GateOption {
	return func(g *Gate) {
		g.db = db
	}
}

// WithLogger sets the logger for fetch and persistence failures.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a robots compliance gate backed by the given fetcher.
func NewGate(fetcher TextFetcher, opts ...GateOption) (*Gate, error) {
	g := &Gate{
		fetcher:      fetcher,
		userAgent:    DefaultUserAgent,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		cacheSize:    DefaultCacheSize,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}

	cache, err := lru.New[string, *RuleSet](g.cacheSize)
	if err != nil {
		return nil, err
	}
	g.cache = cache

	return g, nil
}

// CanFetch reports whether the gate's user agent may fetch the URL.
//
// A disallowed verdict is a policy decision, not an error: callers drop
// the candidate and move on. When the domain's robots.txt cannot be
// obtained the configured failure policy decides (allow by default).
func (g *Gate) CanFetch(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return !g.failClosed
	}

	rs := g.ruleSet(ctx, u)
	if rs == nil {
		return !g.failClosed
	}

	return rs.Allowed(u.Path, g.userAgent)
}

// RuleSetFor returns the rule set governing the URL's domain, fetching
// robots.txt on first use. Sitemap discovery uses this to read the
// Sitemap directives without a second robots.txt fetch. Returns nil when
// the URL has no usable host.
func (g *Gate) RuleSetFor(ctx context.Context, rawURL string) *RuleSet {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return g.ruleSet(ctx, u)
}

// ruleSet returns the cached rule set for the URL's domain, loading it
// if absent or expired.
func (g *Gate) ruleSet(ctx context.Context, u *url.URL) *RuleSet {
	domain := strings.ToLower(u.Hostname())

	if rs, ok := g.cache.Get(domain); ok && !rs.Expired(time.Now()) {
		return rs
	}

	// Concurrent callers for the same uncached domain share one load.
	v, _, _ := g.group.Do(domain, func() (interface{}, error) {
		return g.load(ctx, u, domain), nil
	})

	rs, ok := v.(*RuleSet)
	if !ok {
		return nil
	}
	return rs
}

// load retrieves the domain's rule set from the database or the network
// and stores it in the memory cache.
func (g *Gate) load(ctx context.Context, u *url.URL, domain string) *RuleSet {
	// Database first so rule sets survive process restarts
	if g.db != nil {
		record, err := g.db.GetRobots(ctx, domain)
		if err != nil {
			g.logger.Warn("failed to read cached robots rules", "domain", domain, "error", err)
		} else if record != nil {
			if rs, err := UnmarshalRuleSet(record.Rules); err == nil {
				rs.FetchedAt = record.FetchedAt
				rs.TTL = record.TTL
				g.cache.Add(domain, rs)
				return rs
			}
		}
	}

	rs := g.fetch(ctx, u, domain)
	g.cache.Add(domain, rs)
	return rs
}

// fetch retrieves and parses the domain's robots.txt, applying the
// failure policy when it cannot be obtained.
func (g *Gate) fetch(ctx context.Context, u *url.URL, domain string) *RuleSet {
	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()

	fetchCtx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	body, status, err := g.fetcher.FetchText(fetchCtx, robotsURL)
	now := time.Now()

	switch {
	case err != nil || status >= 500:
		// Unreachable robots.txt: apply the failure policy. Cached in
		// memory only, so the domain is not re-probed for every URL, but
		// never persisted as if it were a real answer.
		g.logger.Warn("robots.txt unavailable",
			"domain", domain,
			"status", status,
			"error", err,
			"fail_closed", g.failClosed)
		rs := &RuleSet{Domain: domain, FetchedAt: now, TTL: g.ttl}
		if g.failClosed {
			rs.Rules = []Rule{{Agent: "*", Path: "/", Allow: false}}
		}
		return rs

	case g.failClosed && (status == http.StatusUnauthorized || status == http.StatusForbidden):
		// A denied robots.txt under fail-closed counts as a full
		// disallow. Memory only, like the unreachable case: the verdict
		// reflects the policy setting, not the server's rules.
		g.logger.Warn("robots.txt access denied",
			"domain", domain,
			"status", status)
		return &RuleSet{
			Domain:    domain,
			FetchedAt: now,
			TTL:       g.ttl,
			Rules:     []Rule{{Agent: "*", Path: "/", Allow: false}},
		}

	case status >= 400:
		// A definitive "no robots.txt here": the domain is unrestricted
		rs := &RuleSet{Domain: domain, FetchedAt: now, TTL: g.ttl}
		g.persist(ctx, rs)
		return rs

	default:
		rs := Parse(domain, body)
		rs.FetchedAt = now
		rs.TTL = g.ttl
		g.persist(ctx, rs)
		return rs
	}
}

// persist writes the rule set to the database, logging failures rather
// than propagating them: an unavailable database degrades persistence,
// never admission decisions.
func (g *Gate) persist(ctx context.Context, rs *RuleSet) {
	if g.db == nil {
		return
	}

	data, err := rs.Marshal()
	if err != nil {
		g.logger.Warn("failed to serialize robots rules", "domain", rs.Domain, "error", err)
		return
	}
	if err := g.db.SaveRobots(ctx, rs.Domain, data, rs.TTL); err != nil {
		g.logger.Warn("failed to persist robots rules", "domain", rs.Domain, "error", err)
	}
}
