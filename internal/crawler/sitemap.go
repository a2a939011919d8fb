package crawler

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/url"
	"strings"
)

// Sitemap discovery limits.
const (
	// DefaultMaxSitemaps caps how many sitemap files one discovery
	// fetches, including sub-sitemaps behind an index.
	DefaultMaxSitemaps = 10

	// DefaultMaxSitemapURLs caps how many URLs one discovery returns.
	DefaultMaxSitemapURLs = 1000
)

// TextSource retrieves small text resources such as sitemap XML.
// *Fetcher implements it.
type TextSource interface {
	FetchText(ctx context.Context, url string) (string, int, error)
}

// SitemapParser discovers seed URLs from sitemap.xml files so a crawl
// can start from the site's own inventory instead of link-walking to
// it. Sitemap indexes are followed one level at a time until the
// sitemap or URL budget is spent.
type SitemapParser struct {
	// fetcher retrieves sitemap XML bodies.
	fetcher TextSource

	// maxSitemaps caps sitemap fetches per discovery.
	maxSitemaps int

	// maxURLs caps returned URLs per discovery.
	maxURLs int

	// sameHostOnly drops URLs from other hosts, which is almost always
	// what a single-site crawl wants.
	sameHostOnly bool

	// logger records fetch and parse problems at debug level; a broken
	// sitemap never fails a crawl.
	logger *slog.Logger
}

// SitemapOption configures a SitemapParser.
type SitemapOption func(*SitemapParser)

// WithMaxSitemaps caps sitemap fetches per discovery.
func WithMaxSitemaps(n int) SitemapOption {
	return func(s *SitemapParser) {
		if n > 0 {
			s.maxSitemaps = n
		}
	}
}

// WithMaxSitemapURLs caps returned URLs per discovery.
func WithMaxSitemapURLs(n int) SitemapOption {
	return func(s *SitemapParser) {
		if n > 0 {
			s.maxURLs = n
		}
	}
}

// WithSameHostOnly controls whether URLs from other hosts are dropped.
func WithSameHostOnly(sameHost bool) SitemapOption {
	return func(s *SitemapParser) {
		s.sameHostOnly = sameHost
	}
}

// WithSitemapLogger sets the logger for discovery problems.
func WithSitemapLogger(logger *slog.Logger) SitemapOption {
	return func(s *SitemapParser) {
		s.logger = logger
	}
}

// NewSitemapParser creates a sitemap discoverer backed by the given
// fetcher.
func NewSitemapParser(fetcher TextSource, opts ...SitemapOption) *SitemapParser {
	s := &SitemapParser{
		fetcher:      fetcher,
		maxSitemaps:  DefaultMaxSitemaps,
		maxURLs:      DefaultMaxSitemapURLs,
		sameHostOnly: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Sitemap XML shapes. Field matching is by local element name, so both
// namespaced and namespace-free sitemaps parse.
type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// sitemapState carries budgets and results through index recursion.
type sitemapState struct {
	fetched int
	seen    map[string]bool
	urls    []string
}

// URLs discovers page URLs for the base URL. The declared list comes
// from the site's robots.txt Sitemap directives; when it is empty the
// common sitemap locations are probed instead. Returns URLs in
// discovery order, deduplicated, or nil when no sitemap yields any.
func (s *SitemapParser) URLs(ctx context.Context, baseURL string, declared []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Hostname() == "" {
		return nil
	}
	baseHost := strings.ToLower(base.Hostname())

	candidates := make([]string, 0, len(declared))
	for _, d := range declared {
		if d = strings.TrimSpace(d); d != "" {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		root := url.URL{Scheme: base.Scheme, Host: base.Host}
		for _, p := range []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap/sitemap.xml"} {
			probe := root
			probe.Path = p
			candidates = append(candidates, probe.String())
		}
	}

	st := &sitemapState{seen: make(map[string]bool)}
	for _, candidate := range candidates {
		if st.fetched >= s.maxSitemaps || len(st.urls) >= s.maxURLs {
			break
		}
		s.parseSitemap(ctx, candidate, baseHost, st)
	}

	if len(st.urls) == 0 {
		return nil
	}
	s.logger.Info("sitemap discovery complete",
		"base_url", baseURL,
		"urls", len(st.urls),
		"sitemaps_fetched", st.fetched,
	)
	return st.urls
}

// parseSitemap fetches one sitemap and collects its URLs, recursing
// into sub-sitemaps when it turns out to be an index.
func (s *SitemapParser) parseSitemap(ctx context.Context, sitemapURL, baseHost string, st *sitemapState) {
	if st.fetched >= s.maxSitemaps || len(st.urls) >= s.maxURLs {
		return
	}
	st.fetched++

	body, status, err := s.fetcher.FetchText(ctx, sitemapURL)
	if err != nil || status != 200 {
		s.logger.Debug("sitemap not available", "url", sitemapURL, "status", status, "error", err)
		return
	}

	var index sitemapIndex
	if xml.Unmarshal([]byte(body), &index) == nil && len(index.Sitemaps) > 0 {
		for _, sub := range index.Sitemaps {
			loc := strings.TrimSpace(sub.Loc)
			if loc == "" {
				continue
			}
			s.parseSitemap(ctx, loc, baseHost, st)
			if st.fetched >= s.maxSitemaps || len(st.urls) >= s.maxURLs {
				return
			}
		}
		return
	}

	var set urlSet
	if err := xml.Unmarshal([]byte(body), &set); err != nil {
		s.logger.Debug("invalid sitemap XML", "url", sitemapURL, "error", err)
		return
	}

	for _, entry := range set.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		if s.sameHostOnly && !strings.EqualFold(Host(loc), baseHost) {
			continue
		}
		if st.seen[loc] {
			continue
		}
		st.seen[loc] = true
		st.urls = append(st.urls, loc)
		if len(st.urls) >= s.maxURLs {
			return
		}
	}
}
