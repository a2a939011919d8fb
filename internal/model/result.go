package model

import (
	"strings"
	"time"
)

// FetchResult is the outcome of a single fetch adapter call.
// The engine consumes it to build LinkNodes, feed the cache store, and
// drive link extraction; it deliberately carries decoded text rather than
// raw bytes because every downstream consumer works on text.
type FetchResult struct {
	// URL is the URL that was requested.
	URL string `json:"url"`

	// FinalURL is the URL after following redirects.
	// Equal to URL when no redirect occurred.
	FinalURL string `json:"final_url"`

	// StatusCode is the HTTP response status, 0 when no response arrived.
	StatusCode int `json:"status_code"`

	// Headers contains the response headers in canonical form.
	Headers map[string][]string `json:"-"`

	// ContentType is the media type from the Content-Type header,
	// without parameters.
	ContentType string `json:"content_type,omitempty"`

	// HTML is the decoded response body. Compressed transfer encodings
	// and non-UTF-8 charsets are already undone.
	HTML string `json:"-"`

	// FetchedAt is when the response was fully read.
	FetchedAt time.Time `json:"fetched_at"`

	// Duration is the wall time of the fetch including body read.
	Duration time.Duration `json:"duration"`
}

// Header returns the first value of the named response header, or ""
// when absent. Names are matched in canonical form.
func (r *FetchResult) Header(name string) string {
	if values, ok := r.Headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// IsHTML reports whether the response carried an HTML media type.
func (r *FetchResult) IsHTML() bool {
	return r.ContentType == "text/html" ||
		r.ContentType == "application/xhtml+xml" ||
		strings.HasPrefix(r.ContentType, "text/html;")
}

// ExtractedLinks holds the outbound links of a page, split by whether
// they stay on the seed's registrable domain.
type ExtractedLinks struct {
	// Internal are links on the same registrable domain, in document order.
	Internal []string `json:"internal"`

	// External are links leaving the registrable domain, in document order.
	External []string `json:"external"`
}

// Total returns the combined number of extracted links.
func (l *ExtractedLinks) Total() int {
	return len(l.Internal) + len(l.External)
}

// CrawlStats summarizes what a crawl did.
type CrawlStats struct {
	// Seed is the canonicalized seed URL.
	Seed string `json:"seed"`

	// Strategy is the frontier ordering used.
	Strategy string `json:"strategy"`

	// RunID identifies this crawl in the run history, when recorded.
	RunID string `json:"run_id,omitempty"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last in-flight fetch was integrated.
	FinishedAt time.Time `json:"finished_at"`

	// Duration is FinishedAt minus StartedAt.
	Duration time.Duration `json:"duration"`

	// Pages is the number of recorded nodes, counting failures.
	Pages int `json:"pages"`

	// Fetched counts live fetches, successful or not.
	Fetched int `json:"fetched"`

	// CacheHits counts nodes served from the cache without a fetch.
	CacheHits int `json:"cache_hits"`

	// Failed counts nodes recorded with an error.
	Failed int `json:"failed"`

	// Changed counts pages whose content changed significantly since
	// the previous cached snapshot.
	Changed int `json:"changed"`

	// FilteredOut counts candidates rejected by the filter chain.
	FilteredOut int `json:"filtered_out"`

	// RobotsBlocked counts candidates rejected by robots.txt.
	RobotsBlocked int `json:"robots_blocked"`

	// ExternalLinks counts links that left the seed's registrable
	// domain, whether or not they were admitted.
	ExternalLinks int `json:"external_links"`

	// SitemapSeeded counts frontier items admitted from the sitemap.
	SitemapSeeded int `json:"sitemap_seeded"`
}

// CrawlResult is what a crawl returns: the link graph plus statistics.
// Report writers consume it as-is.
type CrawlResult struct {
	// Graph is the crawl tree with cross-edges.
	Graph *LinkGraph `json:"graph"`

	// Stats summarizes the run.
	Stats CrawlStats `json:"stats"`
}
