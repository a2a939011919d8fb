// Package crawler implements the deep-crawl engine: frontier management,
// URL admission, fetching, parsing, and the link graph.
//
// # Architecture
//
// The package is designed around the Engine type, which owns one crawl.
// A single coordinating loop pops candidates from a Frontier, dispatches
// them to a pool of fetch workers, and integrates each outcome back into
// the link graph; extracted links re-enter through the same admission
// path as every other candidate.
//
// # Components
//
//   - Engine: the frontier manager coordinating one crawl
//   - Frontier: the queue discipline (breadth-first, depth-first, best-first)
//   - Fetcher: the HTTP transport with decompression and charset handling
//   - Parser: HTML parsing for links, title, description, and meta tags
//   - Chain and the filter types: pure admission predicates
//   - SitemapParser: seed discovery from sitemap.xml
//
// # Admission
//
// Every candidate URL passes canonicalization, the visited set, the
// filter chain, and the robots gate before it may enter the frontier.
// Rejected candidates are dropped silently; a URL seen twice becomes a
// cross-edge on the graph rather than a second node.
//
// # Politeness
//
// Fetches are admitted through a rate limiter that bounds per-domain and
// global concurrency, paces requests per domain, and backs off
// exponentially on 429/503 responses.
//
// # Usage
//
//	engine := crawler.NewEngine(fetcher,
//		crawler.WithStrategy(crawler.StrategyBFS),
//		crawler.WithMaxDepth(2),
//	)
//	result, err := engine.Crawl(ctx, "https://example.com")
package crawler
