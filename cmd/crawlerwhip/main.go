// Package main provides the entry point for the crawlerwhip CLI.
//
// crawlerwhip is a deep-crawl frontier engine with an integrated page
// cache and change detection. It walks a site breadth-first, depth-first,
// or best-first, records the link graph, and reports what changed since
// the previous crawl.
//
// Usage:
//
//	crawlerwhip crawl <url>
//	crawlerwhip crawl --list <file>
//
// See --help for all available options.
package main

// main is the entry point for crawlerwhip.
func main() {
	Execute()
}
