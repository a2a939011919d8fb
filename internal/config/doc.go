// Package config provides configuration structures and utilities for
// crawlerWhipAI. It defines the main options for frontier strategy, crawl
// limits, caching, robots compliance, rate limiting, and report output,
// along with YAML file loading and per-site overrides.
package config
