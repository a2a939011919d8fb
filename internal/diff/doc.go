// Package diff detects content changes between crawled page versions.
// It computes a line-based similarity ratio, classifies added, removed,
// and modified lines, and renders unified diffs for reporting.
package diff
