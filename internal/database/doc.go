// Package database provides SQLite-based storage for crawlerWhipAI.
//
// This package implements the CacheDB, which stores:
//   - Cached page content keyed by canonical URL, with TTL expiry
//   - Robots rule sets per domain, with their own TTL
//   - Crawl-run history for inspection across sessions
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
//
// Writes are funneled through a single connection, so concurrent workers
// caching different (or racing on the same) URLs serialize cleanly with
// last-write-wins semantics.
package database
