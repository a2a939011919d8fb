// Package ratelimit provides admission control for concurrent fetch
// workers: a global in-flight ceiling, per-domain concurrency bounds,
// politeness pacing between requests to the same domain, exponential
// backoff on 429/503 responses scoped to the offending domain, and an
// optional memory gate that pauses admissions under heap pressure.
package ratelimit
