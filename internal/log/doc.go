// Package log provides credential-scrubbing logging for the crawler,
// built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic masking of auth headers, proxy credentials, and tokens
//   - URL-aware scrubbing: userinfo passwords and sensitive query
//     parameters are masked while the rest of the URL stays readable
//   - Configurable log levels with verbose mode support
//
// # Why URL-aware scrubbing
//
// A crawler logs URLs constantly: candidates, redirects, robots fetches,
// cache keys. Crawled sites routinely embed session tokens and signing
// material in link query strings, and operators configure authenticated
// proxies as URLs. Masking the whole URL would make the logs useless, so
// the handler rewrites only the credential-bearing parts.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("candidate admitted",
//	    "url", "https://example.com/page?token=abc123", // token masked
//	    "depth", 2,
//	)
//
//	slog.SetDefault(logger)
package log
