package crawler

import "errors"

var (
	// ErrInvalidURL is returned when a URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrUnsupportedScheme is returned for non-HTTP(S) URLs such as
	// mailto: or javascript: links.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrUnknownStrategy is returned for a strategy name that is not
	// bfs, dfs, or best_first.
	ErrUnknownStrategy = errors.New("unknown crawl strategy")

	// ErrUnknownCacheMode is returned for a cache mode name that is not
	// bypass, cached, read_only, or write_only.
	ErrUnknownCacheMode = errors.New("unknown cache mode")
)
