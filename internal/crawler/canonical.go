package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonicalize normalizes a raw URL into the uniqueness key used by the
// visited set, the frontier, and the cache.
//
// Design decision: We canonicalize before deduplication because:
//  1. The same page has many URL spellings (case, default ports, query order)
//  2. Fragments address positions inside a page, not pages — except for
//     hash-routed applications, so preserving them is an option
//  3. One stable key keeps the visited set and the cache consistent
//     with each other
func Canonicalize(rawURL string, preserveFragment bool) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	// Scheme-less URLs like "example.com/path" parse as bare paths
	if u.Scheme == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	u.Host = strings.ToLower(u.Host)
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	// Default ports carry no information
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}

	// Sort query parameters so equivalent URLs collapse to one key.
	// Blank values are kept: ?a= and ?a can be meaningful to the server.
	if u.RawQuery != "" {
		if q, qerr := url.ParseQuery(u.RawQuery); qerr == nil {
			u.RawQuery = q.Encode()
		}
	}

	if !preserveFragment {
		u.Fragment = ""
	}

	// Empty path and "/" are the same resource
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// Host returns the lowercased hostname of a URL, without the port.
// Returns "" when the URL cannot be parsed.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RegistrableDomain reduces a hostname to its registrable domain
// (eTLD+1): "blog.example.co.uk" becomes "example.co.uk". Hosts without
// a public suffix, such as IP addresses or "localhost", are returned
// unchanged.
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}

	// The public suffix list has nothing to say about IP addresses;
	// EffectiveTLDPlusOne would hand back a truncated "1.1" for them.
	if net.ParseIP(host) != nil {
		return host
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// IsInternal reports whether a candidate host belongs to the same site
// as the seed host, comparing registrable domains so subdomains count
// as internal.
func IsInternal(candidateHost, seedHost string) bool {
	candidate := RegistrableDomain(candidateHost)
	seed := RegistrableDomain(seedHost)
	return candidate != "" && candidate == seed
}
