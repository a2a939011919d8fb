package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultMaxPathDepth is the path-segment ceiling applied when a
// PathDepthFilter is configured without an explicit limit.
const DefaultMaxPathDepth = 5

// Filter accepts or rejects a candidate URL before it is admitted to
// the frontier. Implementations are pure: no I/O, no shared state.
type Filter interface {
	// Matches reports whether the URL passes the filter.
	Matches(rawURL string) bool
}

// Chain evaluates filters in order with AND semantics, stopping at the
// first rejection. An empty chain accepts everything. Cheap filters
// should be placed first.
type Chain struct {
	filters []Filter
}

// NewChain creates a filter chain. Nil filters are skipped.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	for _, f := range filters {
		if f != nil {
			c.filters = append(c.filters, f)
		}
	}
	return c
}

// Matches reports whether the URL passes every filter in the chain.
func (c *Chain) Matches(rawURL string) bool {
	for _, f := range c.filters {
		if !f.Matches(rawURL) {
			return false
		}
	}
	return true
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	return len(c.filters)
}

// PatternFilter matches glob patterns against the full URL.
//
// In follow mode (exclude=false) a URL passes when it matches at least
// one pattern. In ignore mode (exclude=true) a URL passes when it
// matches none.
type PatternFilter struct {
	patterns []*regexp.Regexp
	exclude  bool
}

// NewFollowPatterns creates a filter that only admits URLs matching one
// of the glob patterns. With no patterns everything passes.
func NewFollowPatterns(patterns []string) *PatternFilter {
	return &PatternFilter{patterns: compileGlobs(patterns)}
}

// NewIgnorePatterns creates a filter that rejects URLs matching any of
// the glob patterns.
func NewIgnorePatterns(patterns []string) *PatternFilter {
	return &PatternFilter{patterns: compileGlobs(patterns), exclude: true}
}

// Matches reports whether the URL passes the pattern filter.
func (f *PatternFilter) Matches(rawURL string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, re := range f.patterns {
		if re.MatchString(rawURL) {
			return !f.exclude
		}
	}
	return f.exclude
}

// globRegexp compiles a glob pattern into a regular expression matched
// from the start of the full URL: * matches any run of characters,
// including /, and ? matches exactly one character. Everything else is
// literal, so the result always compiles. The match is a prefix match,
// not a full match, so a pattern need not cover trailing query text.
//
// Examples:
//   - "*/admin/*" matches "https://example.com/admin/panel/users"
//   - "https://example.com/docs/*" matches only that host's /docs tree
//   - "*.pdf" matches "https://example.com/docs/manual.pdf"
func globRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return regexp.MustCompile(b.String())
}

// compileGlobs translates each glob pattern for matching against URLs.
func compileGlobs(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, globRegexp(p))
	}
	return compiled
}

// RegexFilter matches the full URL against regular expressions, for
// rules that globs cannot express.
type RegexFilter struct {
	patterns []*regexp.Regexp
	exclude  bool
}

// NewRegexFilter compiles the expressions into a filter. When exclude
// is true, a URL matching any expression is rejected; otherwise a URL
// must match at least one.
func NewRegexFilter(exprs []string, exclude bool) (*RegexFilter, error) {
	f := &RegexFilter{exclude: exclude}
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Matches reports whether the URL passes the regex filter.
func (f *RegexFilter) Matches(rawURL string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, re := range f.patterns {
		if re.MatchString(rawURL) {
			return !f.exclude
		}
	}
	return f.exclude
}

// DomainFilter admits or rejects URLs by host. Matching is
// subdomain-aware: blocking "example.com" also blocks
// "cdn.example.com" but not "notexample.com".
type DomainFilter struct {
	allowed []string
	blocked []string
}

// NewDomainFilter creates a domain filter. The block list is checked
// first; when an allow list is present, only hosts under one of its
// domains pass.
func NewDomainFilter(allowed, blocked []string) *DomainFilter {
	return &DomainFilter{
		allowed: normalizeDomains(allowed),
		blocked: normalizeDomains(blocked),
	}
}

// Matches reports whether the URL's host passes the domain filter.
func (f *DomainFilter) Matches(rawURL string) bool {
	host := Host(rawURL)
	if host == "" {
		return false
	}

	for _, blocked := range f.blocked {
		if hostUnder(host, blocked) {
			return false
		}
	}

	if len(f.allowed) > 0 {
		for _, allowed := range f.allowed {
			if hostUnder(host, allowed) {
				return true
			}
		}
		return false
	}

	return true
}

// hostUnder reports whether host is domain itself or a subdomain of it.
func hostUnder(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// normalizeDomains lowercases configured domains and strips stray dots.
func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.Trim(strings.TrimSpace(d), "."))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// defaultSkipExtensions lists binary and media suffixes that are never
// worth fetching as pages.
var defaultSkipExtensions = []string{
	".pdf", ".zip", ".exe", ".dmg", ".iso", ".tar", ".gz",
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp",
	".mp4", ".avi", ".mov", ".mkv", ".flv",
	".mp3", ".wav", ".flac", ".aac",
}

// ExtensionFilter admits or rejects URLs by the file extension of their
// path.
type ExtensionFilter struct {
	allowed map[string]bool
	skip    map[string]bool
}

// NewExtensionFilter creates an extension filter. An empty skip list
// falls back to the default binary/media set; a non-empty allow list
// admits only the listed extensions. Extension-less paths pass the skip
// check but fail an allow list.
func NewExtensionFilter(allowed, skip []string) *ExtensionFilter {
	if len(skip) == 0 {
		skip = defaultSkipExtensions
	}
	return &ExtensionFilter{
		allowed: extensionSet(allowed),
		skip:    extensionSet(skip),
	}
}

// Matches reports whether the URL's extension passes the filter.
func (f *ExtensionFilter) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))

	if f.skip[ext] {
		return false
	}
	if len(f.allowed) > 0 {
		return f.allowed[ext]
	}
	return true
}

// extensionSet lowercases extensions and ensures the leading dot.
func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

// PathDepthFilter rejects URLs whose path nests deeper than a limit.
// This is separate from the frontier's crawl depth: a depth-1 link can
// still point at /a/b/c/d/e/f.
type PathDepthFilter struct {
	maxDepth int
}

// NewPathDepthFilter creates a path depth filter. Non-positive limits
// fall back to DefaultMaxPathDepth.
func NewPathDepthFilter(maxDepth int) *PathDepthFilter {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxPathDepth
	}
	return &PathDepthFilter{maxDepth: maxDepth}
}

// Matches reports whether the URL's path depth is within the limit.
func (f *PathDepthFilter) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	depth := 0
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			depth++
		}
	}
	return depth <= f.maxDepth
}
