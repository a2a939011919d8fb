package crawler

import (
	stdhtml "html"
	"io"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/data-tamer/crawlerWhipAI/internal/model"
)

// Parser extracts links and metadata from HTML content.
//
// Design decision: We use golang.org/x/net/html rather than regex
// because:
//  1. It correctly handles malformed HTML common on the web
//  2. Provides a proper DOM-like structure
//  3. More maintainable than complex regex patterns
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving
	// relative links.
	baseURL *url.URL
}

// ParseResult contains everything extracted from one HTML page.
//
// Design decision: We return one result struct from a single parsing
// pass rather than separate extraction methods because:
//  1. The document is walked once
//  2. Related data is collected together
//  3. Callers choose what to use
type ParseResult struct {
	// Title is the page title, from <title> with og:title as fallback.
	Title string

	// Description is from the description meta tag, with
	// og:description as fallback.
	Description string

	// Canonical is the rel=canonical URL when the page declares one.
	Canonical string

	// Links are resolved href targets in document order, deduplicated.
	Links []string

	// MetaTags maps meta tag names (or OpenGraph properties) to their
	// content.
	MetaTags map[string]string
}

// NewParser creates an HTML parser that resolves relative links against
// the given base URL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse walks the HTML document and extracts links and metadata.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Links:    make([]string, 0),
		MetaTags: make(map[string]string),
	}
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, result, seen)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if result.Title == "" {
		result.Title = result.MetaTags["og:title"]
	}
	result.Description = result.MetaTags["description"]
	if result.Description == "" {
		result.Description = result.MetaTags["og:description"]
	}

	return result, nil
}

// processElement handles a single HTML element node.
func (p *Parser) processElement(n *html.Node, result *ParseResult, seen map[string]bool) {
	switch n.Data {
	case "title":
		if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "a":
		if href := getAttr(n, "href"); href != "" {
			resolved := p.resolveURL(href)
			if resolved != "" && !seen[resolved] {
				seen[resolved] = true
				result.Links = append(result.Links, resolved)
			}
		}

	case "meta":
		// OpenGraph tags use property instead of name
		name := getAttr(n, "name")
		if name == "" {
			name = getAttr(n, "property")
		}
		content := getAttr(n, "content")
		if name != "" && content != "" {
			result.MetaTags[strings.ToLower(name)] = content
		}

	case "link":
		if getAttr(n, "rel") == "canonical" {
			if href := getAttr(n, "href"); href != "" {
				result.Canonical = p.resolveURL(href)
			}
		}
	}
}

// resolveURL resolves a relative href against the base URL.
//
// Design decision: We resolve at extraction time rather than storing
// hrefs as-is because:
//  1. Deduplication needs absolute URLs
//  2. Link classification needs a host to look at
//  3. The frontier never has to know which page a URL was found on
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		href == "#" {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(u).String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// SplitLinks classifies extracted links against the seed host.
// Subdomains of the seed's registrable domain count as internal.
func SplitLinks(links []string, seedHost string) *model.ExtractedLinks {
	split := &model.ExtractedLinks{
		Internal: make([]string, 0, len(links)),
		External: make([]string, 0),
	}
	for _, link := range links {
		host := Host(link)
		if host == "" {
			continue
		}
		if IsInternal(host, seedHost) {
			split.Internal = append(split.Internal, link)
		} else {
			split.External = append(split.External, link)
		}
	}
	return split
}

// textPolicyPool shares sanitizer policies between workers; building a
// bluemonday policy is not free.
var textPolicyPool = sync.Pool{
	New: func() any {
		return bluemonday.StrictPolicy()
	},
}

var (
	spaceRun = regexp.MustCompile(`[ \t]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// ExtractText reduces HTML to plain text for hashing and change
// detection: tags stripped, entities decoded, spaces collapsed. Line
// breaks from the source survive so the change detector has lines to
// compare.
func ExtractText(htmlContent string) string {
	policy := textPolicyPool.Get().(*bluemonday.Policy)
	defer textPolicyPool.Put(policy)

	text := stdhtml.UnescapeString(policy.Sanitize(htmlContent))

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(lines[i], " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
