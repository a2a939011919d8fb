package model

import (
	"sort"
	"time"
)

// LinkNode represents a single discovered page in the crawl tree.
// Every candidate that passes admission becomes exactly one node, whether
// the fetch succeeded or not; failed fetches carry Error and StatusCode
// so callers can distinguish "not reached" from "reached but failed".
//
// Design decision: Parentage is first-discoverer-wins because:
// 1. It keeps the graph a tree, which is what reports and exports consume
// 2. Duplicate nodes for the same URL would break the dedup invariant
// 3. Later discovery paths are still captured as cross-edges on the graph
type LinkNode struct {
	// URL is the canonicalized URL of this page.
	URL string `json:"url"`

	// Title is the page title from the <title> tag, with og:title fallback.
	Title string `json:"title,omitempty"`

	// Description is the meta description content, with og:description fallback.
	Description string `json:"description,omitempty"`

	// MetaTags holds additional meta tags of interest (og:image, og:title, ...).
	MetaTags map[string]string `json:"meta_tags,omitempty"`

	// Depth is the level in the crawl tree. The seed is depth 0 and
	// children are always parent depth + 1.
	Depth int `json:"depth"`

	// ParentURL is the canonicalized URL of the first discoverer.
	// Empty for the root node.
	ParentURL string `json:"parent_url,omitempty"`

	// Children are the pages first discovered from this node, in
	// discovery order.
	Children []*LinkNode `json:"children,omitempty"`

	// IsInternal reports whether the URL shares the seed's registrable domain.
	IsInternal bool `json:"is_internal"`

	// StatusCode is the HTTP status of the fetch, 0 if the request
	// never produced a response.
	StatusCode int `json:"status_code,omitempty"`

	// CrawledAt is when the fetch for this node completed.
	CrawledAt time.Time `json:"crawled_at"`

	// FromCache reports whether the content came from the cache store
	// instead of a live fetch.
	FromCache bool `json:"from_cache,omitempty"`

	// Changed reports that the page content differed significantly from
	// the previous cached snapshot.
	Changed bool `json:"changed,omitempty"`

	// Error holds the failure description when the fetch or extraction
	// failed. Empty on success.
	Error string `json:"error,omitempty"`
}

// Walk visits this node and all descendants in depth-first order.
// Traversal stops early when fn returns false.
func (n *LinkNode) Walk(fn func(*LinkNode) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *LinkNode) Count() int {
	count := 0
	n.Walk(func(*LinkNode) bool {
		count++
		return true
	})
	return count
}

// URLs returns every URL in the subtree up to maxDepth.
// A negative maxDepth means no limit.
func (n *LinkNode) URLs(maxDepth int) []string {
	var urls []string
	n.Walk(func(node *LinkNode) bool {
		if maxDepth >= 0 && node.Depth > maxDepth {
			return true
		}
		urls = append(urls, node.URL)
		return true
	})
	return urls
}

// Edge records a link from one already-discovered node to another.
// Cross-edges preserve link structure that the tree cannot: when a page is
// re-discovered from a second path, the second path is recorded here
// instead of duplicating the node.
type Edge struct {
	// From is the canonical URL of the linking page.
	From string `json:"from"`

	// To is the canonical URL of the linked page.
	To string `json:"to"`
}

// LinkGraph is the result of a crawl: a tree of LinkNodes plus the
// cross-edges between them.
//
// Design decision: Nodes live in a flat map keyed by canonical URL
// (an arena) and the tree references them by pointer because:
// 1. Dedup lookups during the crawl are O(1)
// 2. Cross-links become Edge entries instead of ownership cycles
// 3. Reports can iterate all nodes without re-walking the tree
type LinkGraph struct {
	// Root is the seed node of the crawl.
	Root *LinkNode `json:"root"`

	// Nodes maps each canonical URL to its unique node.
	Nodes map[string]*LinkNode `json:"-"`

	// Edges are the recorded cross-links between existing nodes.
	Edges []Edge `json:"edges,omitempty"`
}

// NewLinkGraph creates a graph containing only the given root node.
func NewLinkGraph(root *LinkNode) *LinkGraph {
	return &LinkGraph{
		Root:  root,
		Nodes: map[string]*LinkNode{root.URL: root},
	}
}

// Node returns the node for the canonical URL, or nil when unknown.
func (g *LinkGraph) Node(url string) *LinkNode {
	return g.Nodes[url]
}

// Add records a node in the arena and attaches it to its parent.
// It returns false without modifying the graph when the URL is already
// present, preserving the one-node-per-URL invariant.
func (g *LinkGraph) Add(parent *LinkNode, node *LinkNode) bool {
	if _, exists := g.Nodes[node.URL]; exists {
		return false
	}
	g.Nodes[node.URL] = node
	if parent != nil {
		parent.Children = append(parent.Children, node)
	}
	return true
}

// AddEdge records a cross-link between two URLs.
// Both endpoints are recorded as given; callers canonicalize first.
func (g *LinkGraph) AddEdge(from, to string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to})
}

// Len returns the number of recorded nodes.
func (g *LinkGraph) Len() int {
	return len(g.Nodes)
}

// Failures returns all nodes whose fetch failed, sorted by URL for
// stable report output.
func (g *LinkGraph) Failures() []*LinkNode {
	var failed []*LinkNode
	for _, node := range g.Nodes {
		if node.Error != "" {
			failed = append(failed, node)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].URL < failed[j].URL })
	return failed
}

// ChangedPages returns all nodes flagged as changed since their last
// cached snapshot, sorted by URL for stable report output.
func (g *LinkGraph) ChangedPages() []*LinkNode {
	var changed []*LinkNode
	for _, node := range g.Nodes {
		if node.Changed {
			changed = append(changed, node)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].URL < changed[j].URL })
	return changed
}

// URLsByDepth groups every recorded URL by its depth level.
// URLs within a level are sorted for stable output.
func (g *LinkGraph) URLsByDepth() map[int][]string {
	byDepth := make(map[int][]string)
	for _, node := range g.Nodes {
		byDepth[node.Depth] = append(byDepth[node.Depth], node.URL)
	}
	for depth := range byDepth {
		sort.Strings(byDepth[depth])
	}
	return byDepth
}

// MaxDepth returns the deepest level present in the graph.
func (g *LinkGraph) MaxDepth() int {
	max := 0
	for _, node := range g.Nodes {
		if node.Depth > max {
			max = node.Depth
		}
	}
	return max
}
