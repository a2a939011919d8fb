package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/data-tamer/crawlerWhipAI/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables the full site map outline in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output including the site map outline.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full crawl result in human-readable format.
func (w *SimpleWriter) Write(result *model.CrawlResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, &result.Stats)
	w.writeSummary(&sb, &result.Stats)

	if result.Graph != nil && result.Graph.Root != nil {
		w.writeCoverage(&sb, result.Graph)
		w.writeFailures(&sb, result.Graph)
		w.writeChangedPages(&sb, result.Graph)
		if w.verbose {
			w.writeSiteMap(&sb, result.Graph)
		}
	}

	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs only the run statistics in human-readable format.
func (w *SimpleWriter) WriteSummary(stats *model.CrawlStats) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, stats)
	w.writeSummary(&sb, stats)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, stats *model.CrawlStats) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          CRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Seed:       %s\n", stats.Seed))
	sb.WriteString(fmt.Sprintf("Strategy:   %s\n", stats.Strategy))
	sb.WriteString(fmt.Sprintf("Started:    %s\n", stats.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:   %s\n", stats.Duration))

	if stats.Failed > 0 {
		sb.WriteString(fmt.Sprintf("Status:     %d of %d pages failed\n", stats.Failed, stats.Pages))
	} else {
		sb.WriteString("Status:     Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the outcome summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, stats *model.CrawlStats) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Pages crawled:   %d\n", stats.Pages))
	sb.WriteString(fmt.Sprintf("  Live fetches:    %d\n", stats.Fetched))
	sb.WriteString(fmt.Sprintf("  Cache hits:      %d\n", stats.CacheHits))
	sb.WriteString(fmt.Sprintf("  Failed:          %d\n", stats.Failed))
	sb.WriteString(fmt.Sprintf("  Changed:         %d\n", stats.Changed))
	sb.WriteString(fmt.Sprintf("  Filtered out:    %d\n", stats.FilteredOut))
	sb.WriteString(fmt.Sprintf("  Robots blocked:  %d\n", stats.RobotsBlocked))
	sb.WriteString(fmt.Sprintf("  External links:  %d\n", stats.ExternalLinks))
	if stats.SitemapSeeded > 0 || w.showEmpty {
		sb.WriteString(fmt.Sprintf("  Sitemap seeded:  %d\n", stats.SitemapSeeded))
	}
	sb.WriteString("\n")
}

// writeCoverage writes the per-depth page counts.
func (w *SimpleWriter) writeCoverage(sb *strings.Builder, graph *model.LinkGraph) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("COVERAGE BY DEPTH\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	byDepth := graph.URLsByDepth()
	for depth := 0; depth <= graph.MaxDepth(); depth++ {
		sb.WriteString(fmt.Sprintf("  depth %d: %d page(s)\n", depth, len(byDepth[depth])))
	}
	sb.WriteString("\n")
}

// writeFailures writes the failed fetches section.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, graph *model.LinkGraph) {
	failures := graph.Failures()
	if len(failures) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILURES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(failures) == 0 {
		sb.WriteString("  No failures\n")
	}
	for _, node := range failures {
		sb.WriteString(fmt.Sprintf("  * %s\n", node.URL))
		if node.StatusCode != 0 {
			sb.WriteString(fmt.Sprintf("    Status: %d\n", node.StatusCode))
		}
		sb.WriteString(fmt.Sprintf("    Error: %s\n", node.Error))
	}
	sb.WriteString("\n")
}

// writeChangedPages writes the changed pages section.
func (w *SimpleWriter) writeChangedPages(sb *strings.Builder, graph *model.LinkGraph) {
	changed := graph.ChangedPages()
	if len(changed) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CHANGED PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(changed) == 0 {
		sb.WriteString("  No changes detected\n")
	}
	for _, node := range changed {
		sb.WriteString(fmt.Sprintf("  * %s\n", node.URL))
	}
	sb.WriteString("\n")
}

// writeSiteMap writes the crawl tree as an indented outline.
func (w *SimpleWriter) writeSiteMap(sb *strings.Builder, graph *model.LinkGraph) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SITE MAP\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	w.writeTreeNode(sb, graph.Root)
	sb.WriteString("\n")
}

// writeTreeNode renders one node and its subtree as indented lines.
func (w *SimpleWriter) writeTreeNode(sb *strings.Builder, node *model.LinkNode) {
	sb.WriteString("  ")
	sb.WriteString(strings.Repeat("  ", node.Depth))
	sb.WriteString(node.URL)

	switch {
	case node.Error != "":
		sb.WriteString(" [failed]")
	case node.Changed:
		sb.WriteString(" [changed]")
	case node.FromCache:
		sb.WriteString(" [cache]")
	}
	sb.WriteString("\n")

	for _, child := range node.Children {
		w.writeTreeNode(sb, child)
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by crawlerwhip\n")
	sb.WriteString("https://github.com/data-tamer/crawlerWhipAI\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
