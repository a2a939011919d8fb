package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/data-tamer/crawlerWhipAI/internal/model"
)

// MarkdownWriter outputs crawl reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter

	// treeDepth limits the site map outline to this many levels.
	// Negative means no limit.
	treeDepth int
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithTreeDepth limits the rendered site map to the given depth.
// Deeper nodes still appear in coverage counts and the failure table.
func WithTreeDepth(depth int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.treeDepth = depth
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		treeDepth:  -1,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full crawl report in Markdown format.
func (w *MarkdownWriter) Write(result *model.CrawlResult) (int, error) {
	if result.Graph == nil || result.Graph.Root == nil {
		return w.WriteSummary(&result.Stats)
	}

	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, &result.Stats)
	w.writeSummary(md, &result.Stats)
	w.writeCoverage(md, result.Graph)
	w.writeSiteMap(md, result.Graph)
	w.writeFailures(md, result.Graph)
	w.writeChangedPages(md, result.Graph)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs only the run statistics in Markdown format.
func (w *MarkdownWriter) WriteSummary(stats *model.CrawlStats) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, stats)
	w.writeSummary(md, stats)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, stats *model.CrawlStats) {
	md.H1("Crawl Report")
	md.PlainText("")

	// Basic info table
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + stats.Seed + "`"},
			{"Strategy", stats.Strategy},
			{"Started", stats.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", stats.Duration.String()},
			{"Pages Crawled", strconv.Itoa(stats.Pages)},
			{"Status", w.getStatusText(stats)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on run outcome.
func (w *MarkdownWriter) getStatusText(stats *model.CrawlStats) string {
	if stats.Failed > 0 {
		return fmt.Sprintf("⚠️ %d of %d pages failed", stats.Failed, stats.Pages)
	}
	return "✅ Complete"
}

// writeSummary writes the outcome summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, stats *model.CrawlStats) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Live fetches", strconv.Itoa(stats.Fetched)},
			{"Cache hits", strconv.Itoa(stats.CacheHits)},
			{"Failed", strconv.Itoa(stats.Failed)},
			{"Changed", strconv.Itoa(stats.Changed)},
			{"Filtered out", strconv.Itoa(stats.FilteredOut)},
			{"Blocked by robots.txt", strconv.Itoa(stats.RobotsBlocked)},
			{"External links seen", strconv.Itoa(stats.ExternalLinks)},
			{"Sitemap seeded", strconv.Itoa(stats.SitemapSeeded)},
		},
	})
	md.PlainText("")

	if stats.Pages > 0 {
		w.writePieChart(md, stats)
	}

	w.writeAlert(md, stats)
}

// writePieChart writes a mermaid pie chart of page outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, stats *model.CrawlStats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)

	live := stats.Fetched - stats.Failed
	if live < 0 {
		live = 0
	}
	if live > 0 {
		chart.LabelAndIntValue("Fetched", uint64(live))
	}
	if stats.CacheHits > 0 {
		chart.LabelAndIntValue("From cache", uint64(stats.CacheHits))
	}
	if stats.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(stats.Failed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the run outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, stats *model.CrawlStats) {
	switch {
	case stats.Pages > 0 && stats.Failed*2 >= stats.Pages:
		md.Cautionf(
			"%d of %d pages failed. The site may be unreachable or rate limiting aggressively.",
			stats.Failed, stats.Pages,
		)
	case stats.Failed > 0:
		md.Warningf(
			"%d page(s) failed to fetch. See the failure table below.",
			stats.Failed,
		)
	case stats.Changed > 0:
		md.Importantf(
			"%d page(s) changed since the previous crawl.",
			stats.Changed,
		)
	default:
		md.Tip("All pages crawled cleanly.")
	}
	md.PlainText("")
}

// writeCoverage writes the per-depth coverage table.
func (w *MarkdownWriter) writeCoverage(md *markdown.Markdown, graph *model.LinkGraph) {
	md.H2("Coverage by Depth")
	md.PlainText("")

	byDepth := graph.URLsByDepth()
	rows := make([][]string, 0, graph.MaxDepth()+1)
	for depth := 0; depth <= graph.MaxDepth(); depth++ {
		rows = append(rows, []string{
			strconv.Itoa(depth),
			strconv.Itoa(len(byDepth[depth])),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Depth", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSiteMap writes the crawl tree as a nested outline.
func (w *MarkdownWriter) writeSiteMap(md *markdown.Markdown, graph *model.LinkGraph) {
	md.H2("Site Map")
	md.PlainText("")

	var sb strings.Builder
	w.writeTreeNode(&sb, graph.Root)
	md.PlainText(strings.TrimRight(sb.String(), "\n"))
	md.PlainText("")
}

// writeTreeNode renders one node and its subtree as indented list items.
func (w *MarkdownWriter) writeTreeNode(sb *strings.Builder, node *model.LinkNode) {
	if w.treeDepth >= 0 && node.Depth > w.treeDepth {
		return
	}

	sb.WriteString(strings.Repeat("  ", node.Depth))
	sb.WriteString("- ")
	if node.Title != "" {
		sb.WriteString("[" + node.Title + "](" + node.URL + ")")
	} else {
		sb.WriteString("<" + node.URL + ">")
	}
	switch {
	case node.Error != "":
		sb.WriteString(" ❌")
	case node.Changed:
		sb.WriteString(" 🔄")
	case node.FromCache:
		sb.WriteString(" 💾")
	}
	sb.WriteString("\n")

	for _, child := range node.Children {
		w.writeTreeNode(sb, child)
	}
}

// writeFailures writes the failure table, omitted when every fetch succeeded.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, graph *model.LinkGraph) {
	failures := graph.Failures()
	if len(failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	rows := make([][]string, len(failures))
	for i, node := range failures {
		status := "-"
		if node.StatusCode != 0 {
			status = strconv.Itoa(node.StatusCode)
		}
		rows[i] = []string{
			truncateString(node.URL, 60),
			status,
			truncateString(node.Error, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeChangedPages lists pages whose content changed since the last crawl.
func (w *MarkdownWriter) writeChangedPages(md *markdown.Markdown, graph *model.LinkGraph) {
	changed := graph.ChangedPages()
	if len(changed) == 0 {
		return
	}

	md.H2("Changed Pages")
	md.PlainText("")

	urls := make([]string, len(changed))
	for i, node := range changed {
		urls[i] = node.URL
	}
	md.BulletList(urls...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [crawlerwhip](https://github.com/data-tamer/crawlerWhipAI)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
