package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/data-tamer/crawlerWhipAI/internal/model"
)

// createTestResult creates a crawl result with sample data for testing.
func createTestResult() *model.CrawlResult {
	root := &model.LinkNode{
		URL:        "https://example.com/",
		Title:      "Home",
		Depth:      0,
		IsInternal: true,
		StatusCode: 200,
	}
	graph := model.NewLinkGraph(root)

	about := &model.LinkNode{
		URL:        "https://example.com/about",
		Title:      "About",
		Depth:      1,
		ParentURL:  root.URL,
		IsInternal: true,
		StatusCode: 200,
	}
	graph.Add(root, about)

	blog := &model.LinkNode{
		URL:        "https://example.com/blog",
		Title:      "Blog",
		Depth:      1,
		ParentURL:  root.URL,
		IsInternal: true,
		StatusCode: 200,
		FromCache:  true,
		Changed:    true,
	}
	graph.Add(root, blog)

	missing := &model.LinkNode{
		URL:        "https://example.com/missing",
		Depth:      1,
		ParentURL:  root.URL,
		IsInternal: true,
		StatusCode: 404,
		Error:      "HTTP 404",
	}
	graph.Add(root, missing)

	graph.AddEdge(about.URL, blog.URL)

	return &model.CrawlResult{
		Graph: graph,
		Stats: model.CrawlStats{
			Seed:          "https://example.com/",
			Strategy:      "bfs",
			StartedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Duration:      1500 * time.Millisecond,
			Pages:         4,
			Fetched:       3,
			CacheHits:     1,
			Failed:        1,
			Changed:       1,
			FilteredOut:   2,
			RobotsBlocked: 1,
			ExternalLinks: 3,
		},
	}
}

// createCleanResult creates a result with no failures or changes.
func createCleanResult() *model.CrawlResult {
	root := &model.LinkNode{
		URL:        "https://example.com/",
		Title:      "Home",
		IsInternal: true,
		StatusCode: 200,
	}
	return &model.CrawlResult{
		Graph: model.NewLinkGraph(root),
		Stats: model.CrawlStats{
			Seed:     "https://example.com/",
			Strategy: "bfs",
			Pages:    1,
			Fetched:  1,
		},
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes report header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "CRAWL REPORT") {
			t.Error("expected output to contain header")
		}
		if !strings.Contains(output, "https://example.com/") {
			t.Error("expected output to contain the seed URL")
		}
		if !strings.Contains(output, "Strategy:   bfs") {
			t.Error("expected output to contain the strategy")
		}
		if !strings.Contains(output, "1 of 4 pages failed") {
			t.Error("expected status line to report the failure count")
		}
	})

	t.Run("writes summary counts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "SUMMARY") {
			t.Error("expected output to contain summary section")
		}
		if !strings.Contains(output, "Cache hits:      1") {
			t.Error("expected output to contain cache hit count")
		}
		if !strings.Contains(output, "Robots blocked:  1") {
			t.Error("expected output to contain robots blocked count")
		}
	})

	t.Run("writes coverage by depth", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "COVERAGE BY DEPTH") {
			t.Error("expected output to contain coverage section")
		}
		if !strings.Contains(output, "depth 0: 1 page(s)") {
			t.Error("expected output to contain the depth 0 count")
		}
		if !strings.Contains(output, "depth 1: 3 page(s)") {
			t.Error("expected output to contain the depth 1 count")
		}
	})

	t.Run("writes failures with details", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "FAILURES") {
			t.Error("expected output to contain failures section")
		}
		if !strings.Contains(output, "* https://example.com/missing") {
			t.Error("expected output to list the failed URL")
		}
		if !strings.Contains(output, "Error: HTTP 404") {
			t.Error("expected output to contain the error detail")
		}
	})

	t.Run("writes changed pages", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "CHANGED PAGES") {
			t.Error("expected output to contain changed pages section")
		}
		if !strings.Contains(output, "* https://example.com/blog") {
			t.Error("expected output to list the changed URL")
		}
	})

	t.Run("hides empty sections by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createCleanResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if strings.Contains(output, "FAILURES") {
			t.Error("expected failures section to be hidden when empty")
		}
		if strings.Contains(output, "CHANGED PAGES") {
			t.Error("expected changed pages section to be hidden when empty")
		}
	})

	t.Run("shows empty sections with WithShowEmpty", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithShowEmpty(true))

		if _, err := w.Write(createCleanResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "No failures") {
			t.Error("expected empty failures section to be shown")
		}
		if !strings.Contains(output, "No changes detected") {
			t.Error("expected empty changed pages section to be shown")
		}
	})

	t.Run("verbose output includes the site map", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithVerbose(true))

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "SITE MAP") {
			t.Error("expected verbose output to contain the site map")
		}
		if !strings.Contains(output, "https://example.com/blog [changed]") {
			t.Error("expected the changed marker in the site map")
		}
		if !strings.Contains(output, "https://example.com/missing [failed]") {
			t.Error("expected the failed marker in the site map")
		}
	})

	t.Run("site map is hidden without verbose", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if strings.Contains(buf.String(), "SITE MAP") {
			t.Error("expected the site map to be hidden by default")
		}
	})

	t.Run("WriteSummary outputs statistics only", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)
		result := createTestResult()

		if _, err := w.WriteSummary(&result.Stats); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "SUMMARY") {
			t.Error("expected summary section")
		}
		if strings.Contains(output, "COVERAGE BY DEPTH") {
			t.Error("expected no graph sections in summary output")
		}
	})
}

// TestMarkdownWriter tests the markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and info table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "# Crawl Report") {
			t.Error("expected output to contain the title")
		}
		if !strings.Contains(output, "`https://example.com/`") {
			t.Error("expected output to contain the seed URL")
		}
		if !strings.Contains(output, "bfs") {
			t.Error("expected output to contain the strategy")
		}
	})

	t.Run("writes summary table and outcome chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Summary") {
			t.Error("expected output to contain the summary section")
		}
		if !strings.Contains(output, "Live fetches") {
			t.Error("expected output to contain the fetch count row")
		}
		if !strings.Contains(output, "```mermaid") {
			t.Error("expected output to contain the mermaid chart")
		}
		if !strings.Contains(output, "Page Outcomes") {
			t.Error("expected output to contain the chart title")
		}
	})

	t.Run("warns about failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "1 page(s) failed to fetch") {
			t.Error("expected a failure warning")
		}
	})

	t.Run("reports a clean crawl", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createCleanResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "All pages crawled cleanly.") {
			t.Error("expected the clean-crawl tip")
		}
		if strings.Contains(output, "## Failures") {
			t.Error("expected no failures section for a clean crawl")
		}
	})

	t.Run("writes the site map outline", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Site Map") {
			t.Error("expected output to contain the site map section")
		}
		if !strings.Contains(output, "- [Home](https://example.com/)") {
			t.Error("expected the root as a markdown link")
		}
		if !strings.Contains(output, "  - [About](https://example.com/about)") {
			t.Error("expected children indented under the root")
		}
		if !strings.Contains(output, "<https://example.com/missing>") {
			t.Error("expected a bare autolink for nodes without a title")
		}
	})

	t.Run("WithTreeDepth limits the outline", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf, WithTreeDepth(0))

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "- [Home](https://example.com/)") {
			t.Error("expected the root to remain in the outline")
		}
		if strings.Contains(output, "[About](https://example.com/about)") {
			t.Error("expected depth 1 nodes to be pruned from the outline")
		}
	})

	t.Run("writes failure and changed tables", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Failures") {
			t.Error("expected the failures section")
		}
		if !strings.Contains(output, "HTTP 404") {
			t.Error("expected the failure error text")
		}
		if !strings.Contains(output, "## Changed Pages") {
			t.Error("expected the changed pages section")
		}
		if !strings.Contains(output, "https://example.com/blog") {
			t.Error("expected the changed URL")
		}
	})

	t.Run("writes coverage table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "## Coverage by Depth") {
			t.Error("expected the coverage section")
		}
	})

	t.Run("WriteSummary omits graph sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)
		result := createTestResult()

		if _, err := w.WriteSummary(&result.Stats); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Summary") {
			t.Error("expected the summary section")
		}
		if strings.Contains(output, "## Site Map") {
			t.Error("expected no site map in summary output")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		n, err := w.Write(createTestResult())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("expected %d bytes reported, got %d", buf.Len(), n)
		}

		var decoded model.CrawlResult
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Stats.Pages != 4 {
			t.Errorf("expected 4 pages after round trip, got %d", decoded.Stats.Pages)
		}
		if decoded.Graph.Root.URL != "https://example.com/" {
			t.Errorf("expected the root URL to survive, got %q", decoded.Graph.Root.URL)
		}
		if len(decoded.Graph.Root.Children) != 3 {
			t.Errorf("expected 3 children after round trip, got %d", len(decoded.Graph.Root.Children))
		}
	})

	t.Run("compact by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Compact output is a single line plus the trailing newline
		if got := strings.Count(buf.String(), "\n"); got != 1 {
			t.Errorf("expected single-line output, got %d newlines", got)
		}
	})

	t.Run("WithPrettyPrint indents output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint())

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "\n  \"") {
			t.Error("expected indented output")
		}
	})

	t.Run("WithIndent uses the given indent string", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithIndent("", "\t"))

		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "\n\t\"") {
			t.Error("expected tab-indented output")
		}
	})

	t.Run("WriteSummary outputs the statistics object", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)
		result := createTestResult()

		if _, err := w.WriteSummary(&result.Stats); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.CrawlStats
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Seed != "https://example.com/" || decoded.CacheHits != 1 {
			t.Errorf("unexpected decoded stats: %+v", decoded)
		}
	})
}

// TestFullJSONWriter tests the metadata-wrapped JSON writer.
func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewFullJSONWriter(&buf, "1.2.3", WithPrettyPrint())

	if _, err := w.Write(createTestResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Version string             `json:"version"`
		Result  *model.CrawlResult `json:"result"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", decoded.Version)
	}
	if decoded.Result == nil || decoded.Result.Stats.Pages != 4 {
		t.Errorf("expected the wrapped result, got %+v", decoded.Result)
	}
}

// failingWriter always returns an error, for MultiWriter error tests.
type failingWriter struct{}

func (failingWriter) Write(*model.CrawlResult) (int, error) {
	return 0, errors.New("write failed")
}

func (failingWriter) WriteSummary(*model.CrawlStats) (int, error) {
	return 0, errors.New("write failed")
}

// TestMultiWriter tests fan-out to multiple writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, jsonBuf bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&jsonBuf))

		total, err := mw.Write(createTestResult())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if text.Len() == 0 || jsonBuf.Len() == 0 {
			t.Error("expected both writers to receive output")
		}
		if total != text.Len()+jsonBuf.Len() {
			t.Errorf("expected total %d, got %d", text.Len()+jsonBuf.Len(), total)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var before, after bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&before), failingWriter{}, NewSimpleWriter(&after))

		if _, err := mw.Write(createTestResult()); err == nil {
			t.Fatal("expected an error from the failing writer")
		}
		if before.Len() == 0 {
			t.Error("expected the first writer to have been written")
		}
		if after.Len() != 0 {
			t.Error("expected writers after the failure to be skipped")
		}
	})

	t.Run("fans out summaries", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&a), NewSimpleWriter(&b))
		result := createTestResult()

		if _, err := mw.WriteSummary(&result.Stats); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.String() != b.String() {
			t.Error("expected identical summary output in both writers")
		}
	})
}

// TestTruncateString tests the table cell truncation helper.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "shorter than limit", input: "short", maxLen: 10, want: "short"},
		{name: "exactly at limit", input: "exact", maxLen: 5, want: "exact"},
		{name: "truncated with ellipsis", input: "a long string here", maxLen: 10, want: "a long ..."},
		{name: "tiny limit", input: "abcdef", maxLen: 3, want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
