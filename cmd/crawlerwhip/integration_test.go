package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/data-tamer/crawlerWhipAI/internal/config"
	"github.com/data-tamer/crawlerWhipAI/internal/crawler"
	"github.com/data-tamer/crawlerWhipAI/internal/database"
	"github.com/data-tamer/crawlerWhipAI/internal/model"
	"github.com/data-tamer/crawlerWhipAI/internal/report"
)

// skipIfShort skips the test if -short flag is set.
// Integration tests run a local HTTP server and a real SQLite database.
func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// testSite is a three-page site served over httptest. The front page
// carries a mutable announcement so re-crawl tests can change the
// content between runs, and robots rules can be served on demand.
type testSite struct {
	server *httptest.Server

	mu           sync.Mutex
	announcement string
	robots       string
}

// startTestSite starts the test site and registers its shutdown.
func startTestSite(t *testing.T) *testSite {
	t.Helper()

	s := &testSite{announcement: "Grand opening this week."}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Test Site</title></head>
<body>
<h1>Welcome</h1>
<p>%s</p>
<a href="/about">About</a>
<a href="/contact">Contact</a>
</body>
</html>`, s.text())
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>About - Test Site</title></head>
<body>
<h1>About Us</h1>
<p>We crawl the web, politely.</p>
<a href="/">Home</a>
</body>
</html>`))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Contact - Test Site</title></head>
<body>
<h1>Contact Us</h1>
<p>Email: hello@example.com</p>
<a href="/">Home</a>
</body>
</html>`))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		rules := s.robotsRules()
		if rules == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(rules))
	})

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

// setAnnouncement swaps the front page announcement.
func (s *testSite) setAnnouncement(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcement = text
}

func (s *testSite) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announcement
}

// setRobots makes the site serve the given robots.txt body.
func (s *testSite) setRobots(rules string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.robots = rules
}

func (s *testSite) robotsRules() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.robots
}

// testCrawlConfig builds a crawl config suited to the test site: short
// politeness delay, modest budgets, and a JSON report written to a file.
func testCrawlConfig(dbDir, reportFile string, seeds ...string) *config.Config {
	cfg := config.NewConfig()
	cfg.Seeds = seeds
	cfg.DBDir = dbDir
	cfg.MaxDepth = 2
	cfg.MaxPages = 20
	cfg.MaxConcurrent = 2
	cfg.Delay = 10 * time.Millisecond
	cfg.Timeout = 10 * time.Second
	cfg.BatchSize = 1
	cfg.MinChangePercent = 1.0
	cfg.JSONReport = true
	cfg.ReportFile = reportFile
	return cfg
}

// canonicalSeed canonicalizes a raw URL the way the crawl does.
func canonicalSeed(t *testing.T, rawURL string) string {
	t.Helper()
	canonical, err := crawler.Canonicalize(rawURL, false)
	if err != nil {
		t.Fatalf("failed to canonicalize %s: %v", rawURL, err)
	}
	return canonical
}

// readJSONReport reads and decodes a single-document JSON report file.
func readJSONReport(t *testing.T, path string) *report.JSONReport {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // Test-owned path
	if err != nil {
		t.Fatalf("failed to read report %s: %v", path, err)
	}

	var rep report.JSONReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	if rep.Result == nil {
		t.Fatal("expected result in report")
	}
	return &rep
}

// hasURLWithPath reports whether any URL in urls ends with path.
func hasURLWithPath(urls []string, path string) bool {
	for _, u := range urls {
		if strings.HasSuffix(u, path) {
			return true
		}
	}
	return false
}

// TestIntegrationCrawlWithCache crawls the test site cold, then verifies
// the report, the cached snapshots, and the recorded run history.
func TestIntegrationCrawlWithCache(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	ctx := context.Background()
	site := startTestSite(t)

	tmpDir := t.TempDir()
	dbDir := filepath.Join(tmpDir, "db")
	reportPath := filepath.Join(tmpDir, "report.json")

	cfg := testCrawlConfig(dbDir, reportPath, site.server.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := runCrawl(ctx, cfg, logger); err != nil {
		t.Fatalf("runCrawl() error = %v", err)
	}

	rep := readJSONReport(t, reportPath)
	stats := rep.Result.Stats

	if stats.Pages < 3 {
		t.Errorf("expected at least 3 pages, got %d", stats.Pages)
	}
	if stats.Fetched == 0 {
		t.Error("expected live fetches on a cold cache")
	}
	if stats.CacheHits != 0 {
		t.Errorf("expected no cache hits on a cold cache, got %d", stats.CacheHits)
	}
	if stats.RunID == "" {
		t.Error("expected the run to be recorded in history")
	}

	urls := rep.Result.Graph.Root.URLs(-1)
	if !hasURLWithPath(urls, "/about") {
		t.Errorf("expected /about in the graph, got %v", urls)
	}
	if !hasURLWithPath(urls, "/contact") {
		t.Errorf("expected /contact in the graph, got %v", urls)
	}

	// The database must hold the seed's snapshot and the run record
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		t.Fatalf("failed to open database after crawl: %v", err)
	}
	defer db.Close()

	seed := canonicalSeed(t, site.server.URL)
	entry, err := db.Get(ctx, seed)
	if err != nil {
		t.Fatalf("failed to read cache: %v", err)
	}
	if entry == nil {
		t.Error("expected the seed page to be cached")
	}

	runs, err := db.ListCrawlRuns(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list crawl runs: %v", err)
	}
	if len(runs) == 0 {
		t.Fatal("expected at least one recorded run")
	}
	if runs[0].Seed != seed {
		t.Errorf("expected run seed %q, got %q", seed, runs[0].Seed)
	}
	if runs[0].ID != stats.RunID {
		t.Errorf("expected run ID %q, got %q", stats.RunID, runs[0].ID)
	}
	if runs[0].Pages != stats.Pages {
		t.Errorf("expected %d pages in run record, got %d", stats.Pages, runs[0].Pages)
	}
}

// TestIntegrationRecrawlServesFromCache crawls twice and verifies the
// second crawl is answered entirely from the cache, links included.
func TestIntegrationRecrawlServesFromCache(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	ctx := context.Background()
	site := startTestSite(t)

	tmpDir := t.TempDir()
	dbDir := filepath.Join(tmpDir, "db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := testCrawlConfig(dbDir, filepath.Join(tmpDir, "first.json"), site.server.URL)
	if err := runCrawl(ctx, first, logger); err != nil {
		t.Fatalf("first runCrawl() error = %v", err)
	}

	secondPath := filepath.Join(tmpDir, "second.json")
	second := testCrawlConfig(dbDir, secondPath, site.server.URL)
	if err := runCrawl(ctx, second, logger); err != nil {
		t.Fatalf("second runCrawl() error = %v", err)
	}

	rep := readJSONReport(t, secondPath)
	stats := rep.Result.Stats

	if stats.Pages < 3 {
		t.Errorf("expected the cached crawl to cover the site, got %d pages", stats.Pages)
	}
	if stats.Fetched != 0 {
		t.Errorf("expected no live fetches on a warm cache, got %d", stats.Fetched)
	}
	if stats.CacheHits != stats.Pages {
		t.Errorf("expected all %d pages from cache, got %d hits", stats.Pages, stats.CacheHits)
	}
	if !rep.Result.Graph.Root.FromCache {
		t.Error("expected the root node to be marked from_cache")
	}
}

// TestIntegrationRecrawlDetectsChanges edits the site between crawls and
// verifies the change is detected against the cached snapshot.
func TestIntegrationRecrawlDetectsChanges(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	ctx := context.Background()
	site := startTestSite(t)

	tmpDir := t.TempDir()
	dbDir := filepath.Join(tmpDir, "db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := testCrawlConfig(dbDir, filepath.Join(tmpDir, "first.json"), site.server.URL)
	if err := runCrawl(ctx, first, logger); err != nil {
		t.Fatalf("first runCrawl() error = %v", err)
	}

	site.setAnnouncement("Closing down sale, everything must go.")

	// write_only always fetches live but still diffs against the
	// previous snapshot before overwriting it
	secondPath := filepath.Join(tmpDir, "second.json")
	second := testCrawlConfig(dbDir, secondPath, site.server.URL)
	second.CacheMode = "write_only"
	if err := runCrawl(ctx, second, logger); err != nil {
		t.Fatalf("second runCrawl() error = %v", err)
	}

	rep := readJSONReport(t, secondPath)
	stats := rep.Result.Stats

	if stats.CacheHits != 0 {
		t.Errorf("expected write_only to fetch live, got %d cache hits", stats.CacheHits)
	}
	if stats.Changed != 1 {
		t.Errorf("expected exactly the front page to change, got %d", stats.Changed)
	}

	root := rep.Result.Graph.Root
	if !root.Changed {
		t.Error("expected the front page to be marked changed")
	}

	var about *model.LinkNode
	root.Walk(func(n *model.LinkNode) bool {
		if strings.HasSuffix(n.URL, "/about") {
			about = n
		}
		return true
	})
	if about == nil {
		t.Fatal("expected /about in the graph")
	}
	if about.Changed {
		t.Error("expected the unchanged about page to stay unmarked")
	}
}

// TestIntegrationBatchCrawl crawls two seeds concurrently and verifies
// each produced its own report document and run record.
func TestIntegrationBatchCrawl(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	ctx := context.Background()
	site := startTestSite(t)

	tmpDir := t.TempDir()
	dbDir := filepath.Join(tmpDir, "db")
	reportPath := filepath.Join(tmpDir, "batch.json")

	seeds := []string{site.server.URL + "/", site.server.URL + "/about"}
	cfg := testCrawlConfig(dbDir, reportPath, seeds...)
	cfg.BatchSize = 2
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := runCrawl(ctx, cfg, logger); err != nil {
		t.Fatalf("runCrawl() error = %v", err)
	}

	// The report file carries one JSON document per seed
	f, err := os.Open(reportPath) //nolint:gosec // Test-owned path
	if err != nil {
		t.Fatalf("failed to open report: %v", err)
	}
	defer f.Close()

	decoder := json.NewDecoder(f)
	documents := 0
	for {
		var rep report.JSONReport
		if err := decoder.Decode(&rep); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("failed to decode report document %d: %v", documents+1, err)
		}
		if rep.Result == nil {
			t.Errorf("expected result in report document %d", documents+1)
		}
		documents++
	}
	if documents != 2 {
		t.Errorf("expected 2 report documents, got %d", documents)
	}

	// Both seeds must appear in the run history
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		t.Fatalf("failed to open database after crawl: %v", err)
	}
	defer db.Close()

	runs, err := db.ListCrawlRuns(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list crawl runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}

	recorded := map[string]bool{}
	for _, run := range runs {
		recorded[run.Seed] = true
	}
	for _, seed := range seeds {
		if !recorded[canonicalSeed(t, seed)] {
			t.Errorf("expected run record for seed %s", seed)
		}
	}
}

// TestIntegrationCrawlWithoutDatabase points the database at an unusable
// path and verifies the crawl degrades to live fetches instead of failing.
func TestIntegrationCrawlWithoutDatabase(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	ctx := context.Background()
	site := startTestSite(t)

	tmpDir := t.TempDir()
	// A regular file where the database directory should be
	dbDir := filepath.Join(tmpDir, "not-a-dir")
	if err := os.WriteFile(dbDir, []byte("occupied"), 0o600); err != nil {
		t.Fatalf("failed to create blocking file: %v", err)
	}
	reportPath := filepath.Join(tmpDir, "report.json")

	cfg := testCrawlConfig(dbDir, reportPath, site.server.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := runCrawl(ctx, cfg, logger); err != nil {
		t.Fatalf("expected crawl to degrade without a database, got %v", err)
	}

	rep := readJSONReport(t, reportPath)
	stats := rep.Result.Stats

	if stats.Pages < 3 {
		t.Errorf("expected at least 3 pages, got %d", stats.Pages)
	}
	if stats.CacheHits != 0 {
		t.Errorf("expected no cache hits without a database, got %d", stats.CacheHits)
	}
	if stats.RunID != "" {
		t.Errorf("expected no run record without a database, got %q", stats.RunID)
	}
}

// TestIntegrationRobotsCompliance serves a robots.txt that disallows one
// page and verifies the crawl honors it.
func TestIntegrationRobotsCompliance(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	ctx := context.Background()
	site := startTestSite(t)
	site.setRobots("User-agent: *\nDisallow: /contact\n")

	tmpDir := t.TempDir()
	dbDir := filepath.Join(tmpDir, "db")
	reportPath := filepath.Join(tmpDir, "report.json")

	cfg := testCrawlConfig(dbDir, reportPath, site.server.URL)
	cfg.CheckRobots = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := runCrawl(ctx, cfg, logger); err != nil {
		t.Fatalf("runCrawl() error = %v", err)
	}

	rep := readJSONReport(t, reportPath)
	stats := rep.Result.Stats

	if stats.RobotsBlocked == 0 {
		t.Error("expected the disallowed page to be counted as robots-blocked")
	}

	urls := rep.Result.Graph.Root.URLs(-1)
	if hasURLWithPath(urls, "/contact") {
		t.Errorf("expected /contact to be excluded by robots.txt, got %v", urls)
	}
	if !hasURLWithPath(urls, "/about") {
		t.Errorf("expected /about to be crawled, got %v", urls)
	}
}
