package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/data-tamer/crawlerWhipAI/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CacheDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		tmpDir := t.TempDir()

		dbDir := filepath.Join(tmpDir, "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		// Check that database file exists
		dbPath := filepath.Join(dbDir, "crawlerwhip.db")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		tmpDir := t.TempDir()
		dbDir := filepath.Join(tmpDir, "nonexistent-db")

		opts := Options{
			CreateIfNotExists: false,
			EnableWAL:         true,
		}

		_, err := Open(dbDir, opts)
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}

		// Verify error message is informative
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected error to contain %q, got %q", "database not found", err.Error())
		}

		// Verify database directory was NOT created
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		tmpDir := t.TempDir()
		dbDir := filepath.Join(tmpDir, "existing-db")

		// First create the database and write an entry
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}

		ctx := context.Background()
		if err := db1.Set(ctx, "https://example.com/", "<html></html>", nil, time.Hour); err != nil {
			t.Fatalf("failed to write entry: %v", err)
		}
		db1.Close()

		// Now open with CreateIfNotExists=false
		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		// Verify data persists
		entry, err := db2.Get(ctx, "https://example.com/")
		if err != nil {
			t.Fatalf("failed to get entry: %v", err)
		}
		if entry == nil {
			t.Fatal("expected entry to persist across reopen")
		}
		if entry.Content != "<html></html>" {
			t.Errorf("unexpected content: %q", entry.Content)
		}
	})
}

// TestCacheSetGet tests cache entry round-trips and TTL semantics.
func TestCacheSetGet(t *testing.T) {
	t.Parallel()

	t.Run("round-trips content and metadata", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		metadata := map[string]string{
			"title":       "Example Domain",
			"status_code": "200",
		}
		if err := db.Set(ctx, "https://example.com/", "<html>hello</html>", metadata, time.Hour); err != nil {
			t.Fatalf("failed to set entry: %v", err)
		}

		entry, err := db.Get(ctx, "https://example.com/")
		if err != nil {
			t.Fatalf("failed to get entry: %v", err)
		}
		if entry == nil {
			t.Fatal("expected cache hit")
		}

		if entry.Content != "<html>hello</html>" {
			t.Errorf("unexpected content: %q", entry.Content)
		}
		if entry.ContentHash != model.HashContent("<html>hello</html>") {
			t.Errorf("unexpected content hash: %q", entry.ContentHash)
		}
		if entry.Metadata["title"] != "Example Domain" {
			t.Errorf("unexpected metadata: %v", entry.Metadata)
		}
		if entry.TTL != time.Hour {
			t.Errorf("expected TTL 1h, got %v", entry.TTL)
		}
		if entry.CreatedAt.IsZero() {
			t.Error("expected non-zero created time")
		}
	})

	t.Run("missing URL is a miss", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)

		entry, err := db.Get(context.Background(), "https://example.com/never-stored")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry != nil {
			t.Errorf("expected miss, got %+v", entry)
		}
	})

	t.Run("expired entry is a miss but stays readable via GetStale", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		// Negative TTL makes the entry expired as soon as it is written
		if err := db.Set(ctx, "https://example.com/old", "stale content", nil, -time.Second); err != nil {
			t.Fatalf("failed to set entry: %v", err)
		}

		entry, err := db.Get(ctx, "https://example.com/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry != nil {
			t.Errorf("expected expired entry to be a miss, got %+v", entry)
		}

		stale, err := db.GetStale(ctx, "https://example.com/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stale == nil {
			t.Fatal("expected expired entry to remain readable via GetStale")
		}
		if stale.Content != "stale content" {
			t.Errorf("unexpected stale content: %q", stale.Content)
		}
	})

	t.Run("second write wins", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		if err := db.Set(ctx, "https://example.com/", "first version", nil, time.Hour); err != nil {
			t.Fatalf("failed to set entry: %v", err)
		}
		if err := db.Set(ctx, "https://example.com/", "second version", nil, time.Hour); err != nil {
			t.Fatalf("failed to overwrite entry: %v", err)
		}

		entry, err := db.Get(ctx, "https://example.com/")
		if err != nil {
			t.Fatalf("failed to get entry: %v", err)
		}
		if entry == nil {
			t.Fatal("expected cache hit")
		}
		if entry.Content != "second version" {
			t.Errorf("expected last write to win, got %q", entry.Content)
		}

		// Still exactly one row for the URL
		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Entries != 1 {
			t.Errorf("expected 1 entry after overwrite, got %d", stats.Entries)
		}
	})

	t.Run("concurrent writers leave one consistent row", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		done := make(chan error, 2)
		for i := 0; i < 2; i++ {
			content := "writer A content"
			if i == 1 {
				content = "writer B content"
			}
			go func(content string) {
				done <- db.Set(ctx, "https://example.com/race", content, nil, time.Hour)
			}(content)
		}
		for i := 0; i < 2; i++ {
			if err := <-done; err != nil {
				t.Fatalf("concurrent set failed: %v", err)
			}
		}

		entry, err := db.Get(ctx, "https://example.com/race")
		if err != nil {
			t.Fatalf("failed to get entry: %v", err)
		}
		if entry == nil {
			t.Fatal("expected cache hit")
		}
		if entry.Content != "writer A content" && entry.Content != "writer B content" {
			t.Errorf("expected one complete write, got %q", entry.Content)
		}
		if entry.ContentHash != model.HashContent(entry.Content) {
			t.Error("content and hash do not match: partial write visible")
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Entries != 1 {
			t.Errorf("expected exactly 1 entry, got %d", stats.Entries)
		}
	})
}

// TestCacheDelete tests entry removal.
func TestCacheDelete(t *testing.T) {
	t.Parallel()

	t.Run("removes stored entry", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		if err := db.Set(ctx, "https://example.com/", "content", nil, time.Hour); err != nil {
			t.Fatalf("failed to set entry: %v", err)
		}
		if err := db.Delete(ctx, "https://example.com/"); err != nil {
			t.Fatalf("failed to delete entry: %v", err)
		}

		entry, err := db.GetStale(ctx, "https://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry != nil {
			t.Error("expected entry to be gone after delete")
		}
	})

	t.Run("deleting absent URL is not an error", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)

		if err := db.Delete(context.Background(), "https://example.com/absent"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// TestCleanupExpired tests eager removal of stale rows.
func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, "https://example.com/fresh", "fresh", nil, time.Hour); err != nil {
		t.Fatalf("failed to set entry: %v", err)
	}
	if err := db.Set(ctx, "https://example.com/stale", "stale", nil, -time.Second); err != nil {
		t.Fatalf("failed to set entry: %v", err)
	}
	if err := db.SaveRobots(ctx, "stale.example.com", `{"rules":[]}`, -time.Second); err != nil {
		t.Fatalf("failed to save robots: %v", err)
	}

	removed, err := db.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 rows removed (1 cache, 1 robots), got %d", removed)
	}

	// Fresh entry survives
	entry, err := db.Get(ctx, "https://example.com/fresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry == nil {
		t.Error("expected fresh entry to survive cleanup")
	}

	// Stale entry is gone even for GetStale
	stale, err := db.GetStale(ctx, "https://example.com/stale")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stale != nil {
		t.Error("expected stale entry to be removed by cleanup")
	}
}

// TestClear tests removing all cache entries.
func TestClear(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for _, url := range []string{"https://a.example.com/", "https://b.example.com/", "https://c.example.com/"} {
		if err := db.Set(ctx, url, "content", nil, time.Hour); err != nil {
			t.Fatalf("failed to set entry: %v", err)
		}
	}
	if err := db.SaveRobots(ctx, "a.example.com", `{"rules":[]}`, time.Hour); err != nil {
		t.Fatalf("failed to save robots: %v", err)
	}

	removed, err := db.Clear(ctx)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 entries removed, got %d", removed)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("expected empty cache, got %d entries", stats.Entries)
	}

	// Robots rules are not touched by Clear
	robots, err := db.GetRobots(ctx, "a.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if robots == nil {
		t.Error("expected robots rules to survive cache clear")
	}
}

// TestStats tests cache statistics.
func TestStats(t *testing.T) {
	t.Parallel()

	t.Run("empty cache", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)

		stats, err := db.Stats(context.Background())
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Entries != 0 {
			t.Errorf("expected 0 entries, got %d", stats.Entries)
		}
		if stats.ContentBytes != 0 {
			t.Errorf("expected 0 bytes, got %d", stats.ContentBytes)
		}
		if !stats.OldestCreatedAt.IsZero() {
			t.Errorf("expected zero oldest time, got %v", stats.OldestCreatedAt)
		}
	})

	t.Run("counts entries and expired rows", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		if err := db.Set(ctx, "https://example.com/a", "aaaa", nil, time.Hour); err != nil {
			t.Fatalf("failed to set entry: %v", err)
		}
		if err := db.Set(ctx, "https://example.com/b", "bbbbbbbb", nil, -time.Second); err != nil {
			t.Fatalf("failed to set entry: %v", err)
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Entries != 2 {
			t.Errorf("expected 2 entries, got %d", stats.Entries)
		}
		if stats.Expired != 1 {
			t.Errorf("expected 1 expired entry, got %d", stats.Expired)
		}
		if stats.ContentBytes != 12 {
			t.Errorf("expected 12 content bytes, got %d", stats.ContentBytes)
		}
		if stats.OldestCreatedAt.IsZero() || stats.NewestCreatedAt.IsZero() {
			t.Error("expected non-zero created time bounds")
		}
	})
}

// TestRobots tests robots rule set persistence.
func TestRobots(t *testing.T) {
	t.Parallel()

	t.Run("round-trips rules", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		rules := `{"domain":"example.com","rules":[{"agent":"*","path":"/private","allow":false}]}`
		if err := db.SaveRobots(ctx, "example.com", rules, time.Hour); err != nil {
			t.Fatalf("failed to save robots: %v", err)
		}

		record, err := db.GetRobots(ctx, "example.com")
		if err != nil {
			t.Fatalf("failed to get robots: %v", err)
		}
		if record == nil {
			t.Fatal("expected robots hit")
		}
		if record.Rules != rules {
			t.Errorf("unexpected rules: %q", record.Rules)
		}
		if record.TTL != time.Hour {
			t.Errorf("expected TTL 1h, got %v", record.TTL)
		}
	})

	t.Run("missing domain is a miss", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)

		record, err := db.GetRobots(context.Background(), "never-seen.example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record != nil {
			t.Errorf("expected miss, got %+v", record)
		}
	})

	t.Run("expired rules are a miss", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		if err := db.SaveRobots(ctx, "example.com", `{"rules":[]}`, -time.Second); err != nil {
			t.Fatalf("failed to save robots: %v", err)
		}

		record, err := db.GetRobots(ctx, "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record != nil {
			t.Errorf("expected expired rules to be a miss, got %+v", record)
		}
	})

	t.Run("save replaces previous rules", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		if err := db.SaveRobots(ctx, "example.com", `{"version":1}`, time.Hour); err != nil {
			t.Fatalf("failed to save robots: %v", err)
		}
		if err := db.SaveRobots(ctx, "example.com", `{"version":2}`, time.Hour); err != nil {
			t.Fatalf("failed to save robots: %v", err)
		}

		record, err := db.GetRobots(ctx, "example.com")
		if err != nil {
			t.Fatalf("failed to get robots: %v", err)
		}
		if record == nil {
			t.Fatal("expected robots hit")
		}
		if record.Rules != `{"version":2}` {
			t.Errorf("expected replacement rules, got %q", record.Rules)
		}
	})
}

// TestCrawlRuns tests crawl-run history.
func TestCrawlRuns(t *testing.T) {
	t.Parallel()

	t.Run("record assigns an ID when empty", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)

		id, err := db.RecordCrawlRun(context.Background(), &CrawlRun{
			Seed:      "https://example.com",
			Strategy:  "bfs",
			StartedAt: time.Now(),
			Duration:  2 * time.Second,
			Pages:     10,
			Failures:  1,
		})
		if err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
		if id == "" {
			t.Error("expected non-empty run ID")
		}
	})

	t.Run("record keeps a provided ID", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)

		id, err := db.RecordCrawlRun(context.Background(), &CrawlRun{
			ID:        "run-fixed-id",
			Seed:      "https://example.com",
			Strategy:  "dfs",
			StartedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
		if id != "run-fixed-id" {
			t.Errorf("expected provided ID to be kept, got %q", id)
		}
	})

	t.Run("list returns newest first and honors limit", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			_, err := db.RecordCrawlRun(ctx, &CrawlRun{
				Seed:      "https://example.com",
				Strategy:  "bfs",
				StartedAt: base.Add(time.Duration(i) * time.Minute),
				Pages:     i + 1,
			})
			if err != nil {
				t.Fatalf("failed to record run: %v", err)
			}
		}

		runs, err := db.ListCrawlRuns(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].Pages != 3 || runs[1].Pages != 2 {
			t.Errorf("expected newest-first order, got pages %d, %d", runs[0].Pages, runs[1].Pages)
		}
		if !runs[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("unexpected started time: %v", runs[0].StartedAt)
		}
	})

	t.Run("non-positive limit returns all runs", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := db.RecordCrawlRun(ctx, &CrawlRun{
				Seed:      "https://example.com",
				Strategy:  "bfs",
				StartedAt: time.Now(),
			})
			if err != nil {
				t.Fatalf("failed to record run: %v", err)
			}
		}

		runs, err := db.ListCrawlRuns(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 3 {
			t.Errorf("expected 3 runs, got %d", len(runs))
		}
	})
}

// TestParseTimestamp tests timestamp parsing across SQLite formats.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "SQLite default format",
			input: "2025-03-01 12:30:45",
			want:  time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC),
		},
		{
			name:  "ISO 8601 with Z",
			input: "2025-03-01T12:30:45Z",
			want:  time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC),
		},
		{
			name:  "ISO 8601 without timezone",
			input: "2025-03-01T12:30:45",
			want:  time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC),
		},
		{
			name:  "unparseable returns zero time",
			input: "not a timestamp",
			want:  time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseTimestamp(tt.input)
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
