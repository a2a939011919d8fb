package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/data-tamer/crawlerWhipAI/internal/model"
)

// CacheDB provides SQLite-based storage for the page cache, robots.txt
// rule sets, and crawl-run history.
//
// Design decision: We use a single database file for all three tables
// rather than one file per concern. This keeps cache maintenance (cleanup,
// stats, clear) a single-file operation and simplifies backup/restore.
type CacheDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CacheDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CacheDB at the specified path.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CacheDB, error) {
	dbPath := filepath.Join(dbDir, "crawlerwhip.db")

	// Check if we should create the database or require it to exist
	if !opts.CreateIfNotExists {
		// Check if database file exists
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string
	// We use modernc.org/sqlite which uses a different connection string format.
	// When CreateIfNotExists is false, we use mode=rw to prevent creating new files.
	// When CreateIfNotExists is true, we use mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	// SQLite supports one writer at a time; funneling everything through a
	// single connection makes concurrent worker writes last-write-wins
	// without busy-retry loops
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CacheDB{
		db:     db,
		dbPath: dbPath,
	}

	// Enable WAL mode if requested
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Create tables
	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CacheDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CacheDB) createTables() error {
	schema := `
	-- Cache entries store fetched page content keyed by canonical URL
	CREATE TABLE IF NOT EXISTS cache (
		url TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		accessed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ttl_seconds INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_created ON cache(created_at);

	-- Robots rule sets are cached per domain with their own TTL
	CREATE TABLE IF NOT EXISTS robots (
		domain TEXT PRIMARY KEY,
		rules TEXT NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ttl_seconds INTEGER NOT NULL
	);

	-- Crawl runs record one row per completed crawl for history inspection
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		strategy TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		failures INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON crawl_runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// CacheEntry represents a stored page snapshot.
type CacheEntry struct {
	// URL is the canonical URL the entry is keyed by.
	URL string

	// ContentHash is the SHA-256 hex digest of the stored content.
	ContentHash string

	// Content is the stored page content.
	Content string

	// Metadata holds extraction results (title, status, content type)
	// captured when the entry was written.
	Metadata map[string]string

	// CreatedAt is when the entry was last written.
	CreatedAt time.Time

	// AccessedAt is when the entry was last read through Get.
	AccessedAt time.Time

	// TTL is how long after CreatedAt the entry stays fresh.
	TTL time.Duration
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Set inserts or replaces the cache entry for a canonical URL.
// Concurrent writers for the same URL resolve last-write-wins: the row
// always reflects exactly one complete write.
func (cdb *CacheDB) Set(ctx context.Context, url, content string, metadata map[string]string, ttl time.Duration) error {
	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize metadata: %w", err)
		}
	}

	query := `
	INSERT INTO cache (url, content_hash, content, metadata, ttl_seconds, created_at, accessed_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(url) DO UPDATE SET
		content_hash = excluded.content_hash,
		content = excluded.content,
		metadata = excluded.metadata,
		ttl_seconds = excluded.ttl_seconds,
		created_at = CURRENT_TIMESTAMP,
		accessed_at = CURRENT_TIMESTAMP
	`

	_, err := cdb.db.ExecContext(ctx, query,
		url,
		model.HashContent(content),
		content,
		string(metadataJSON),
		int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// Get retrieves the cache entry for a canonical URL and bumps its access
// time. Expired entries are reported as a miss (nil, nil) but kept on disk
// so a later write can still be diffed against them; CleanupExpired removes
// them for good.
func (cdb *CacheDB) Get(ctx context.Context, url string) (*CacheEntry, error) {
	entry, err := cdb.GetStale(ctx, url)
	if err != nil || entry == nil {
		return nil, err
	}

	if entry.Expired(time.Now()) {
		return nil, nil
	}

	if _, err := cdb.db.ExecContext(ctx, "UPDATE cache SET accessed_at = CURRENT_TIMESTAMP WHERE url = ?", url); err != nil {
		return nil, fmt.Errorf("failed to update access time: %w", err)
	}

	return entry, nil
}

// GetStale retrieves the cache entry for a canonical URL regardless of TTL.
// This is used to fetch the previous snapshot for change detection before
// a fresh write replaces it. Returns (nil, nil) when no row exists.
func (cdb *CacheDB) GetStale(ctx context.Context, url string) (*CacheEntry, error) {
	query := `
	SELECT url, content_hash, content, metadata, created_at, accessed_at, ttl_seconds
	FROM cache
	WHERE url = ?
	`

	var entry CacheEntry
	var metadataJSON sql.NullString
	var createdAt, accessedAt string
	var ttlSeconds int64

	err := cdb.db.QueryRowContext(ctx, query, url).Scan(
		&entry.URL,
		&entry.ContentHash,
		&entry.Content,
		&metadataJSON,
		&createdAt,
		&accessedAt,
		&ttlSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	// Parse timestamps (SQLite may return different formats depending on version/configuration)
	entry.CreatedAt = parseTimestamp(createdAt)
	entry.AccessedAt = parseTimestamp(accessedAt)
	entry.TTL = time.Duration(ttlSeconds) * time.Second

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}

	return &entry, nil
}

// Delete removes the cache entry for a canonical URL.
// Deleting a URL that has no entry is not an error.
func (cdb *CacheDB) Delete(ctx context.Context, url string) error {
	if _, err := cdb.db.ExecContext(ctx, "DELETE FROM cache WHERE url = ?", url); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// CleanupExpired removes cache entries and robots rule sets past their TTL
// and returns the number of rows removed. Safe to run while a crawl is
// reading and writing the same tables.
func (cdb *CacheDB) CleanupExpired(ctx context.Context) (int64, error) {
	var total int64

	result, err := cdb.db.ExecContext(ctx,
		"DELETE FROM cache WHERE datetime(created_at, ttl_seconds || ' seconds') <= datetime('now')")
	if err != nil {
		return 0, fmt.Errorf("failed to clean up cache entries: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		total += n
	}

	result, err = cdb.db.ExecContext(ctx,
		"DELETE FROM robots WHERE datetime(fetched_at, ttl_seconds || ' seconds') <= datetime('now')")
	if err != nil {
		return total, fmt.Errorf("failed to clean up robots entries: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// Clear removes every cache entry and returns how many were removed.
// Robots rule sets and crawl-run history are not touched.
func (cdb *CacheDB) Clear(ctx context.Context) (int64, error) {
	result, err := cdb.db.ExecContext(ctx, "DELETE FROM cache")
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return result.RowsAffected()
}

// CacheStats summarizes the cache table for maintenance commands.
type CacheStats struct {
	// Entries is the number of stored rows, fresh or expired.
	Entries int64

	// Expired is the number of stored rows past their TTL.
	Expired int64

	// ContentBytes is the total size of all stored content.
	ContentBytes int64

	// OldestCreatedAt is the write time of the oldest stored entry.
	OldestCreatedAt time.Time

	// NewestCreatedAt is the write time of the newest stored entry.
	NewestCreatedAt time.Time
}

// Stats reports cache table statistics.
func (cdb *CacheDB) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	var oldest, newest sql.NullString
	err := cdb.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0), MIN(created_at), MAX(created_at)
	FROM cache
	`).Scan(&stats.Entries, &stats.ContentBytes, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}

	if oldest.Valid {
		stats.OldestCreatedAt = parseTimestamp(oldest.String)
	}
	if newest.Valid {
		stats.NewestCreatedAt = parseTimestamp(newest.String)
	}

	err = cdb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM cache
	WHERE datetime(created_at, ttl_seconds || ' seconds') <= datetime('now')
	`).Scan(&stats.Expired)
	if err != nil {
		return nil, fmt.Errorf("failed to count expired entries: %w", err)
	}

	return stats, nil
}

// RobotsRecord is a cached robots.txt rule set for one domain.
// The rules payload is opaque to this package; the robots package owns
// its serialization format.
type RobotsRecord struct {
	// Domain is the host the rules were fetched from.
	Domain string

	// Rules is the serialized rule set.
	Rules string

	// FetchedAt is when the rules were fetched.
	FetchedAt time.Time

	// TTL is how long after FetchedAt the rules stay fresh.
	TTL time.Duration
}

// SaveRobots inserts or replaces the cached robots rule set for a domain.
func (cdb *CacheDB) SaveRobots(ctx context.Context, domain, rules string, ttl time.Duration) error {
	query := `
	INSERT INTO robots (domain, rules, ttl_seconds, fetched_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(domain) DO UPDATE SET
		rules = excluded.rules,
		ttl_seconds = excluded.ttl_seconds,
		fetched_at = CURRENT_TIMESTAMP
	`

	if _, err := cdb.db.ExecContext(ctx, query, domain, rules, int64(ttl.Seconds())); err != nil {
		return fmt.Errorf("failed to save robots rules: %w", err)
	}
	return nil
}

// GetRobots retrieves the cached robots rule set for a domain.
// Expired rule sets are reported as a miss (nil, nil).
func (cdb *CacheDB) GetRobots(ctx context.Context, domain string) (*RobotsRecord, error) {
	query := `
	SELECT domain, rules, fetched_at, ttl_seconds
	FROM robots
	WHERE domain = ?
	`

	var record RobotsRecord
	var fetchedAt string
	var ttlSeconds int64

	err := cdb.db.QueryRowContext(ctx, query, domain).Scan(
		&record.Domain,
		&record.Rules,
		&fetchedAt,
		&ttlSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get robots rules: %w", err)
	}

	record.FetchedAt = parseTimestamp(fetchedAt)
	record.TTL = time.Duration(ttlSeconds) * time.Second

	if time.Now().After(record.FetchedAt.Add(record.TTL)) {
		return nil, nil
	}

	return &record, nil
}

// CrawlRun records one completed crawl.
type CrawlRun struct {
	// ID is the run's unique identifier. Assigned on record if empty.
	ID string

	// Seed is the URL the crawl started from.
	Seed string

	// Strategy is the frontier ordering used ("bfs", "dfs", "best_first").
	Strategy string

	// StartedAt is when the crawl began.
	StartedAt time.Time

	// Duration is how long the crawl took.
	Duration time.Duration

	// Pages is the number of nodes recorded, including failures.
	Pages int

	// Failures is the number of nodes recorded with an error.
	Failures int
}

// RecordCrawlRun stores a completed crawl in the run history and returns
// the run's ID.
func (cdb *CacheDB) RecordCrawlRun(ctx context.Context, run *CrawlRun) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
	INSERT INTO crawl_runs (id, seed, strategy, started_at, duration_ms, pages, failures)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := cdb.db.ExecContext(ctx, query,
		id,
		run.Seed,
		run.Strategy,
		run.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		run.Duration.Milliseconds(),
		run.Pages,
		run.Failures,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record crawl run: %w", err)
	}

	return id, nil
}

// ListCrawlRuns returns the most recent crawl runs, newest first.
// A non-positive limit returns all runs.
func (cdb *CacheDB) ListCrawlRuns(ctx context.Context, limit int) ([]CrawlRun, error) {
	query := `
	SELECT id, seed, strategy, started_at, duration_ms, pages, failures
	FROM crawl_runs
	ORDER BY started_at DESC, id
	`
	args := make([]interface{}, 0, 1)

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		var run CrawlRun
		var startedAt string
		var durationMS int64

		err := rows.Scan(
			&run.ID,
			&run.Seed,
			&run.Strategy,
			&startedAt,
			&durationMS,
			&run.Pages,
			&run.Failures,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl run: %w", err)
		}

		run.StartedAt = parseTimestamp(startedAt)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	// Return zero time if no format matches
	// This is a fallback to avoid breaking functionality for edge cases
	return time.Time{}
}
