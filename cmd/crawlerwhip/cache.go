package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/data-tamer/crawlerWhipAI/internal/config"
	"github.com/data-tamer/crawlerWhipAI/internal/database"
	"github.com/data-tamer/crawlerWhipAI/internal/log"
	"github.com/spf13/cobra"
)

// recentRunsShown caps the crawl-run history in the stats output.
const recentRunsShown = 10

// NewCacheCmd creates the cache command with its maintenance subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the page cache",
		Long: `Cache inspects and maintains the local SQLite page cache.

The cache stores one snapshot per page plus robots.txt rule sets and
the crawl-run history. Stats summarizes the stored data, cleanup removes
entries past their TTL, and clear drops every page snapshot while
keeping robots rules and run history.`,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Cache database directory")

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheCleanupCmd())
	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics and recent crawl runs",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	}
}

func newCacheCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove cache entries and robots rules past their TTL",
		Args:  cobra.NoArgs,
		RunE:  runCacheCleanup,
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached page snapshots",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	}
}

// openCacheDB opens the cache database at the directory the --db-dir
// flag points at.
func openCacheDB(cmd *cobra.Command) (*database.CacheDB, error) {
	dbDir, err := getDBDirFlag(cmd)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	return db, nil
}

// getDBDirFlag retrieves the db-dir flag from the command or its parent.
func getDBDirFlag(cmd *cobra.Command) (string, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err == nil {
		return dbDir, nil
	}
	if cmd.Parent() != nil {
		return cmd.Parent().PersistentFlags().GetString("db-dir")
	}
	return "", err
}

// runCacheStats prints cache statistics and the recent crawl history.
func runCacheStats(cmd *cobra.Command, _ []string) error {
	logger := log.NewLogger(os.Stderr, getVerboseFlag(cmd))
	slog.SetDefault(logger)

	db, err := openCacheDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	stats, err := db.Stats(ctx)
	if err != nil {
		return err
	}
	runs, err := db.ListCrawlRuns(ctx, recentRunsShown)
	if err != nil {
		return err
	}

	return outputCacheStats(cmd.OutOrStdout(), stats, runs)
}

// runCacheCleanup removes expired cache entries and robots rules.
func runCacheCleanup(cmd *cobra.Command, _ []string) error {
	logger := log.NewLogger(os.Stderr, getVerboseFlag(cmd))
	slog.SetDefault(logger)

	db, err := openCacheDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.CleanupExpired(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries.\n", removed)
	return nil
}

// runCacheClear removes every cached page snapshot.
func runCacheClear(cmd *cobra.Command, _ []string) error {
	logger := log.NewLogger(os.Stderr, getVerboseFlag(cmd))
	slog.SetDefault(logger)

	db, err := openCacheDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.Clear(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries.\n", removed)
	return nil
}

// outputCacheStats renders the stats summary and recent-runs table.
func outputCacheStats(w io.Writer, stats *database.CacheStats, runs []database.CrawlRun) error {
	fmt.Fprintln(w, "Cache Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	if stats.Entries == 0 {
		fmt.Fprintln(w, "Cache is empty.")
	} else {
		fmt.Fprintf(w, "Entries:      %d (%d expired)\n", stats.Entries, stats.Expired)
		fmt.Fprintf(w, "Content size: %s\n", formatBytes(stats.ContentBytes))
		fmt.Fprintf(w, "Oldest entry: %s\n", stats.OldestCreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Newest entry: %s\n", stats.NewestCreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Recent Crawls")
	fmt.Fprintln(w, "-------------")

	if len(runs) == 0 {
		fmt.Fprintln(w, "(none)")
		return nil
	}

	fmt.Fprintf(w, "%-20s  %-40s  %-10s  %6s  %8s  %10s\n",
		"STARTED", "SEED", "STRATEGY", "PAGES", "FAILURES", "DURATION")
	for _, run := range runs {
		fmt.Fprintf(w, "%-20s  %-40s  %-10s  %6d  %8d  %10s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			truncateSeed(run.Seed, 40),
			run.Strategy,
			run.Pages,
			run.Failures,
			run.Duration.Round(time.Millisecond),
		)
	}

	return nil
}

// truncateSeed shortens a seed URL to fit the table column.
func truncateSeed(seed string, max int) string {
	if len(seed) <= max {
		return seed
	}
	if max <= 3 {
		return seed[:max]
	}
	return seed[:max-3] + "..."
}

// formatBytes renders a byte count in a human-readable unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
