package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/data-tamer/crawlerWhipAI/internal/config"
	"github.com/data-tamer/crawlerWhipAI/internal/crawler"
	"github.com/data-tamer/crawlerWhipAI/internal/database"
	"github.com/data-tamer/crawlerWhipAI/internal/diff"
	"github.com/data-tamer/crawlerWhipAI/internal/log"
	"github.com/spf13/cobra"
)

// DiffResult is the outcome of a diff invocation in a serializable form.
type DiffResult struct {
	// URL is the canonical page URL (URL mode only).
	URL string `json:"url,omitempty"`

	// OldFile and NewFile are the compared paths (file mode only).
	OldFile string `json:"oldFile,omitempty"`
	NewFile string `json:"newFile,omitempty"`

	// CachedAt is when the cached snapshot was written (URL mode only).
	CachedAt string `json:"cachedAt,omitempty"`

	// Similarity is the shared fraction of both snapshots, 0.0 to 1.0.
	Similarity float64 `json:"similarity"`

	// PercentChanged is (1 - similarity) x 100.
	PercentChanged float64 `json:"percentChanged"`

	// AddedLines counts lines present only in the current snapshot.
	AddedLines int `json:"addedLines"`

	// RemovedLines counts lines present only in the previous snapshot.
	RemovedLines int `json:"removedLines"`

	// ModifiedLines counts lines rewritten in place.
	ModifiedLines int `json:"modifiedLines"`

	// Significant reports whether the change meets the threshold.
	Significant bool `json:"significant"`

	// Threshold is the significance threshold in percent.
	Threshold float64 `json:"threshold"`

	// UnifiedDiff is the rendered diff text. Empty when identical.
	UnifiedDiff string `json:"unifiedDiff,omitempty"`
}

// diffOptions carries the parsed diff command flags.
type diffOptions struct {
	dbDir            string
	timeout          time.Duration
	userAgent        string
	proxy            string
	minChange        float64
	ignoreWhitespace bool
	unified          bool
	contextLines     int
	jsonOutput       bool
}

// NewDiffCmd creates the diff command.
func NewDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <url> | diff <old-file> <new-file>",
		Short: "Show how a page changed since its cached snapshot",
		Long: `Diff compares two content snapshots line by line and reports the
similarity ratio, the added, removed, and modified line counts, and
whether the change clears the significance threshold.

With one argument, the page is fetched live and compared against the
cached snapshot from the last crawl. Both sides are normalized to
extracted text, so markup-only edits do not count as changes.

With two arguments, the files are compared verbatim, oldest first.

Examples:
  # Compare a page against its cached snapshot
  crawlerwhip diff https://example.com/pricing

  # Print the unified diff instead of the summary
  crawlerwhip diff --unified https://example.com/pricing

  # Compare two saved files with extra context
  crawlerwhip diff --unified -C 5 snapshot-old.txt snapshot-new.txt

  # Machine-readable output
  crawlerwhip diff -j https://example.com/pricing`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runDiffCmd,
	}

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Cache database directory")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for the live fetch")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header for the live fetch")
	cmd.Flags().String("proxy", "",
		"Proxy URL for the live fetch")
	cmd.Flags().Float64("min-change", config.DefaultMinChangePercent,
		"Change percentage at which the change counts as significant")
	cmd.Flags().Bool("ignore-whitespace", true,
		"Ignore leading and trailing whitespace when comparing lines")
	cmd.Flags().Bool("unified", false,
		"Print the unified diff instead of the summary")
	cmd.Flags().IntP("context", "C", diff.DefaultContextLines,
		"Unchanged lines shown around each hunk in the unified diff")
	cmd.Flags().BoolP("json", "j", false,
		"Output the result as JSON")

	return cmd
}

// runDiffCmd executes the diff command.
func runDiffCmd(cmd *cobra.Command, args []string) error {
	opts, err := buildDiffOptions(cmd)
	if err != nil {
		return err
	}

	logger := log.NewLogger(os.Stderr, getVerboseFlag(cmd))
	slog.SetDefault(logger)

	ctx := context.Background()

	var result *DiffResult
	if len(args) == 2 {
		result, err = diffFiles(opts, args[0], args[1])
	} else {
		result, err = diffAgainstCache(ctx, opts, args[0], logger)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case opts.jsonOutput:
		return outputDiffJSON(out, result)
	case opts.unified:
		return outputDiffUnified(out, result)
	default:
		return outputDiffText(out, result)
	}
}

// buildDiffOptions reads the diff command flags.
func buildDiffOptions(cmd *cobra.Command) (*diffOptions, error) {
	opts := &diffOptions{}

	var err error
	opts.dbDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	opts.timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}
	opts.userAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}
	opts.proxy, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}
	opts.minChange, err = cmd.Flags().GetFloat64("min-change")
	if err != nil {
		return nil, err
	}
	opts.ignoreWhitespace, err = cmd.Flags().GetBool("ignore-whitespace")
	if err != nil {
		return nil, err
	}
	opts.unified, err = cmd.Flags().GetBool("unified")
	if err != nil {
		return nil, err
	}
	opts.contextLines, err = cmd.Flags().GetInt("context")
	if err != nil {
		return nil, err
	}
	opts.jsonOutput, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	return opts, nil
}

// diffAgainstCache fetches the page live and compares it against the
// cached snapshot. The cache stores extracted text, so the live page is
// normalized the same way before comparison.
func diffAgainstCache(ctx context.Context, opts *diffOptions, rawURL string, logger *slog.Logger) (*DiffResult, error) {
	canonical, err := crawler.Canonicalize(rawURL, false)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	defer db.Close()

	// The stale read deliberately ignores TTL: an expired snapshot is
	// still the best baseline available.
	entry, err := db.GetStale(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("no cached snapshot for %s (crawl it first)", canonical)
	}

	client, err := crawler.NewClient(opts.timeout, opts.proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}
	fetcher := crawler.NewFetcher(client,
		crawler.WithFetcherUserAgent(opts.userAgent),
		crawler.WithFetcherLogger(logger),
	)

	body, status, err := fetcher.FetchText(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", canonical, err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("fetch of %s returned HTTP %d", canonical, status)
	}

	result, err := computeDiff(opts, crawler.ExtractText(body), entry.Content)
	if err != nil {
		return nil, err
	}
	result.URL = canonical
	result.CachedAt = entry.CreatedAt.Format(time.RFC3339)
	return result, nil
}

// diffFiles compares two files verbatim, oldest first.
func diffFiles(opts *diffOptions, oldPath, newPath string) (*DiffResult, error) {
	oldData, err := os.ReadFile(oldPath) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", oldPath, err)
	}
	newData, err := os.ReadFile(newPath) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", newPath, err)
	}

	result, err := computeDiff(opts, string(newData), string(oldData))
	if err != nil {
		return nil, err
	}
	result.OldFile = oldPath
	result.NewFile = newPath
	return result, nil
}

// computeDiff runs the detector and flattens the changes into a DiffResult.
func computeDiff(opts *diffOptions, current, previous string) (*DiffResult, error) {
	detector := diff.NewDetector(opts.ignoreWhitespace, opts.minChange)

	changes, err := detector.Detect(current, previous)
	if err != nil {
		return nil, err
	}

	unified := changes.UnifiedDiff
	if opts.contextLines != diff.DefaultContextLines {
		unified, err = detector.Unified(current, previous, opts.contextLines)
		if err != nil {
			return nil, err
		}
	}

	return &DiffResult{
		Similarity:     changes.SimilarityRatio,
		PercentChanged: changes.PercentChanged(),
		AddedLines:     len(changes.AddedLines),
		RemovedLines:   len(changes.RemovedLines),
		ModifiedLines:  len(changes.ModifiedLines),
		Significant:    detector.Significant(changes),
		Threshold:      opts.minChange,
		UnifiedDiff:    unified,
	}, nil
}

// outputDiffJSON writes the result as indented JSON.
func outputDiffJSON(w io.Writer, result *DiffResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputDiffUnified prints only the unified diff text.
func outputDiffUnified(w io.Writer, result *DiffResult) error {
	if result.UnifiedDiff == "" {
		_, err := fmt.Fprintln(w, "No changes.")
		return err
	}
	_, err := fmt.Fprint(w, result.UnifiedDiff)
	return err
}

// outputDiffText prints a human-readable change summary.
func outputDiffText(w io.Writer, result *DiffResult) error {
	fmt.Fprintln(w, "Change Report")
	fmt.Fprintln(w, "=============")
	fmt.Fprintln(w)

	if result.URL != "" {
		fmt.Fprintf(w, "URL:       %s\n", result.URL)
		fmt.Fprintf(w, "Cached at: %s\n", result.CachedAt)
	} else {
		fmt.Fprintf(w, "Old: %s\n", result.OldFile)
		fmt.Fprintf(w, "New: %s\n", result.NewFile)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Similarity:     %.1f%%\n", result.Similarity*100)
	fmt.Fprintf(w, "Changed:        %.1f%%\n", result.PercentChanged)
	fmt.Fprintf(w, "Added lines:    %d\n", result.AddedLines)
	fmt.Fprintf(w, "Removed lines:  %d\n", result.RemovedLines)
	fmt.Fprintf(w, "Modified lines: %d\n", result.ModifiedLines)
	fmt.Fprintln(w)

	if result.Significant {
		fmt.Fprintf(w, "Change is significant (threshold: %.1f%%)\n", result.Threshold)
	} else {
		fmt.Fprintf(w, "Change is below the significance threshold (%.1f%%)\n", result.Threshold)
	}

	return nil
}
