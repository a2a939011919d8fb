// Package main provides the entry point for the crawlerwhip CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for crawlerwhip.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawlerwhip",
		Short: "Deep-crawl engine with integrated cache and change detection",
		Long: `crawlerwhip crawls a site from one or more seed URLs, records the link
graph, and caches page content so repeat crawls can detect what changed.

Crawls honor robots.txt, per-domain rate limits, and URL filters. Results
are printed as a human-readable report, Markdown, or JSON, and every run
is recorded in a local SQLite database for later inspection.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewDiffCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
