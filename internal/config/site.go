package config

import "time"

// SiteConfig holds per-domain overrides for a single site.
// This allows customizing crawl behavior for domains that need different
// politeness or scoping than the rest of the crawl.
type SiteConfig struct {
	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// DelayMS overrides the politeness delay for this site, in milliseconds.
	// If zero, the global delay is used.
	DelayMS int `yaml:"delayMs,omitempty"`

	// MaxDepth overrides the global crawl depth for this site.
	// If zero, the global MaxDepth is used.
	MaxDepth int `yaml:"maxDepth,omitempty"`

	// MaxPages overrides the global page budget for this site.
	// If zero, the global MaxPages is used.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are URL patterns to skip during crawling.
	// Patterns are matched against the full URL using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// Delay returns the site's politeness delay, or fallback when unset.
func (s SiteConfig) Delay(fallback time.Duration) time.Duration {
	if s.DelayMS > 0 {
		return time.Duration(s.DelayMS) * time.Millisecond
	}
	return fallback
}

// Settings mirrors the global Config fields that may be set from the
// configuration file. Zero values mean "not set" and leave the CLI flag
// or built-in default in place; flags always win over the file.
type Settings struct {
	Strategy          string            `yaml:"strategy,omitempty"`
	MaxDepth          int               `yaml:"maxDepth,omitempty"`
	MaxPages          int               `yaml:"maxPages,omitempty"`
	MaxConcurrent     int               `yaml:"maxConcurrent,omitempty"`
	DelayMS           int               `yaml:"delayMs,omitempty"`
	TimeoutSec        int               `yaml:"timeoutSec,omitempty"`
	UserAgent         string            `yaml:"userAgent,omitempty"`
	Proxy             string            `yaml:"proxy,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty"`
	IncludeExternal   bool              `yaml:"includeExternal,omitempty"`
	PreserveFragment  bool              `yaml:"preserveFragment,omitempty"`
	UseSitemap        bool              `yaml:"useSitemap,omitempty"`
	CheckRobots       bool              `yaml:"checkRobots,omitempty"`
	RobotsFailClosed  bool              `yaml:"robotsFailClosed,omitempty"`
	RobotsTTLHours    int               `yaml:"robotsTTLHours,omitempty"`
	CacheMode         string            `yaml:"cacheMode,omitempty"`
	CacheTTLHours     int               `yaml:"cacheTTLHours,omitempty"`
	DatabaseDir       string            `yaml:"databaseDir,omitempty"`
	MinChangePercent  float64           `yaml:"minChangePercent,omitempty"`
	MaxBodyMB         int               `yaml:"maxBodyMB,omitempty"`
	MemoryLimitMB     int               `yaml:"memoryLimitMB,omitempty"`
	AllowedDomains    []string          `yaml:"allowedDomains,omitempty"`
	BlockedDomains    []string          `yaml:"blockedDomains,omitempty"`
	IgnorePatterns    []string          `yaml:"ignorePatterns,omitempty"`
	FollowPatterns    []string          `yaml:"followPatterns,omitempty"`
	AllowedExtensions []string          `yaml:"allowedExtensions,omitempty"`
	SkipExtensions    []string          `yaml:"skipExtensions,omitempty"`
	MaxPathDepth      int               `yaml:"maxPathDepth,omitempty"`
	BatchSize         int               `yaml:"batchSize,omitempty"`
}

// Apply overlays the non-zero settings onto cfg.
// Boolean settings only switch features on; they cannot switch a flag-set
// feature back off, which matches "flags win" precedence.
func (s *Settings) Apply(cfg *Config) {
	if s.Strategy != "" {
		cfg.Strategy = s.Strategy
	}
	if s.MaxDepth > 0 {
		cfg.MaxDepth = s.MaxDepth
	}
	if s.MaxPages > 0 {
		cfg.MaxPages = s.MaxPages
	}
	if s.MaxConcurrent > 0 {
		cfg.MaxConcurrent = s.MaxConcurrent
	}
	if s.DelayMS > 0 {
		cfg.Delay = time.Duration(s.DelayMS) * time.Millisecond
	}
	if s.TimeoutSec > 0 {
		cfg.Timeout = time.Duration(s.TimeoutSec) * time.Second
	}
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	if s.Proxy != "" {
		cfg.Proxy = s.Proxy
	}
	if len(s.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(s.Headers))
		}
		for k, v := range s.Headers {
			cfg.Headers[k] = v
		}
	}
	if s.IncludeExternal {
		cfg.IncludeExternal = true
	}
	if s.PreserveFragment {
		cfg.PreserveFragment = true
	}
	if s.UseSitemap {
		cfg.UseSitemap = true
	}
	if s.CheckRobots {
		cfg.CheckRobots = true
	}
	if s.RobotsFailClosed {
		cfg.RobotsFailClosed = true
	}
	if s.RobotsTTLHours > 0 {
		cfg.RobotsTTL = time.Duration(s.RobotsTTLHours) * time.Hour
	}
	if s.CacheMode != "" {
		cfg.CacheMode = s.CacheMode
	}
	if s.CacheTTLHours > 0 {
		cfg.CacheTTL = time.Duration(s.CacheTTLHours) * time.Hour
	}
	if s.DatabaseDir != "" {
		cfg.DBDir = s.DatabaseDir
	}
	if s.MinChangePercent > 0 {
		cfg.MinChangePercent = s.MinChangePercent
	}
	if s.MaxBodyMB > 0 {
		cfg.MaxBodySize = int64(s.MaxBodyMB) * 1024 * 1024
	}
	if s.MemoryLimitMB > 0 {
		cfg.MemoryLimitMB = s.MemoryLimitMB
	}
	if len(s.AllowedDomains) > 0 {
		cfg.AllowedDomains = s.AllowedDomains
	}
	if len(s.BlockedDomains) > 0 {
		cfg.BlockedDomains = s.BlockedDomains
	}
	if len(s.IgnorePatterns) > 0 {
		cfg.IgnorePatterns = s.IgnorePatterns
	}
	if len(s.FollowPatterns) > 0 {
		cfg.FollowPatterns = s.FollowPatterns
	}
	if len(s.AllowedExtensions) > 0 {
		cfg.AllowedExtensions = s.AllowedExtensions
	}
	if len(s.SkipExtensions) > 0 {
		cfg.SkipExtensions = s.SkipExtensions
	}
	if s.MaxPathDepth > 0 {
		cfg.MaxPathDepth = s.MaxPathDepth
	}
	if s.BatchSize > 0 {
		cfg.BatchSize = s.BatchSize
	}
}

// File represents the structure of the .crawlerwhip configuration file.
type File struct {
	// Settings are global options applied before CLI flags.
	Settings Settings `yaml:"settings,omitempty"`

	// Sites maps registrable domains to their site-specific overrides.
	// Keys should be the domain without the protocol (e.g., "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific domain.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(domain string) SiteConfig {
	// Start with defaults
	result := cf.Defaults

	// Override with site-specific configuration if present
	if siteConfig, ok := cf.Sites[domain]; ok {
		if siteConfig.DelayMS != 0 {
			result.DelayMS = siteConfig.DelayMS
		}
		if siteConfig.MaxDepth != 0 {
			result.MaxDepth = siteConfig.MaxDepth
		}
		if siteConfig.MaxPages != 0 {
			result.MaxPages = siteConfig.MaxPages
		}
		if len(siteConfig.Headers) > 0 {
			// result.Headers still aliases the defaults' map, so merge
			// into a fresh one; writing through the alias would hand this
			// site's headers to every other site.
			merged := make(map[string]string, len(result.Headers)+len(siteConfig.Headers))
			for k, v := range result.Headers {
				merged[k] = v
			}
			for k, v := range siteConfig.Headers {
				merged[k] = v
			}
			result.Headers = merged
		}
		if len(siteConfig.IgnorePatterns) > 0 {
			result.IgnorePatterns = siteConfig.IgnorePatterns
		}
		if len(siteConfig.FollowPatterns) > 0 {
			result.FollowPatterns = siteConfig.FollowPatterns
		}
	}

	return result
}
