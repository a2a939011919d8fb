package robots

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Rule is a single Allow or Disallow directive bound to a user-agent group.
type Rule struct {
	// Agent is the lowercased user-agent token the rule applies to,
	// or "*" for the wildcard group.
	Agent string `json:"agent"`

	// Path is the URL path prefix the rule matches.
	Path string `json:"path"`

	// Allow is true for Allow directives and false for Disallow.
	Allow bool `json:"allow"`
}

// RuleSet holds the parsed robots.txt rules for one domain.
//
// Design decision: We keep the parsed rules as a transparent flat list
// rather than wrapping a parser library's opaque matcher because:
// 1. The rule set must serialize to the database and survive restarts.
// 2. Matching policy (longest prefix, Disallow wins ties) stays visible
//    and testable in one place.
// 3. Sitemap directives ride along for frontier seeding.
type RuleSet struct {
	// Domain is the host the rules were fetched from.
	Domain string `json:"domain"`

	// Rules are the flattened Allow/Disallow directives.
	Rules []Rule `json:"rules,omitempty"`

	// Sitemaps are the sitemap URLs advertised by the robots.txt file.
	Sitemaps []string `json:"sitemaps,omitempty"`

	// FetchedAt is when the rules were retrieved. Not serialized; the
	// database keeps the authoritative copy alongside the rules payload.
	FetchedAt time.Time `json:"-"`

	// TTL is how long after FetchedAt the rules stay fresh.
	TTL time.Duration `json:"-"`
}

// Parse reads a robots.txt body into a RuleSet for the given domain.
//
// Consecutive User-agent lines form one group; Allow and Disallow lines
// attach to every agent in the current group. Directives with an empty
// path carry no restriction and are dropped. Unknown directives are
// ignored. Parse never fails: malformed lines are skipped, and an
// unparseable body simply yields an unrestricted rule set.
func Parse(domain, body string) *RuleSet {
	rs := &RuleSet{Domain: domain}

	var agents []string
	lastWasAgent := false

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			// A User-agent line after rules starts a new group
			if !lastWasAgent {
				agents = nil
			}
			if value != "" {
				agents = append(agents, strings.ToLower(value))
			}
			lastWasAgent = true
		case "allow", "disallow":
			lastWasAgent = false
			if value == "" {
				continue
			}
			for _, agent := range agents {
				rs.Rules = append(rs.Rules, Rule{
					Agent: agent,
					Path:  value,
					Allow: key == "allow",
				})
			}
		case "sitemap":
			if value != "" {
				rs.Sitemaps = append(rs.Sitemaps, value)
			}
		}
	}

	return rs
}

// Allowed reports whether the given path may be fetched by the given
// user agent.
//
// Rules from the agent's own group take precedence; the wildcard group
// applies only when the agent has no rules of its own. Among matching
// rules, the longest path prefix wins; on a tie, Disallow wins. A path
// matched by no rule is allowed.
func (rs *RuleSet) Allowed(path, userAgent string) bool {
	if path == "" {
		path = "/"
	}

	rules := rs.rulesFor(agentToken(userAgent))
	if len(rules) == 0 {
		rules = rs.rulesFor("*")
	}

	bestLen := -1
	allowed := true
	for _, rule := range rules {
		if !strings.HasPrefix(path, rule.Path) {
			continue
		}
		switch n := len(rule.Path); {
		case n > bestLen:
			bestLen = n
			allowed = rule.Allow
		case n == bestLen && !rule.Allow:
			allowed = false
		}
	}

	return allowed
}

// rulesFor returns the rules belonging to the given lowercased agent token.
func (rs *RuleSet) rulesFor(token string) []Rule {
	var rules []Rule
	for _, rule := range rs.Rules {
		if rule.Agent == token {
			rules = append(rules, rule)
		}
	}
	return rules
}

// Expired reports whether the rule set is past its TTL at the given time.
func (rs *RuleSet) Expired(now time.Time) bool {
	return now.After(rs.FetchedAt.Add(rs.TTL))
}

// Marshal serializes the rule set for database persistence.
func (rs *RuleSet) Marshal() (string, error) {
	data, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("failed to serialize robots rules: %w", err)
	}
	return string(data), nil
}

// UnmarshalRuleSet deserializes a rule set stored by Marshal.
// FetchedAt and TTL are not part of the payload; the caller restores them
// from the database record.
func UnmarshalRuleSet(data string) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal([]byte(data), &rs); err != nil {
		return nil, fmt.Errorf("failed to parse robots rules: %w", err)
	}
	return &rs, nil
}

// agentToken reduces a full User-Agent string to the product token robots
// rules are matched against ("crawlerwhip/1.0 (+https://...)" becomes
// "crawlerwhip").
func agentToken(userAgent string) string {
	token := userAgent
	if i := strings.IndexAny(token, "/ "); i >= 0 {
		token = token[:i]
	}
	return strings.ToLower(token)
}
