// Package robots implements the robots exclusion protocol gate used to
// decide whether a candidate URL may be fetched.
//
// Rule sets are fetched once per domain and parsed into a transparent
// list of Allow/Disallow directives. Matching follows the conservative
// convention: the agent's own rule group beats the wildcard group, the
// longest matching path prefix wins, and Disallow wins ties. Fetched
// rule sets are cached in bounded memory, persisted to the database with
// a TTL, and concurrent requests for the same uncached domain share a
// single robots.txt fetch.
//
// An unreachable robots.txt is treated per the configured failure policy:
// fail-open (the default, domain unrestricted) or fail-closed (domain
// blocked for the rule set's TTL).
package robots
