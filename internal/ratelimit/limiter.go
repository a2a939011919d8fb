package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Default admission settings.
const (
	// DefaultGlobalLimit bounds in-flight fetches across all domains.
	DefaultGlobalLimit = 5

	// DefaultPerDomainLimit bounds in-flight fetches to a single domain.
	DefaultPerDomainLimit = 2

	// DefaultBaseDelay is the politeness delay between requests to one
	// domain, and the starting point for backoff.
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay caps the backoff delay for a misbehaving domain.
	DefaultMaxDelay = 60 * time.Second

	// DefaultMaxRetries is how many rate-limit responses a domain may
	// return before its candidates stop being retried.
	DefaultMaxRetries = 3

	// backoffFactor doubles the delay on each consecutive rate-limit
	// response.
	backoffFactor = 2
)

// RateLimited reports whether an HTTP status code is a slow-down signal
// from the server rather than a page-level failure.
func RateLimited(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable
}

// Limiter is the admission controller for fetch work. Workers acquire a
// permit before fetching and release it after; between the two, the
// limiter enforces a global in-flight ceiling, a per-domain in-flight
// ceiling, and per-domain pacing with exponential backoff.
//
// Design decision: Admission combines semaphores with a token-bucket
// pacer rather than a single delay queue because:
// 1. Semaphores bound concurrency (globally and per domain) independently
// of request spacing
// 2. The pacer spaces requests to one domain without holding a worker
// hostage for other domains
// 3. Backoff only retunes that domain's pacer, so one throttled domain
// never slows the rest of the crawl
type Limiter struct {
	// global bounds total in-flight fetches across all domains.
	global *semaphore.Weighted

	// perDomainLimit is the in-flight ceiling applied to each domain.
	perDomainLimit int64

	// baseDelay is the politeness delay between requests to one domain.
	// Zero disables pacing until backoff engages.
	baseDelay time.Duration

	// maxDelay caps exponential backoff.
	maxDelay time.Duration

	// maxRetries bounds retries after rate-limit responses.
	maxRetries int

	// memory optionally pauses all admissions under memory pressure.
	memory *MemoryGate

	// logger records backoff activity.
	logger *slog.Logger

	// mu guards domains and the counters inside each domainState.
	mu      sync.Mutex
	domains map[string]*domainState
}

// domainState tracks admission state for a single domain.
type domainState struct {
	// sem bounds in-flight fetches to this domain.
	sem *semaphore.Weighted

	// pacer spaces successive requests to this domain.
	pacer *rate.Limiter

	// delay is the current interval enforced by pacer.
	delay time.Duration

	// failures counts consecutive rate-limit responses.
	failures int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithGlobalLimit sets the total in-flight fetch ceiling.
func WithGlobalLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.global = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithPerDomainLimit sets the in-flight fetch ceiling per domain.
func WithPerDomainLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.perDomainLimit = int64(n)
		}
	}
}

// WithBaseDelay sets the politeness delay between requests to one
// domain. Zero disables pacing until a domain starts rate limiting.
func WithBaseDelay(d time.Duration) Option {
	return func(l *Limiter) {
		if d >= 0 {
			l.baseDelay = d
		}
	}
}

// WithMaxDelay caps the exponential backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.maxDelay = d
		}
	}
}

// WithMaxRetries sets how many rate-limit responses a domain may return
// before its candidates stop being retried.
func WithMaxRetries(n int) Option {
	return func(l *Limiter) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// WithMemoryGate pauses all admissions while the gate reports memory
// pressure.
func WithMemoryGate(gate *MemoryGate) Option {
	return func(l *Limiter) {
		l.memory = gate
	}
}

// WithLogger sets the logger for backoff activity.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// NewLimiter creates an admission controller with the given options.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		global:         semaphore.NewWeighted(DefaultGlobalLimit),
		perDomainLimit: DefaultPerDomainLimit,
		baseDelay:      DefaultBaseDelay,
		maxDelay:       DefaultMaxDelay,
		maxRetries:     DefaultMaxRetries,
		domains:        make(map[string]*domainState),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = slog.Default()
	}

	return l
}

// Acquire blocks until the domain may be fetched: the memory gate is
// clear, a per-domain and a global slot are free, and the domain's
// pacing interval has elapsed. Every successful Acquire must be paired
// with a Release for the same domain.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)

	if err := l.memory.Wait(ctx); err != nil {
		return err
	}

	st := l.state(domain)

	// Domain slot first so one busy domain queues on its own ceiling
	// without consuming global capacity.
	if err := st.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := l.global.Acquire(ctx, 1); err != nil {
		st.sem.Release(1)
		return err
	}
	if err := st.pacer.Wait(ctx); err != nil {
		l.global.Release(1)
		st.sem.Release(1)
		return err
	}
	return nil
}

// Release returns the permits taken by a successful Acquire.
func (l *Limiter) Release(domain string) {
	st := l.state(strings.ToLower(domain))
	l.global.Release(1)
	st.sem.Release(1)
}

// OnSuccess resets the domain's backoff after a successful fetch and
// returns pacing to the base delay.
func (l *Limiter) OnSuccess(domain string) {
	st := l.state(strings.ToLower(domain))

	l.mu.Lock()
	st.failures = 0
	st.delay = l.baseDelay
	l.mu.Unlock()

	st.pacer.SetLimit(paceFor(l.baseDelay))
}

// OnRateLimited widens the domain's pacing interval after a 429/503
// response and returns the consecutive failure count. The delay doubles
// per consecutive failure and is capped at the configured maximum; other
// domains are unaffected.
func (l *Limiter) OnRateLimited(domain string) int {
	domain = strings.ToLower(domain)
	st := l.state(domain)

	l.mu.Lock()
	st.failures++
	st.delay = l.backoffDelay(st.failures)
	failures := st.failures
	delay := st.delay
	l.mu.Unlock()

	st.pacer.SetLimit(paceFor(delay))

	l.logger.Warn("rate limited, backing off",
		"domain", domain,
		"delay", delay,
		"consecutive_failures", failures,
	)
	return failures
}

// ShouldRetry reports whether a candidate should be retried after the
// given number of consecutive rate-limit responses.
func (l *Limiter) ShouldRetry(failures int) bool {
	return failures < l.maxRetries
}

// Backoff returns the domain's current pacing interval. Mostly useful
// for logging and tests.
func (l *Limiter) Backoff(domain string) time.Duration {
	st := l.state(strings.ToLower(domain))

	l.mu.Lock()
	defer l.mu.Unlock()
	return st.delay
}

// DomainStats describes the limiter's view of one domain.
type DomainStats struct {
	// Domain is the lowercased host.
	Domain string `json:"domain"`

	// Delay is the current pacing interval.
	Delay time.Duration `json:"delay"`

	// Failures counts consecutive rate-limit responses.
	Failures int `json:"failures"`
}

// Stats returns per-domain limiter state sorted by domain.
func (l *Limiter) Stats() []DomainStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make([]DomainStats, 0, len(l.domains))
	for domain, st := range l.domains {
		stats = append(stats, DomainStats{
			Domain:   domain,
			Delay:    st.delay,
			Failures: st.failures,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Domain < stats[j].Domain })
	return stats
}

// ResetDomain drops the state for one domain. It must not be called
// while permits for that domain are held.
func (l *Limiter) ResetDomain(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.domains, strings.ToLower(domain))
}

// Reset drops all per-domain state. It must not be called while permits
// are held.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domains = make(map[string]*domainState)
}

// state returns the domain's admission state, creating it on first use.
func (l *Limiter) state(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{
			sem:   semaphore.NewWeighted(l.perDomainLimit),
			pacer: rate.NewLimiter(paceFor(l.baseDelay), 1),
			delay: l.baseDelay,
		}
		l.domains[domain] = st
	}
	return st
}

// backoffDelay computes the pacing interval after the given number of
// consecutive rate-limit responses: base doubled per failure, capped.
func (l *Limiter) backoffDelay(failures int) time.Duration {
	base := l.baseDelay
	if base <= 0 {
		// Backoff still needs a base even when politeness pacing is off
		base = DefaultBaseDelay
	}

	delay := base
	for i := 0; i < failures; i++ {
		delay *= backoffFactor
		if delay >= l.maxDelay {
			return l.maxDelay
		}
	}
	return delay
}

// paceFor converts a delay into a rate limit. Zero or negative delay
// means unpaced.
func paceFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
