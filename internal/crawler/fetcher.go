package crawler

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/data-tamer/crawlerWhipAI/internal/model"
)

// Fetch adapter defaults.
const (
	// DefaultFetchTimeout bounds a single page fetch.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps how much of a response body is read.
	// Larger bodies are truncated, not rejected: the readable prefix
	// still yields links and content.
	DefaultMaxBodyBytes = model.MaxContentSize
)

// FetchError is a transport-level fetch failure. HTTP error statuses
// are not FetchErrors: a 404 is a response, recorded on the node.
type FetchError struct {
	// URL is the URL whose fetch failed.
	URL string

	// Retryable marks failures worth another attempt (timeouts,
	// connection resets) as opposed to permanent ones (DNS says no
	// such host).
	Retryable bool

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves pages over HTTP. It decodes compressed transfer
// encodings and non-UTF-8 charsets so the rest of the engine only sees
// text, and it caps body reads so one huge response cannot exhaust
// memory.
type Fetcher struct {
	// client is the underlying HTTP client.
	client *http.Client

	// userAgent is sent with every request.
	userAgent string

	// headers are extra request headers, set after the defaults.
	headers map[string]string

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes int64

	// logger records truncations and decode fallbacks.
	logger *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetcherUserAgent sets the User-Agent header.
func WithFetcherUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithFetcherHeaders sets extra request headers applied to every fetch.
func WithFetcherHeaders(headers map[string]string) FetcherOption {
	return func(f *Fetcher) {
		f.headers = headers
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// WithFetcherLogger sets the logger for truncation and decode events.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a fetch adapter around the given HTTP client.
// Pass nil to use a client with default transport and timeout.
func NewFetcher(client *http.Client, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}

	f := &Fetcher{
		client:       client,
		maxBodyBytes: DefaultMaxBodyBytes,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.logger == nil {
		f.logger = slog.Default()
	}

	return f
}

// NewClient builds an HTTP client for crawling: pooled transport,
// overall request timeout, optional proxy.
func NewClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if strings.TrimSpace(proxyURL) != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// Fetch retrieves a single URL.
//
// A response with an HTTP error status is still a successful fetch: the
// result carries the status code and the caller decides what it means.
// Only transport failures return a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*model.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Retryable: retryable(err), Err: err}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Retryable: retryable(err), Err: err}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return &model.FetchResult{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header.Clone(),
		ContentType: strings.ToLower(contentType),
		HTML:        body,
		FetchedAt:   time.Now(),
		Duration:    time.Since(start),
	}, nil
}

// FetchText retrieves a small text resource such as robots.txt or a
// sitemap. This is the robots gate's fetch interface.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, int, error) {
	result, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return "", 0, err
	}
	return result.HTML, result.StatusCode, nil
}

// readBody decompresses, charset-decodes, and caps the response body.
func (f *Fetcher) readBody(resp *http.Response) (string, error) {
	if resp.Body == nil {
		return "", nil
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	// The cap applies to decompressed bytes so a small compressed bomb
	// cannot balloon in memory.
	limited := io.LimitReader(reader, f.maxBodyBytes+1)

	// Decode legacy charsets to UTF-8. Falls back to the raw bytes when
	// the charset is unknown.
	decoded, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		decoded = limited
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if int64(len(body)) > f.maxBodyBytes {
		f.logger.Debug("response body truncated", "limit_bytes", f.maxBodyBytes)
		body = body[:f.maxBodyBytes]
	}
	return string(body), nil
}

// retryable classifies a transport error as worth another attempt.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// "No such host" is permanent; resolver trouble is not
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}
