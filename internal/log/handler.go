package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// sensitiveKeys contains attribute keys whose values are always masked.
// Crawl configurations carry auth headers and proxy credentials that must
// never reach log output.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,

	// Credentials
	"password":     true,
	"passwd":       true,
	"secret":       true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"access_token": true,
	"credential":   true,
	"credentials":  true,
	"proxy":        true,
}

// sensitiveParams are query parameter names whose values are masked when
// they appear inside a logged URL. Crawled sites routinely embed session
// and signing material in links, and those links end up in our logs.
var sensitiveParams = map[string]bool{
	"token":        true,
	"access_token": true,
	"api_key":      true,
	"apikey":       true,
	"key":          true,
	"secret":       true,
	"password":     true,
	"auth":         true,
	"session":      true,
	"sessionid":    true,
	"sid":          true,
	"signature":    true,
	"sig":          true,
}

// MaskValue is the string used to replace redacted values.
const MaskValue = "***REDACTED***"

// RedactingHandler wraps an slog.Handler and scrubs credentials from
// records before they are emitted. It masks whole values for sensitive
// attribute keys and rewrites URL-shaped values so that userinfo and
// sensitive query parameters are masked while the rest of the URL stays
// readable for debugging.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. Every package logs URLs; centralizing the scrubbing here means no
//     call site can forget it
type RedactingHandler struct {
	// handler is the underlying slog handler that receives scrubbed records.
	handler slog.Handler
}

// NewRedactingHandler creates a RedactingHandler wrapping the given handler.
// If handler is nil, the returned handler wraps slog.Default().Handler().
func NewRedactingHandler(handler slog.Handler) *RedactingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactingHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
// It delegates to the underlying handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle scrubs the record's attributes and passes it to the underlying handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	scrubbed := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	r.Attrs(func(a slog.Attr) bool {
		scrubbed.AddAttrs(h.redactAttr(a))
		return true
	})

	return h.handler.Handle(ctx, scrubbed)
}

// WithAttrs returns a new handler with the given attributes added.
// Attributes are scrubbed before being added.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(redacted)}
}

// WithGroup returns a new handler with the given group name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name)}
}

// redactAttr scrubs a single attribute, recursively handling groups.
func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			redacted[i] = h.redactAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() == slog.KindString {
		if scrubbed, changed := RedactURL(a.Value.String()); changed {
			return slog.String(a.Key, scrubbed)
		}
	}

	return a
}

// RedactURL masks credentials embedded in a URL-shaped string: the
// userinfo password and the values of sensitive query parameters.
// The second return value reports whether anything was rewritten.
// Non-URL strings are returned unchanged.
func RedactURL(s string) (string, bool) {
	if !strings.Contains(s, "://") {
		return s, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s, false
	}

	changed := false
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), MaskValue)
			changed = true
		}
	}

	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err == nil {
			for name := range values {
				if sensitiveParams[strings.ToLower(name)] {
					values.Set(name, MaskValue)
					changed = true
				}
			}
			if changed {
				u.RawQuery = values.Encode()
			}
		}
	}

	if !changed {
		return s, false
	}
	// URL.String percent-encodes the mask's asterisks; keep it readable.
	return strings.ReplaceAll(u.String(), url.QueryEscape(MaskValue), MaskValue), true
}

// NewLogger creates a *slog.Logger with credential scrubbing and text output.
//
// Parameters:
//   - w: The io.Writer to write log output to (typically os.Stderr)
//   - verbose: If true, sets log level to Debug; otherwise Warn
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	textHandler := slog.NewTextHandler(w, opts)
	return slog.New(NewRedactingHandler(textHandler))
}

// NewJSONLogger creates a *slog.Logger with credential scrubbing that
// outputs JSON format. Useful for structured log aggregation.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	jsonHandler := slog.NewJSONHandler(w, opts)
	return slog.New(NewRedactingHandler(jsonHandler))
}
