package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaxContentSize is the maximum size of page content kept in memory or
// written to the cache store. Larger bodies are truncated at fetch time.
const MaxContentSize = 5 * 1024 * 1024 // 5 MB

// HashContent returns the SHA-256 hex digest of the given content.
// Returns "" for empty content so that an absent body never collides
// with a real hash.
//
// The hash is computed over normalized text, not raw HTML, so that
// markup churn (attribute reordering, comment noise) does not defeat
// change detection.
func HashContent(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// TruncateContent caps content at MaxContentSize bytes.
func TruncateContent(content string) string {
	if len(content) > MaxContentSize {
		return content[:MaxContentSize]
	}
	return content
}
