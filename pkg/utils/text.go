// Package utils provides shared utilities for text, ids, and logging.
package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged. Truncation is rune-safe.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// TruncateBytes returns the longest prefix of s that fits in maxBytes without splitting a rune.
func TruncateBytes(s string, maxBytes int) string {
	if maxBytes < 0 || len(s) <= maxBytes {
		return s
	}
	n := maxBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// CollapseWhitespace trims s and replaces every run of whitespace with a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NewID returns prefix + "_" + 12 lowercase hex characters from a random UUID,
// e.g. "d_3f9a1c2b7e4d".
func NewID(prefix string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "_" + hex[:12]
}
