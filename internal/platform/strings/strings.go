// Package strings provides small string helpers for sql args and log fields
package strings

import (
	std "strings"
	"unicode/utf8"
)

// IfEmpty returns def when in has no elements
func IfEmpty[T any](in []T, def []T) []T {
	if len(in) == 0 {
		return def
	}
	return in
}

// MustString returns s if it has non whitespace content otherwise panics
// name is used in the panic message so you can tell what was missing
func MustString(s string, name string) string {
	if std.TrimSpace(s) == "" {
		panic(name + " is required")
	}
	return s
}

// SQLNull returns nil if s is blank/whitespace, else the original string.
// Useful for query args where NULL is desired for blanks
func SQLNull(s string) any {
	if std.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// Truncate caps s at max bytes without splitting a rune; an ellipsis marks the cut
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	const ell = "..."
	if max <= len(ell) {
		return s[:max]
	}
	cut := max - len(ell)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ell
}
