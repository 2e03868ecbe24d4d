package utils

import "unicode/utf8"

// Truncate caps s at max bytes without splitting a multibyte rune: the cut
// backs up to the nearest rune boundary, so the result is always valid UTF-8.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
