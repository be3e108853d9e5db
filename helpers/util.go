package helpers

import (
	"strings"
	"unicode"
)

// StripWhitespace removes every whitespace rune, so markup patterns can be
// matched regardless of how the page was indented or wrapped.
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
