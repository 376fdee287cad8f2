// Package utils holds small helpers shared by the extraction packages.
package utils

import (
	"strings"
	"unicode"
)

// defaultMaxLength bounds a sanitized value unless the caller overrides it.
const defaultMaxLength = 100

// SanitizeForLog makes a string read from a checkpoint (a tensor name, a
// shard file name) safe to print: line breaks and tabs are escaped, other
// control and non-printable runes become '?', and backslashes are doubled.
// The result is cut to maxLength bytes (default 100); 0 or less disables it.
func SanitizeForLog(s string, maxLength ...int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\\':
			b.WriteString(`\\`)
		case unicode.IsControl(r), !unicode.IsPrint(r):
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}

	limit := defaultMaxLength
	if len(maxLength) > 0 {
		limit = maxLength[0]
	}
	out := b.String()
	if limit > 0 && len(out) > limit {
		return out[:limit] + "...[truncated]"
	}
	return out
}

// SanitizeNames sanitizes every name and joins them with ", ".
func SanitizeNames(names []string) string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = SanitizeForLog(name)
	}
	return strings.Join(out, ", ")
}
