// Package strings normalizes list-valued configuration such as the accepted
// evidence media types.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrimLower trims and lowercases every value, drops blanks, and keeps
// the first occurrence of each result in its original position.
// A nil or empty input is returned as is.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
