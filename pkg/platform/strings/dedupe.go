// Package strings holds small helpers for cleaning string lists read from
// configuration.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every element and drops empties and repeats, keeping
// first-seen order. A nil or empty input is returned as is.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma separated value and cleans it with DedupeAndTrim.
func SplitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(v, ","))
}
