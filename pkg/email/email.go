// Package email holds the address grammar accepted at ingestion.
package email

import (
	"regexp"
	"strings"
)

// Pattern is the address grammar enforced on new users.
const Pattern = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`

var addressRe = regexp.MustCompile(Pattern)

// IsValid reports whether addr matches Pattern.
func IsValid(addr string) bool {
	return addressRe.MatchString(addr)
}

// Domain returns the part after the last '@', or "" when there is none.
func Domain(addr string) string {
	if at := strings.LastIndexByte(addr, '@'); at >= 0 {
		return addr[at+1:]
	}
	return ""
}
