package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate cuts s to at most max bytes on a rune boundary and appends "...".
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut] + "..."
}

// Capitalize upper-cases the first letter and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// Enabled renders a feature flag for notifications.
func Enabled(on bool) string {
	if on {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}

// RealTrade renders the real-trading flag the way trade notifications show it.
func RealTrade(on bool) string {
	if on {
		return "Yes"
	}
	return "No (Simulation)"
}
