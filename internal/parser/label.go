package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length caps for text lifted out of documents.
const (
	MaxLabelLength   = 300
	MaxTooltipLength = 1000
)

// CleanLabel collapses runs of whitespace, drops control characters and caps
// the result at MaxLabelLength runes.
func CleanLabel(s string) string {
	return clean(s, MaxLabelLength)
}

// CleanTooltip is CleanLabel with the tooltip cap.
func CleanTooltip(s string) string {
	return clean(s, MaxTooltipLength)
}

func clean(s string, limit int) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
