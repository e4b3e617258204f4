// Package format renders text for Telegram parse modes.
package format

import (
	"regexp"
	"strings"
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var mdV2Re = regexp.MustCompile("([" + escapeClass(mdV2Specials) + "])")

// escapeClass backslash-escapes every rune so none of them forms a range.
func escapeClass(chars string) string {
	var b strings.Builder
	for _, r := range chars {
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeV2 escapes text for MarkdownV2.
func EscapeV2(text string) string {
	return mdV2Re.ReplaceAllString(text, `\$1`)
}

// BoldV2 wraps escaped text in MarkdownV2 bold markers.
func BoldV2(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return "*" + EscapeV2(text) + "*"
}
