// Package textutil cleans user-supplied text before it is stored.
package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Clean strips markup, unescapes entities, drops control characters and collapses
// whitespace runs to single spaces.
func Clean(value string) string {
	if value == "" {
		return ""
	}
	stripped := html.UnescapeString(strict.Sanitize(value))
	var b strings.Builder
	b.Grow(len(stripped))
	space := false
	for _, r := range stripped {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case unicode.IsControl(r):
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CleanLimit cleans value and truncates it to at most limit runes.
func CleanLimit(value string, limit int) string {
	cleaned := Clean(value)
	if limit <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= limit {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:limit]))
}
