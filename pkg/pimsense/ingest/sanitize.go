package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

// StripMarkup reduces an attribute value to plain text. Long and short
// description values in the wild sometimes carry HTML fragments; keyword
// extraction and locale scoring want the visible text only. Values without
// markup pass through untouched apart from whitespace collapsing.
func StripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return collapse(s)
	}
	tok := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return collapse(b.String())
		case html.TextToken:
			b.Write(tok.Text())
			b.WriteByte(' ')
		}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
