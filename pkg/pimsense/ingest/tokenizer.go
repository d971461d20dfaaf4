// Package ingest provides the text-normalization helpers shared by the
// scoring and grouping passes: a stopword-aware tokenizer and a markup
// stripper for description samples.
package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLen drops very short tokens; unit fragments ("cm", "x") carry no
// category signal.
const MinTokenLen = 3

// Tokenizer splits product text into normalized tokens.
type Tokenizer struct {
	stopwords map[string]struct{}
	folder    transform.Transformer
}

// NewTokenizer creates a tokenizer with the given stopword list. Stopwords
// are matched after case and diacritic folding.
func NewTokenizer(stopwords []string) *Tokenizer {
	t := &Tokenizer{
		stopwords: make(map[string]struct{}, len(stopwords)),
		folder:    newFolder(),
	}
	for _, w := range stopwords {
		t.stopwords[t.fold(w)] = struct{}{}
	}
	return t
}

// newFolder builds an NFD transform that removes combining marks, so
// "lámpara" and "lampara" normalize to the same token across exports of
// mixed encoding quality.
func newFolder() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		transform.RemoveFunc(func(r rune) bool {
			return unicode.Is(unicode.Mn, r)
		}),
		norm.NFC,
	)
}

func (t *Tokenizer) fold(s string) string {
	folded, _, err := transform.String(t.folder, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// Tokenize splits text into lowercase, diacritic-folded tokens, dropping
// stopwords, tokens shorter than MinTokenLen, and purely numeric tokens.
// Mixed tokens like "128gb" are kept.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := t.fold(current.String())
		current.Reset()
		if len([]rune(word)) < MinTokenLen || isNumericOnly(word) {
			return
		}
		if _, stop := t.stopwords[word]; stop {
			return
		}
		tokens = append(tokens, word)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// IsStopword reports whether word is filtered by this tokenizer.
func (t *Tokenizer) IsStopword(word string) bool {
	_, ok := t.stopwords[t.fold(word)]
	return ok
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
