// Package sanitize cleans user-supplied notification text before it is sent
// to recipients.
package sanitize

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Cleaner rewrites text so that it is safe to show to recipients.
type Cleaner interface {
	Clean(ctx context.Context, text string) (string, error)
}

// CleanerFunc adapts a function to the Cleaner interface.
type CleanerFunc func(ctx context.Context, text string) (string, error)

// Clean calls f(ctx, text).
func (f CleanerFunc) Clean(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// DefaultWords is the built-in profanity list used by NewWordFilter when no
// words are supplied.
var DefaultWords = []string{
	"arse", "arsehole", "asshole", "bastard", "bitch", "bollocks",
	"bullshit", "crap", "damn", "dick", "fuck", "fucking", "motherfucker",
	"piss", "shit", "shitty", "wanker",
}

// WordFilter masks listed words with asterisks. Matching is case-insensitive
// and ignores diacritics, so "Dámn" matches "damn".
type WordFilter struct {
	words map[string]struct{}
}

// NewWordFilter builds a WordFilter from words plus extra. An empty words
// slice selects DefaultWords.
func NewWordFilter(words []string, extra ...string) *WordFilter {
	if len(words) == 0 {
		words = DefaultWords
	}
	f := &WordFilter{words: make(map[string]struct{}, len(words)+len(extra))}
	for _, w := range append(append([]string{}, words...), extra...) {
		key, err := foldWord(strings.TrimSpace(w))
		if err != nil || key == "" {
			continue
		}
		f.words[key] = struct{}{}
	}
	return f
}

// Clean strips control characters, trims surrounding whitespace and masks
// listed words.
func (f *WordFilter) Clean(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text = strings.TrimSpace(strings.Map(dropControl, text))

	var (
		b     strings.Builder
		start = -1
	)
	b.Grow(len(text))
	flush := func(end int) error {
		if start < 0 {
			return nil
		}
		word := text[start:end]
		start = -1
		key, err := foldWord(word)
		if err != nil {
			return fmt.Errorf("normalizing %q: %w", word, err)
		}
		if _, bad := f.words[key]; bad {
			b.WriteString(strings.Repeat("*", utf8.RuneCountInString(word)))
			return nil
		}
		b.WriteString(word)
		return nil
	}

	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if err := flush(i); err != nil {
			return "", err
		}
		b.WriteRune(r)
	}
	if err := flush(len(text)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// dropControl removes control characters other than newline and tab.
func dropControl(r rune) rune {
	if r == '\n' || r == '\t' {
		return r
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// foldWord lower-cases w and strips combining marks.
func foldWord(w string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, w)
	if err != nil {
		return "", err
	}
	return strings.ToLower(folded), nil
}
