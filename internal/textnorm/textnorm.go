// Package textnorm folds user-typed text so that names and answers compare
// the way a person reading them aloud would: case, accents and spacing
// do not matter.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns the comparison key for s.
func Fold(s string) string {
	// Chains carry state, build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// Letters folds s and keeps only letters, for word games where players
// type with stray punctuation.
func Letters(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, Fold(s))
}

// Clean trims s and collapses inner whitespace without folding case.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
