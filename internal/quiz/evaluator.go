// Package quiz holds answer checking.
package quiz

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// IsCorrect compares a submitted answer with the expected one.
// Only the submitted side is trimmed; both sides are NFC-normalised and case folded.
func IsCorrect(submitted, expected string) bool {
	return fold(strings.TrimSpace(submitted)) == fold(expected)
}

// fold builds a fresh Caser per call since a Caser must not be shared across goroutines.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
