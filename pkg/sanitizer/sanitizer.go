// Package sanitizer normalises user-supplied profile fields before they are
// validated or persisted.
package sanitizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	nonDigit  = regexp.MustCompile(`\D`)
	multiDots = regexp.MustCompile(`\.{2,}`)
)

// Apply runs transforms over value in order.
func Apply[T any](value T, transforms ...func(T) T) T {
	for _, fn := range transforms {
		value = fn(value)
	}
	return value
}

// Name composes Unicode NFC normalisation with control-character removal and
// whitespace collapsing. Provider nicknames often arrive in decomposed form.
func Name(s string) string {
	return Apply(s, NFC, StripControl, CollapseWhitespace)
}

// NFC returns the canonical composed form of s.
func NFC(s string) string {
	return norm.NFC.String(s)
}

// StripControl removes control characters, keeping ordinary spaces.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// CollapseWhitespace trims s and folds whitespace runs into a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail lowercases and trims email and folds repeated dots in the
// local part. Input without exactly one @ is only trimmed and lowercased.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return email
	}
	local = strings.Trim(multiDots.ReplaceAllString(local, "."), ".")
	return local + "@" + domain
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}
