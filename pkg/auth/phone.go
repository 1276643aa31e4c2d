package auth

import (
	"errors"
	"regexp"
	"strings"

	"github.com/dmitrymomot/authflow/pkg/sanitizer"
)

// ErrPhoneFormat is returned by phone normalisers for unusable input.
var ErrPhoneFormat = errors.New("phone number must be 010-XXXX-XXXX")

// PhoneNormalizer returns the canonical form of a contact number.
type PhoneNormalizer func(raw string) (string, error)

var koreanMobile = regexp.MustCompile(`^010-\d{4}-\d{4}$`)

// NormalizeKoreanMobile accepts 010-XXXX-XXXX as is, or 11 digits starting
// with 010 in any formatting, and returns 010-XXXX-XXXX.
func NormalizeKoreanMobile(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if koreanMobile.MatchString(raw) {
		return raw, nil
	}
	d := sanitizer.Digits(raw)
	if len(d) != 11 || !strings.HasPrefix(d, "010") {
		return "", ErrPhoneFormat
	}
	return d[:3] + "-" + d[3:7] + "-" + d[7:], nil
}
