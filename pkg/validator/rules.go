package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required", TranslationKey: "validation.required"},
	}
}

// MaxLenString counts runes, not bytes.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be at most %d characters long", max),
			TranslationKey: "validation.max_length",
		},
	}
}

// ValidEmail accepts a bare RFC 5322 address whose domain has a dot.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != strings.TrimSpace(value) {
				return false
			}
			local, domain, ok := strings.Cut(addr.Address, "@")
			if !ok || local == "" {
				return false
			}
			for part := range strings.SplitSeq(domain, ".") {
				if part == "" {
					return false
				}
			}
			return strings.Contains(domain, ".")
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address", TranslationKey: "validation.email"},
	}
}

func MatchesPattern(field, value string, re *regexp.Regexp, message string) Rule {
	return Rule{
		Check: func() bool { return re.MatchString(value) },
		Error: ValidationError{Field: field, Message: message, TranslationKey: "validation.format"},
	}
}

// ValidDate checks value parses with layout and is not in the future.
func ValidDate(field, value, layout string) Rule {
	return Rule{
		Check: func() bool {
			d, err := time.Parse(layout, value)
			return err == nil && !d.After(time.Now())
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be a past date in %s format", layout),
			TranslationKey: "validation.date",
		},
	}
}

// Optional skips rule when value is blank.
func Optional(value string, rule Rule) Rule {
	check := rule.Check
	rule.Check = func() bool {
		return strings.TrimSpace(value) == "" || check()
	}
	return rule
}

// Fail is a rule that always fails with message. Used when a value was
// rejected by a normaliser before validation.
func Fail(field, message string) Rule {
	return Rule{
		Check: func() bool { return false },
		Error: ValidationError{Field: field, Message: message, TranslationKey: "validation.format"},
	}
}
