package validator_test

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(
		validator.RequiredString("name", "Kim"),
		validator.ValidEmail("email", "kim@example.com"),
	))

	err := validator.Apply(
		validator.RequiredString("name", "  "),
		validator.ValidEmail("email", "nope"),
		validator.MaxLenString("name", "가나다라", 3),
	)
	require.Error(t, err)

	wrapped := fmt.Errorf("signup: %w", err)
	assert.True(t, validator.IsValidationError(wrapped))
	errs := validator.ExtractValidationErrors(wrapped)
	require.Len(t, errs, 3)
	assert.True(t, errs.Has("email"))
	assert.Len(t, errs.Get("name"), 2)
	assert.Len(t, errs.Map()["name"], 2)
	assert.Contains(t, errs.Error(), "email: must be a valid email address")

	assert.Nil(t, validator.ExtractValidationErrors(errors.New("x")))
	assert.False(t, validator.IsValidationError(nil))
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule validator.Rule
		ok   bool
	}{
		{"email ok", validator.ValidEmail("e", "a.b@c.kr"), true},
		{"email display name", validator.ValidEmail("e", "A <a@b.c>"), false},
		{"email no dot", validator.ValidEmail("e", "a@localhost"), false},
		{"email empty label", validator.ValidEmail("e", "a@b..c"), false},
		{"pattern ok", validator.MatchesPattern("p", "010-1234-5678", regexp.MustCompile(`^010-\d{4}-\d{4}$`), "bad"), true},
		{"pattern bad", validator.MatchesPattern("p", "010-12-5678", regexp.MustCompile(`^010-\d{4}-\d{4}$`), "bad"), false},
		{"date ok", validator.ValidDate("d", "1990-01-31", "2006-01-02"), true},
		{"date bad format", validator.ValidDate("d", "31/01/1990", "2006-01-02"), false},
		{"date future", validator.ValidDate("d", "2999-01-01", "2006-01-02"), false},
		{"optional blank", validator.Optional("", validator.ValidEmail("e", "")), true},
		{"optional present", validator.Optional("x", validator.ValidEmail("e", "x")), false},
		{"fail", validator.Fail("f", "nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ok, validator.Apply(tt.rule) == nil)
		})
	}
}
