package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/token"
)

type ticket struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

var key = []byte("test-signing-key")

func TestSignVerify(t *testing.T) {
	t.Parallel()

	tok, err := token.Sign([]byte("hello"), key)
	require.NoError(t, err)

	data, err := token.Verify(tok, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = token.Verify(tok, []byte("other"))
	assert.ErrorIs(t, err, token.ErrSignatureInvalid)

	for _, bad := range []string{"", "nodot", ".sig", "payload.", "!!!.???"} {
		_, err = token.Verify(bad, key)
		assert.ErrorIs(t, err, token.ErrInvalidToken, bad)
	}

	_, err = token.Sign([]byte("x"), nil)
	assert.ErrorIs(t, err, token.ErrEmptyKey)
}

func TestGenerateParse(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		tok, err := token.Generate(ticket{ID: "k-1", Email: "a@b.c"}, key, time.Minute)
		require.NoError(t, err)

		got, err := token.Parse[ticket](tok, key)
		require.NoError(t, err)
		assert.Equal(t, ticket{ID: "k-1", Email: "a@b.c"}, got)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		tok, err := token.Generate(ticket{ID: "k-1"}, key, time.Nanosecond)
		require.NoError(t, err)
		time.Sleep(1100 * time.Millisecond)

		_, err = token.Parse[ticket](tok, key)
		assert.ErrorIs(t, err, token.ErrExpired)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		tok, err := token.Generate(ticket{ID: "k-1"}, key, 0)
		require.NoError(t, err)
		other, err := token.Generate(ticket{ID: "k-2"}, key, 0)
		require.NoError(t, err)

		// Splice the payload of one token with the signature of another.
		forged := other[:len(other)-43] + tok[len(tok)-43:]
		_, err = token.Parse[ticket](forged, key)
		assert.Error(t, err)
	})
}
