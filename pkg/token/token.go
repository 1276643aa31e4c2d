// Package token produces compact HMAC-SHA256 signed tokens.
//
// Format: base64url(payload) "." base64url(signature). Sign/Verify work on
// raw bytes; Generate/Parse wrap a JSON payload in an envelope with an
// optional expiry.
//
//	tok, _ := token.Generate(ticket, key, 30*time.Minute)
//	ticket, err := token.Parse[Ticket](tok, key)
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken     = errors.New("token.invalid_format")
	ErrSignatureInvalid = errors.New("token.signature_mismatch")
	ErrExpired          = errors.New("token.expired")
	ErrEmptyKey         = errors.New("token.empty_key")
)

var enc = base64.RawURLEncoding

// Sign returns data with an appended signature.
func Sign(data, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrEmptyKey
	}
	return enc.EncodeToString(data) + "." + enc.EncodeToString(mac(data, key)), nil
}

// Verify checks the signature of tok and returns the signed bytes.
func Verify(tok string, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	payload, sig, ok := strings.Cut(tok, ".")
	if !ok || payload == "" || sig == "" {
		return nil, ErrInvalidToken
	}
	data, err := enc.DecodeString(payload)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	got, err := enc.DecodeString(sig)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if subtle.ConstantTimeCompare(got, mac(data, key)) != 1 {
		return nil, ErrSignatureInvalid
	}
	return data, nil
}

type envelope[T any] struct {
	Payload   T     `json:"p"`
	ExpiresAt int64 `json:"e,omitempty"`
}

// Generate signs payload as JSON. A ttl <= 0 produces a token that never expires.
func Generate[T any](payload T, key []byte, ttl time.Duration) (string, error) {
	env := envelope[T]{Payload: payload}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}
	return Sign(data, key)
}

// Parse verifies tok and decodes its payload.
func Parse[T any](tok string, key []byte) (T, error) {
	var zero T
	data, err := Verify(tok, key)
	if err != nil {
		return zero, err
	}
	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return zero, errors.Join(ErrInvalidToken, err)
	}
	if env.ExpiresAt != 0 && time.Now().Unix() >= env.ExpiresAt {
		return zero, ErrExpired
	}
	return env.Payload, nil
}

func mac(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
