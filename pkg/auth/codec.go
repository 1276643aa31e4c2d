package auth

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrymomot/authflow/pkg/token"
)

// Codec serialises records for a storage tier.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec stores records as plain JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }

// SignedCodec stores records as HMAC-signed tokens so a tier outside the
// process (a shared cache, a client-held ticket) cannot be tampered with.
// The first key signs; every key verifies, so records written before a key
// rotation stay readable. Tampered records fail to decode and are treated as
// absent.
type SignedCodec struct {
	Keys [][]byte
}

func (c SignedCodec) Encode(v any) ([]byte, error) {
	if len(c.Keys) == 0 {
		return nil, token.ErrEmptyKey
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tok, err := token.Sign(data, c.Keys[0])
	if err != nil {
		return nil, err
	}
	return []byte(tok), nil
}

func (c SignedCodec) Decode(data []byte, v any) error {
	if len(c.Keys) == 0 {
		return token.ErrEmptyKey
	}
	var lastErr error
	for _, key := range c.Keys {
		raw, err := token.Verify(string(data), key)
		if err == nil {
			return json.Unmarshal(raw, v)
		}
		lastErr = err
	}
	return fmt.Errorf("failed to verify record: %w", lastErr)
}
