package authhttp

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	minSecretLength = 32
	derivedKeySize  = 32
)

// Keys are independent keys derived from one master secret.
type Keys struct {
	Cookie  []byte
	Ticket  []byte
	Storage []byte
}

// DeriveKeys expands secret with HKDF-SHA256 into purpose-bound keys.
func DeriveKeys(secret string) (Keys, error) {
	if len(secret) < minSecretLength {
		return Keys{}, fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, minSecretLength)
	}

	cookieKey, err := derive(secret, "authflow/cookie/v1")
	if err != nil {
		return Keys{}, err
	}
	ticketKey, err := derive(secret, "authflow/signup-ticket/v1")
	if err != nil {
		return Keys{}, err
	}
	storageKey, err := derive(secret, "authflow/storage/v1")
	if err != nil {
		return Keys{}, err
	}
	return Keys{Cookie: cookieKey, Ticket: ticketKey, Storage: storageKey}, nil
}

// KeyRing holds the keys of the current secret followed by those of the
// previous one. The first entry signs; every entry verifies.
type KeyRing []Keys

// DeriveKeyRing derives keys for secret and, when set, prev.
func DeriveKeyRing(secret, prev string) (KeyRing, error) {
	cur, err := DeriveKeys(secret)
	if err != nil {
		return nil, err
	}
	ring := KeyRing{cur}
	if prev != "" {
		old, err := DeriveKeys(prev)
		if err != nil {
			return nil, fmt.Errorf("previous secret: %w", err)
		}
		ring = append(ring, old)
	}
	return ring, nil
}

func (r KeyRing) Cookie() [][]byte  { return r.collect(func(k Keys) []byte { return k.Cookie }) }
func (r KeyRing) Ticket() [][]byte  { return r.collect(func(k Keys) []byte { return k.Ticket }) }
func (r KeyRing) Storage() [][]byte { return r.collect(func(k Keys) []byte { return k.Storage }) }

func (r KeyRing) collect(pick func(Keys) []byte) [][]byte {
	out := make([][]byte, 0, len(r))
	for _, k := range r {
		out = append(out, pick(k))
	}
	return out
}

func derive(secret, info string) ([]byte, error) {
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
	}
	return key, nil
}
