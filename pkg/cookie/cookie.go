package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/dmitrymomot/authflow/pkg/token"
)

const minSecretLength = 32

type Manager struct {
	keys     [][]byte
	defaults Options
}

// New requires at least one key of 32 bytes or more. Empty keys are ignored.
func New(keys [][]byte, opts ...Option) (*Manager, error) {
	keys = slices.DeleteFunc(slices.Clone(keys), func(k []byte) bool { return len(k) == 0 })
	if len(keys) == 0 {
		return nil, ErrNoSecret
	}
	for i, k := range keys {
		if len(k) < minSecretLength {
			return nil, fmt.Errorf("%w: key %d has %d bytes, need at least %d", ErrSecretTooShort, i, len(k), minSecretLength)
		}
	}

	defaults := applyOptions(Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, opts)

	return &Manager{keys: keys, defaults: defaults}, nil
}

func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) {
	o := applyOptions(m.defaults, opts)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	})
}

func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	return c.Value, nil
}

func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     m.defaults.Path,
		Domain:   m.defaults.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: m.defaults.HttpOnly,
		SameSite: m.defaults.SameSite,
		Secure:   m.defaults.Secure,
	})
}

func (m *Manager) SetSigned(w http.ResponseWriter, name, value string, opts ...Option) error {
	signed, err := token.Sign([]byte(value), m.keys[0])
	if err != nil {
		return fmt.Errorf("failed to sign cookie: %w", err)
	}
	m.Set(w, name, signed, opts...)
	return nil
}

// GetSigned returns ErrInvalidSignature when no configured key verifies the value.
func (m *Manager) GetSigned(r *http.Request, name string) (string, error) {
	signed, err := m.Get(r, name)
	if err != nil {
		return "", err
	}

	for _, k := range m.keys {
		if v, err := token.Verify(signed, k); err == nil {
			return string(v), nil
		}
	}
	return "", ErrInvalidSignature
}
