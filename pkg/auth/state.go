package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
)

const stateKey = "auth:state"

// StateCheck is the outcome of comparing a received state with the stored one.
type StateCheck string

const (
	StateMatch           StateCheck = "MATCH"
	StateMismatch        StateCheck = "MISMATCH"
	StateMissingStored   StateCheck = "MISSING_STORED"
	StateMissingReceived StateCheck = "MISSING_RECEIVED"
)

// OK reports whether the flow may continue under the lenient policy.
func (c StateCheck) OK() bool { return c != StateMismatch }

// IssueState returns 32 random bytes encoded as unpadded base64url.
func IssueState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CompareState classifies received against stored in constant time.
func CompareState(received, stored string) StateCheck {
	switch {
	case stored == "":
		return StateMissingStored
	case received == "":
		return StateMissingReceived
	case subtle.ConstantTimeCompare([]byte(received), []byte(stored)) != 1:
		return StateMismatch
	default:
		return StateMatch
	}
}

// StateKeeper persists the state token between BeginAuth and the redirect.
type StateKeeper struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewStateKeeper stores tokens in store for ttl.
func NewStateKeeper(store kvstore.Store, ttl time.Duration) *StateKeeper {
	return &StateKeeper{store: store, ttl: ttl}
}

// Save replaces any previously stored token.
func (k *StateKeeper) Save(ctx context.Context, state string) error {
	if err := k.store.Set(ctx, stateKey, []byte(state), k.ttl); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// ValidateAndConsume takes the stored token, so it is gone after this call
// whatever the outcome, and compares it with received. A storage error other
// than absence is returned alongside StateMissingStored.
func (k *StateKeeper) ValidateAndConsume(ctx context.Context, received string) (StateCheck, error) {
	stored, err := k.store.Take(ctx, stateKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return CompareState(received, ""), nil
		}
		// Make sure a token that could not be read is not left behind.
		_ = k.store.Delete(ctx, stateKey)
		return StateMissingStored, fmt.Errorf("failed to consume state: %w", err)
	}
	return CompareState(received, string(stored)), nil
}

// Discard drops the stored token without comparing.
func (k *StateKeeper) Discard(ctx context.Context) error {
	return k.store.Delete(ctx, stateKey)
}
