package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
)

func TestIssueState(t *testing.T) {
	t.Parallel()

	seen := map[string]struct{}{}
	for range 100 {
		s, err := IssueState()
		require.NoError(t, err)
		assert.Len(t, s, 43)
		assert.NotContains(t, seen, s)
		seen[s] = struct{}{}
	}
}

func TestCompareState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		received, stored string
		want             StateCheck
		ok               bool
	}{
		{"s1", "s1", StateMatch, true},
		{"s2", "s1", StateMismatch, false},
		{"s1", "", StateMissingStored, true},
		{"", "", StateMissingStored, true},
		{"", "s1", StateMissingReceived, true},
	}
	for _, tt := range tests {
		got := CompareState(tt.received, tt.stored)
		assert.Equal(t, tt.want, got, "%q vs %q", tt.received, tt.stored)
		assert.Equal(t, tt.ok, got.OK())
	}
}

func TestStateKeeper(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("consumed on match and mismatch", func(t *testing.T) {
		t.Parallel()
		store := kvstore.NewMemory(0, nil)
		k := NewStateKeeper(store, time.Minute)

		require.NoError(t, k.Save(ctx, "s1"))
		check, err := k.ValidateAndConsume(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, StateMatch, check)

		check, err = k.ValidateAndConsume(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, StateMissingStored, check, "token must be single use")

		require.NoError(t, k.Save(ctx, "s1"))
		check, _ = k.ValidateAndConsume(ctx, "other")
		assert.Equal(t, StateMismatch, check)
		_, err = store.Get(ctx, stateKey)
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("storage failure", func(t *testing.T) {
		t.Parallel()
		k := NewStateKeeper(brokenStore{}, time.Minute)
		assert.Error(t, k.Save(ctx, "s1"))
		check, err := k.ValidateAndConsume(ctx, "s1")
		assert.Error(t, err)
		assert.Equal(t, StateMissingStored, check)
	})
}
