package auth

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NewError(CodeNetworkFailure, "request failed", cause))

	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, CodeNetworkFailure, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(cause))
	assert.Contains(t, err.Error(), "NETWORK_FAILURE: request failed: boom")
}

func TestRecoveryFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Recovery{}, RecoveryFor(nil))

	rl := RecoveryFor(ErrRateLimited)
	assert.Equal(t, RecoveryWait, rl.Action)
	assert.Equal(t, DefaultRateLimitWait, rl.Delay)
	assert.False(t, rl.RetryAllowed)

	assert.Equal(t, 10*time.Second, RecoveryFor(&Error{Code: CodeRateLimited, RetryAfter: 10 * time.Second}).Delay)
	assert.Equal(t, RecoveryAutoRestart, RecoveryFor(ErrCodeExpired).Action)
	assert.Equal(t, RecoveryRestart, RecoveryFor(ErrIdentityLost).Action)

	other := RecoveryFor(errors.New("unknown"))
	assert.Equal(t, RecoveryRetry, other.Action)
	assert.True(t, other.RetryAllowed)
}
