package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/validator"
)

func TestNormalizeKoreanMobile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
		ok       bool
	}{
		{"010-1234-5678", "010-1234-5678", true},
		{"01012345678", "010-1234-5678", true},
		{" 010 1234 5678 ", "010-1234-5678", true},
		{"0100000", "", false},
		{"011-123-4567", "", false},
		{"02-123-4567", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeKoreanMobile(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, ErrPhoneFormat, tt.in)
		}
	}
}

func TestCompleteSignup_IdentityLost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.ctrl.CompleteSignup(ctx, SignupFields{Name: "A", Phone: "010-1234-5678"}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentityLost)

	rec := RecoveryFor(err)
	assert.Equal(t, RecoveryRestart, rec.Action)
	assert.Equal(t, DefaultRestartDelay, rec.Delay)

	_, ok := env.ctrl.CurrentSession()
	assert.False(t, ok)
	_, ok = env.ctrl.TakeSignal()
	assert.False(t, ok)
	env.backend.AssertNotCalled(t, "CompleteSignup", mock.Anything, mock.Anything)
}

func TestCompleteSignup_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv()
	explicit := &PendingProfile{ExternalID: "E1"}

	_, err := env.ctrl.CompleteSignup(ctx, SignupFields{
		Name:      " ",
		Phone:     "0100000",
		Email:     "not-an-email",
		BirthDate: "1990/01/01",
	}, explicit, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)

	errs := validator.ExtractValidationErrors(err)
	require.NotNil(t, errs)
	for _, field := range []string{"name", "phone_number", "email", "birth_date"} {
		assert.True(t, errs.Has(field), field)
	}

	_, err = env.ctrl.CompleteSignup(ctx, SignupFields{Name: "A"}, explicit, nil)
	assert.True(t, validator.ExtractValidationErrors(err).Has("phone_number"))
	env.backend.AssertNotCalled(t, "CompleteSignup", mock.Anything, mock.Anything)
}

func TestCompleteSignup_ExplicitProfileWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv()
	require.NoError(t, env.tier1.Set(ctx, pendingKey, []byte(`{"external_id":"stored"}`), 0))

	avatar := &Avatar{Filename: "me.png", ContentType: "image/png", Data: []byte{1, 2, 3}}
	env.backend.On("CompleteSignup", mock.Anything, mock.MatchedBy(func(req SignupRequest) bool {
		return req.ExternalID == "explicit" && req.Avatar == avatar && req.Fields.BirthDate == "1990-01-31"
	})).Return(SignupResult{Identity: Identity{UserID: "u2"}}, nil).Once()

	out, err := env.ctrl.CompleteSignup(ctx, SignupFields{Name: "A", Phone: "010-1111-2222", BirthDate: "1990-01-31"},
		&PendingProfile{ExternalID: "explicit"}, avatar)
	require.NoError(t, err)
	assert.Equal(t, "u2", out.Session.Identity.UserID)

	sig, ok := env.ctrl.TakeSignal()
	require.True(t, ok)
	assert.Equal(t, "Signup complete.", sig.Message)
}

func TestCompleteSignup_FailureKeepsPendingAndAllowsRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv()
	require.NoError(t, env.tier2.Set(ctx, pendingKey, []byte(`{"external_id":"E1"}`), 0))

	fields := SignupFields{Name: "A", Phone: "010-1111-2222"}
	env.backend.On("CompleteSignup", mock.Anything, mock.Anything).
		Return(SignupResult{}, &Error{Code: CodeRateLimited}).Once()
	env.backend.On("CompleteSignup", mock.Anything, mock.Anything).
		Return(SignupResult{Identity: Identity{UserID: "u3"}}, nil).Once()

	_, err := env.ctrl.CompleteSignup(ctx, fields, nil, nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, RecoveryFor(err).RetryAllowed)
	_, ok := env.ctrl.PendingProfile(ctx)
	assert.True(t, ok)
	assert.False(t, env.ctrl.IsAuthenticated())

	_, err = env.ctrl.CompleteSignup(ctx, fields, nil, nil)
	require.NoError(t, err)
	assert.True(t, env.ctrl.IsAuthenticated())
}

func TestCompleteSignup_InProgressGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv()
	explicit := &PendingProfile{ExternalID: "E1"}
	fields := SignupFields{Name: "A", Phone: "010-1111-2222"}

	started := make(chan struct{})
	release := make(chan struct{})
	env.backend.On("CompleteSignup", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(started); <-release }).
		Return(SignupResult{Identity: Identity{UserID: "u4"}}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := env.ctrl.CompleteSignup(ctx, fields, explicit, nil)
		assert.NoError(t, err)
	}()

	<-started
	_, err := env.ctrl.CompleteSignup(ctx, fields, explicit, nil)
	assert.ErrorIs(t, err, ErrSignupInProgress)

	close(release)
	wg.Wait()
	env.backend.AssertNumberOfCalls(t, "CompleteSignup", 1)
}
