package auth

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
)

// MockBackend is a mock implementation of Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetAuthorizationURL(ctx context.Context, forceReauth bool) (AuthorizationURL, error) {
	args := m.Called(ctx, forceReauth)
	return args.Get(0).(AuthorizationURL), args.Error(1)
}

func (m *MockBackend) ExchangeCode(ctx context.Context, code string) (ExchangeResult, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(ExchangeResult), args.Error(1)
}

func (m *MockBackend) CompleteSignup(ctx context.Context, req SignupRequest) (SignupResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(SignupResult), args.Error(1)
}

func (m *MockBackend) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var errStoreDown = errors.New("store down")

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errStoreDown }

func (brokenStore) Delete(context.Context, string) error { return errStoreDown }

func (brokenStore) Take(context.Context, string) ([]byte, error) { return nil, errStoreDown }

var _ kvstore.Store = brokenStore{}

// testEnv bundles a controller with the raw stores behind it.
type testEnv struct {
	backend *MockBackend
	session *kvstore.Memory
	tier1   *kvstore.Memory
	tier2   *kvstore.Memory
	ctrl    *Controller
}

func newTestEnv(opts ...Option) *testEnv {
	env := &testEnv{
		backend: &MockBackend{},
		session: kvstore.NewMemory(0, nil),
		tier1:   kvstore.NewMemory(0, nil),
		tier2:   kvstore.NewMemory(0, nil),
	}
	env.ctrl = NewController(env.backend, Storage{
		Session: env.session,
		Tiers: []Tier{
			{Name: "memory", Store: env.tier1, TTL: time.Minute},
			{Name: "durable", Store: env.tier2, TTL: time.Hour},
		},
	}, opts...)
	return env
}

func (e *testEnv) storedState(ctx context.Context) (string, bool) {
	b, err := e.session.Get(ctx, stateKey)
	if err != nil {
		return "", false
	}
	return string(b), true
}
