package authhttp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/cache"
	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/logger"
)

// Factory builds the controller for a client.
type Factory func(ctx context.Context, clientID string) (*auth.Controller, error)

// Stores are the stores shared by every client. Keys are namespaced per
// client with kvstore.WithPrefix.
type Stores struct {
	// Session holds the durable session record and the state token.
	Session      kvstore.Store
	SessionCodec auth.Codec
	// Memory is the fast pending-profile tier.
	Memory kvstore.Store
	// Durable is the pending-profile tier that survives restarts. Optional.
	Durable      kvstore.Store
	DurableCodec auth.Codec
}

// BackendFunc returns the backend for a client. store is the client's
// namespace in the session store; backends that carry per-user transport
// state (cookies) keep it there and must not be shared between clients.
type BackendFunc func(clientID string, store kvstore.Store) (auth.Backend, error)

// NewFactory returns a Factory building controllers over stores.
func NewFactory(backend BackendFunc, stores Stores, cfg auth.Config, opts ...auth.Option) Factory {
	return func(_ context.Context, clientID string) (*auth.Controller, error) {
		prefix := "authflow:" + clientID + ":"
		session := kvstore.WithPrefix(stores.Session, prefix)

		b, err := backend(clientID, session)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend: %w", err)
		}

		var durable kvstore.Store
		if stores.Durable != nil {
			durable = kvstore.WithPrefix(stores.Durable, prefix)
		}
		tiers := auth.DefaultTiers(kvstore.WithPrefix(stores.Memory, prefix), durable, cfg)
		if len(tiers) > 1 && stores.DurableCodec != nil {
			tiers[1].Codec = stores.DurableCodec
		}

		controllerOpts := append([]auth.Option{auth.WithConfig(cfg)}, opts...)
		return auth.NewController(b, auth.Storage{
			Session:      session,
			SessionCodec: stores.SessionCodec,
			Tiers:        tiers,
		}, controllerOpts...), nil
	}
}

// Registry keeps live controllers by client id. Idle controllers are closed
// and dropped; the next request rebuilds them from storage.
type Registry struct {
	factory Factory
	idle    time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	clients *cache.LRU[string, *auth.Controller]
	build   singleflight.Group
}

// NewRegistry creates a registry holding at most capacity controllers.
func NewRegistry(factory Factory, capacity int, idle time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	return &Registry{
		factory: factory,
		idle:    idle,
		logger:  log,
		clients: cache.New[string, *auth.Controller](capacity, cache.WithEvictCallback(func(_ string, c *auth.Controller) {
			c.Close()
		})),
	}
}

// Get returns the controller for clientID, creating and initialising it on
// first use. Concurrent first requests for one client share a single build;
// builds for different clients run in parallel.
func (r *Registry) Get(ctx context.Context, clientID string) (*auth.Controller, error) {
	if r.factory == nil {
		return nil, ErrNoFactory
	}
	if c, ok := r.lookup(clientID); ok {
		return c, nil
	}

	v, err, _ := r.build.Do(clientID, func() (any, error) {
		if c, ok := r.lookup(clientID); ok {
			return c, nil
		}
		// Shared by every waiter, so one caller's cancellation must not
		// abort the others.
		buildCtx := context.WithoutCancel(ctx)

		c, err := r.factory(buildCtx, clientID)
		if err != nil {
			return nil, err
		}
		if err := c.Init(buildCtx); err != nil {
			r.logger.WarnContext(ctx, "client session not restored",
				logger.ClientID(clientID),
				logger.Error(err),
			)
		}

		r.mu.Lock()
		r.clients.Set(clientID, c, r.idle)
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*auth.Controller), nil
}

// lookup returns a live controller and slides its idle deadline.
func (r *Registry) lookup(clientID string) (*auth.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients.Get(clientID)
	if ok {
		r.clients.Set(clientID, c, r.idle)
	}
	return c, ok
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	return r.clients.Len()
}

// Close drops every controller. Requests already holding one finish normally.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients.Clear()
}
