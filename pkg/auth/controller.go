package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrymomot/authflow/pkg/cache"
	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/logger"
)

// latchCapacity bounds how many distinct codes one controller remembers.
const latchCapacity = 64

// Storage is what a Controller persists into. Session holds the durable
// session record and the state token; Tiers back the PendingProfileStore.
type Storage struct {
	Session      kvstore.Store
	SessionCodec Codec
	Tiers        []Tier
}

// Controller orchestrates the flow for one client. It is safe for concurrent use.
type Controller struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	sessions  *SessionStore
	pending   *PendingProfileStore
	keeper    *StateKeeper
	initiator *Initiator
	resolver  *Resolver
	signup    *SignupCompletion

	mu     sync.Mutex
	latch  *cache.LRU[string, struct{}]
	signal *Signal
	closed bool
}

type controllerOptions struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	phone  PhoneNormalizer
	strict *bool
}

// Option configures a Controller.
type Option func(*controllerOptions)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *controllerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *controllerOptions) { o.cfg = cfg }
}

// WithStrictState aborts callbacks whose state mismatches or is missing from
// the redirect, and fails BeginAuth when the state cannot be persisted.
func WithStrictState(strict bool) Option {
	return func(o *controllerOptions) { o.strict = &strict }
}

// WithPhoneNormalizer replaces NormalizeKoreanMobile.
func WithPhoneNormalizer(fn PhoneNormalizer) Option {
	return func(o *controllerOptions) { o.phone = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *controllerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewController wires the flow components over storage.
func NewController(backend Backend, storage Storage, opts ...Option) *Controller {
	o := controllerOptions{cfg: DefaultConfig(), logger: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.strict != nil {
		o.cfg.StrictState = *o.strict
	}

	c := &Controller{
		cfg:     o.cfg,
		backend: backend,
		logger:  o.logger,
		now:     o.now,
		latch:   cache.New[string, struct{}](latchCapacity),
	}
	c.sessions = NewSessionStore(storage.Session, storage.SessionCodec, o.cfg.SessionTTL, o.logger)
	c.pending = NewPendingProfileStore(storage.Tiers, o.logger)
	c.keeper = NewStateKeeper(storage.Session, o.cfg.StateTTL)
	c.initiator = NewInitiator(backend, c.keeper, o.cfg.StrictState, o.logger)
	c.resolver = newResolver(resolverDeps{
		backend:  backend,
		keeper:   c.keeper,
		sessions: c.sessions,
		pending:  c.pending,
		cfg:      o.cfg,
		logger:   o.logger,
		now:      o.now,
		claim:    c.claim,
		closed:   c.isClosed,
	})
	c.signup = newSignupCompletion(backend, c.pending, c.sessions, o.phone, o.logger, o.now)
	return c
}

// Init loads a previously persisted session.
func (c *Controller) Init(ctx context.Context) error {
	return c.sessions.Init(ctx)
}

// BeginAuth starts an authorization attempt.
func (c *Controller) BeginAuth(ctx context.Context, forceReauth bool) (RedirectInstruction, error) {
	return c.initiator.Begin(ctx, forceReauth)
}

// RestartAuth drops leftovers of an abandoned attempt and starts a new one
// that always shows the provider's account picker.
func (c *Controller) RestartAuth(ctx context.Context) (RedirectInstruction, error) {
	if err := c.pending.Clear(ctx); err != nil {
		c.logger.WarnContext(ctx, "pending profile not cleared on restart", logger.Error(err))
	}
	if err := c.keeper.Discard(ctx); err != nil {
		c.logger.WarnContext(ctx, "state not discarded on restart", logger.Error(err))
	}
	return c.initiator.Begin(ctx, true)
}

// ResolveCallback resolves a provider redirect. Repeated calls for the same
// code are no-ops returning OutcomeDuplicate.
func (c *Controller) ResolveCallback(ctx context.Context, query url.Values) (Resolution, error) {
	res, err := c.resolver.Resolve(ctx, ParseCallback(query))
	if err == nil && res.Outcome == OutcomeLoggedIn {
		c.emit(SignalLoginComplete, loginMessage(res))
	}
	return res, err
}

// CompleteSignup submits the signup form. explicit may carry the pending
// profile handed back by the caller; otherwise it is recovered from storage.
func (c *Controller) CompleteSignup(ctx context.Context, fields SignupFields, explicit *PendingProfile, avatar *Avatar) (SignupOutcome, error) {
	out, err := c.signup.Submit(ctx, fields, explicit, avatar)
	if err != nil {
		return out, err
	}
	msg := out.Message
	if msg == "" {
		msg = "Signup complete."
	}
	c.emit(SignalSignupComplete, msg)
	return out, nil
}

// UpdateIdentity overwrites the identity of the current session.
func (c *Controller) UpdateIdentity(ctx context.Context, id Identity) error {
	sess, ok := c.sessions.Read()
	if !ok {
		return NewError(CodeIdentityLost, "no active session", nil)
	}
	if id.UserID == "" {
		id.UserID = sess.Identity.UserID
	}
	sess.Identity = id
	return c.sessions.Write(ctx, sess)
}

// Logout invalidates the session remotely, then clears all local state even
// if the remote call failed. The remote error is returned for reporting.
func (c *Controller) Logout(ctx context.Context) error {
	remoteErr := c.backend.Logout(ctx)

	if err := c.sessions.Clear(ctx); err != nil {
		c.logger.WarnContext(ctx, "durable session not cleared", logger.Error(err))
	}
	if err := c.pending.Clear(ctx); err != nil {
		c.logger.WarnContext(ctx, "pending profile not cleared", logger.Error(err))
	}
	if err := c.keeper.Discard(ctx); err != nil {
		c.logger.WarnContext(ctx, "state not discarded", logger.Error(err))
	}
	c.latch.Clear()

	if remoteErr != nil {
		c.logger.WarnContext(ctx, "remote logout failed; local state cleared", logger.Error(remoteErr))
		return fmt.Errorf("remote logout failed: %w", remoteErr)
	}
	return nil
}

// CurrentSession returns the session, if any.
func (c *Controller) CurrentSession() (Session, bool) {
	return c.sessions.Read()
}

// IsAuthenticated is derived from the SessionStore on every call.
func (c *Controller) IsAuthenticated() bool {
	s, ok := c.sessions.Read()
	return ok && s.Authenticated
}

// PendingProfile returns the recoverable signup profile, for prefilling forms.
func (c *Controller) PendingProfile(ctx context.Context) (PendingProfile, bool) {
	return c.pending.Recover(ctx)
}

// TakeSignal returns the last outcome signal without clearing it.
func (c *Controller) TakeSignal() (Signal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signal == nil {
		return Signal{}, false
	}
	return *c.signal, true
}

// ClearSignal drops the outcome signal.
func (c *Controller) ClearSignal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signal = nil
}

// Close marks the controller torn down. In-flight exchanges finish but their
// results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// claim is the idempotency latch: it returns true only for the first call
// with a given code.
func (c *Controller) claim(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.latch.Get(code); seen {
		return false
	}
	c.latch.Set(code, struct{}{}, 0)
	return true
}

func (c *Controller) emit(kind SignalKind, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signal = &Signal{Kind: kind, Message: msg, Navigate: c.cfg.HomePath, At: c.now()}
}

func loginMessage(res Resolution) string {
	if res.Message != "" {
		return res.Message
	}
	if res.Session != nil && res.Session.Identity.Nickname != "" {
		return fmt.Sprintf("Welcome back, %s.", res.Session.Identity.Nickname)
	}
	return "Signed in."
}
