package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/authflow/pkg/logger"
	sm "github.com/dmitrymomot/authflow/pkg/statemachine"
)

// Resolver states.
const (
	StateIdle             = sm.StringState("IDLE")
	StateParsed           = sm.StringState("PARSED")
	StateStateValidated   = sm.StringState("STATE_VALIDATED")
	StateCodeExchanged    = sm.StringState("CODE_EXCHANGED")
	StateResolvedExisting = sm.StringState("RESOLVED_EXISTING")
	StateResolvedNew      = sm.StringState("RESOLVED_NEW")
	StateTerminal         = sm.StringState("TERMINAL")
	StateDiscarded        = sm.StringState("DISCARDED")
	StateErrored          = sm.StringState("ERRORED")
)

const (
	evParse    = sm.StringEvent("parse")
	evValidate = sm.StringEvent("validate")
	evExchange = sm.StringEvent("exchange")
	evResolve  = sm.StringEvent("resolve")
	evFinish   = sm.StringEvent("finish")
	evDiscard  = sm.StringEvent("discard")
	evFail     = sm.StringEvent("fail")
)

// Outcome summarises a resolution for the caller.
type Outcome string

const (
	OutcomeLoggedIn    Outcome = "LOGGED_IN"
	OutcomeNeedsSignup Outcome = "NEEDS_SIGNUP"
	OutcomeDuplicate   Outcome = "DUPLICATE"
	OutcomeDiscarded   Outcome = "DISCARDED"
	OutcomeErrored     Outcome = "ERRORED"
)

// CallbackParams are the provider redirect's query parameters.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback extracts CallbackParams from a redirect query.
func ParseCallback(q url.Values) CallbackParams {
	return CallbackParams{
		Code:             strings.TrimSpace(q.Get("code")),
		State:            strings.TrimSpace(q.Get("state")),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: q.Get("error_description"),
	}
}

// Resolution is the result of one callback resolution.
type Resolution struct {
	Outcome    Outcome         `json:"outcome"`
	Final      string          `json:"final_state"`
	StateCheck StateCheck      `json:"state_check,omitempty"`
	Session    *Session        `json:"session,omitempty"`
	Pending    *PendingProfile `json:"pending,omitempty"`
	Message    string          `json:"message,omitempty"`
	Navigate   string          `json:"navigate,omitempty"`
	Trail      []string        `json:"trail"`
	Err        error           `json:"-"`
}

// resolverDeps are provided by the Controller that owns the resolver.
type resolverDeps struct {
	backend  Backend
	keeper   *StateKeeper
	sessions *SessionStore
	pending  *PendingProfileStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	// claim sets the idempotency latch for code and reports whether this
	// caller is the first.
	claim func(code string) bool
	// closed reports whether the owner was torn down.
	closed func() bool
}

// Resolver drives one state machine per callback.
type Resolver struct {
	resolverDeps
}

// attempt is the data threaded through machine actions.
type attempt struct {
	params   CallbackParams
	check    StateCheck
	exchange ExchangeResult
	res      *Resolution
}

func newResolver(deps resolverDeps) *Resolver {
	return &Resolver{resolverDeps: deps}
}

func (r *Resolver) machine(res *Resolution) sm.StateMachine {
	needsSignup := func(_ context.Context, _ sm.State, _ sm.Event, data any) bool {
		return data.(*attempt).exchange.NeedsSignup
	}
	isExisting := func(_ context.Context, _ sm.State, _ sm.Event, data any) bool {
		return !data.(*attempt).exchange.NeedsSignup
	}

	return sm.MustNew(StateIdle,
		sm.WithTransition(StateIdle, StateParsed, evParse),
		sm.WithTransition(StateParsed, StateStateValidated, evValidate),
		sm.WithTransition(StateStateValidated, StateCodeExchanged, evExchange),
		sm.WithTransition(StateCodeExchanged, StateResolvedNew, evResolve,
			sm.WithGuard(needsSignup), sm.WithAction(r.storePending)),
		sm.WithTransition(StateCodeExchanged, StateResolvedExisting, evResolve,
			sm.WithGuard(isExisting), sm.WithAction(r.storeSession)),
		sm.WithTransition(StateResolvedExisting, StateTerminal, evFinish),
		sm.WithTransition(StateResolvedNew, StateTerminal, evFinish),
		sm.WithTransition(StateParsed, StateDiscarded, evDiscard),
		sm.WithTransition(StateCodeExchanged, StateDiscarded, evDiscard),
		sm.WithAnyTransition(StateErrored, evFail),
		sm.WithFinal(StateTerminal, StateDiscarded, StateErrored),
		sm.WithObserver(func(ctx context.Context, from, to sm.State, _ sm.Event) {
			res.Trail = append(res.Trail, to.Name())
			r.logger.DebugContext(ctx, "resolver transition",
				logger.Component("resolver"), logger.Transition(from.Name(), to.Name()))
		}),
	)
}

// Resolve runs the callback through the resolver state machine. The returned
// error is the *Error of an ERRORED resolution and nil otherwise.
func (r *Resolver) Resolve(ctx context.Context, params CallbackParams) (Resolution, error) {
	res := &Resolution{Trail: []string{StateIdle.Name()}}
	m := r.machine(res)
	a := &attempt{params: params, res: res}

	fail := func(err *Error) (Resolution, error) {
		_ = m.Fire(ctx, evFail, a)
		res.Outcome, res.Final, res.Err = OutcomeErrored, m.Current().Name(), err
		r.logger.WarnContext(ctx, "callback resolution failed",
			logger.Component("resolver"), slog.String("code", string(err.Code)), logger.Error(err))
		return *res, err
	}

	if params.Error != "" || params.Code == "" {
		// The attempt is over; its state must not be reusable by a later redirect.
		if err := r.keeper.Discard(ctx); err != nil {
			r.logger.WarnContext(ctx, "failed to discard state", logger.Component("resolver"), logger.Error(err))
		}
	}
	if params.Error != "" {
		msg := params.Error
		if params.ErrorDescription != "" {
			msg += ": " + params.ErrorDescription
		}
		return fail(NewError(CodeProviderError, msg, nil))
	}
	if params.Code == "" {
		return fail(ErrMissingCode)
	}
	_ = m.Fire(ctx, evParse, a)

	// A torn-down controller starts no new exchange and leaves the state and
	// the latch untouched.
	if r.closed() {
		_ = m.Fire(ctx, evDiscard, a)
		r.logger.InfoContext(ctx, "controller closed; callback discarded", logger.Component("resolver"))
		res.Outcome, res.Final = OutcomeDiscarded, m.Current().Name()
		return *res, nil
	}

	// Latch before anything observable happens, so a re-entrant call for the
	// same redirect neither consumes the state nor exchanges again.
	if !r.claim(params.Code) {
		r.logger.InfoContext(ctx, "duplicate callback ignored",
			logger.Component("resolver"), logger.Secret("code", params.Code))
		res.Outcome, res.Final = OutcomeDuplicate, m.Current().Name()
		return *res, nil
	}

	check, err := r.keeper.ValidateAndConsume(ctx, params.State)
	if err != nil {
		r.logger.WarnContext(ctx, "state storage unavailable", logger.Component("resolver"), logger.Error(err))
	}
	a.check, res.StateCheck = check, check
	switch check {
	case StateMismatch, StateMissingReceived:
		if r.cfg.StrictState {
			return fail(NewError(CodeCSRFMismatch, ErrCSRFMismatch.Message, nil))
		}
		r.logger.WarnContext(ctx, "state check failed; continuing under lenient policy",
			logger.Component("resolver"), slog.String("check", string(check)),
			logger.Secret("received", params.State))
	case StateMissingStored:
		r.logger.WarnContext(ctx, "no stored state for callback", logger.Component("resolver"))
	}
	_ = m.Fire(ctx, evValidate, a)

	exch, err := r.backend.ExchangeCode(ctx, params.Code)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fail(NewError(CodeNetworkFailure, ErrNetworkFailure.Message, err))
		}
		return fail(asFlowError(err, CodeNetworkFailure, ErrNetworkFailure.Message))
	}
	if ferr := validateExchange(exch); ferr != nil {
		return fail(ferr)
	}
	a.exchange = exch
	_ = m.Fire(ctx, evExchange, a)

	if r.closed() {
		_ = m.Fire(ctx, evDiscard, a)
		r.logger.InfoContext(ctx, "controller closed during exchange; result discarded", logger.Component("resolver"))
		res.Outcome, res.Final = OutcomeDiscarded, m.Current().Name()
		return *res, nil
	}

	if err := m.Fire(ctx, evResolve, a); err != nil {
		return fail(NewError(CodeUnexpectedResponse, "could not apply exchange result", err))
	}
	res.Message = exch.Message
	if exch.NeedsSignup {
		res.Outcome, res.Navigate = OutcomeNeedsSignup, r.cfg.SignupPath
	} else {
		res.Outcome, res.Navigate = OutcomeLoggedIn, r.cfg.HomePath
	}
	_ = m.Fire(ctx, evFinish, a)
	res.Final = m.Current().Name()
	return *res, nil
}

func validateExchange(exch ExchangeResult) *Error {
	if exch.NeedsSignup {
		if exch.Pending == nil || !exch.Pending.Valid() {
			return NewError(CodeUnexpectedResponse, "signup required but no external identity returned", nil)
		}
		return nil
	}
	if exch.Identity == nil || exch.Identity.UserID == "" {
		return NewError(CodeUnexpectedResponse, "login succeeded but no identity returned", nil)
	}
	return nil
}

func (r *Resolver) storeSession(ctx context.Context, _, _ sm.State, _ sm.Event, data any) error {
	a := data.(*attempt)
	sess := Session{Identity: *a.exchange.Identity, Authenticated: true, CreatedAt: r.now()}
	if err := r.sessions.Write(ctx, sess); err != nil {
		r.logger.WarnContext(ctx, "session not persisted durably", logger.Component("resolver"), logger.Error(err))
	}
	a.res.Session = &sess
	r.logger.InfoContext(ctx, "existing account signed in",
		logger.Component("resolver"), logger.UserID(sess.Identity.UserID))
	return nil
}

// storePending never fails the transition: the profile is also returned to
// the caller, which can pass it back explicitly if every tier was lost.
func (r *Resolver) storePending(ctx context.Context, _, _ sm.State, _ sm.Event, data any) error {
	a := data.(*attempt)
	p := *a.exchange.Pending
	written, err := r.pending.WriteAll(ctx, p)
	if written == 0 {
		r.logger.ErrorContext(ctx, "pending profile not stored in any tier",
			logger.Component("resolver"), logger.ExternalID(p.ExternalID), logger.Error(err))
	}
	a.res.Pending = &p
	r.logger.InfoContext(ctx, "new account needs signup",
		logger.Component("resolver"), logger.ExternalID(p.ExternalID), slog.Int("tiers_written", written))
	return nil
}
