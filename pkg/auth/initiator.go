package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/dmitrymomot/authflow/pkg/logger"
)

// Initiator starts an authorization attempt.
type Initiator struct {
	backend Backend
	keeper  *StateKeeper
	strict  bool
	logger  *slog.Logger
}

// NewInitiator creates an Initiator. With strict set, a state token that
// cannot be persisted fails the attempt instead of only being logged.
func NewInitiator(backend Backend, keeper *StateKeeper, strict bool, log *slog.Logger) *Initiator {
	if log == nil {
		log = logger.Discard()
	}
	return &Initiator{backend: backend, keeper: keeper, strict: strict, logger: log}
}

// Begin asks the backend for an authorization URL and persists its state.
// forceReauth asks the provider to show the account picker again.
func (i *Initiator) Begin(ctx context.Context, forceReauth bool) (RedirectInstruction, error) {
	au, err := i.backend.GetAuthorizationURL(ctx, forceReauth)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			return RedirectInstruction{}, err
		}
		return RedirectInstruction{}, NewError(CodeProviderURLUnavailable, ErrProviderURLUnavailable.Message, err)
	}

	u, err := url.Parse(au.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return RedirectInstruction{}, NewError(CodeProviderURLUnavailable, "backend returned an invalid authorization URL", err)
	}

	state := au.State
	if state == "" {
		// Backends that do not correlate attempts still get one on our side.
		state = u.Query().Get("state")
	}
	if state == "" {
		if state, err = IssueState(); err != nil {
			return RedirectInstruction{}, NewError(CodeStateUnavailable, ErrStateUnavailable.Message, err)
		}
		q := u.Query()
		q.Set("state", state)
		u.RawQuery = q.Encode()
	}

	if err := i.keeper.Save(ctx, state); err != nil {
		if i.strict {
			return RedirectInstruction{}, NewError(CodeStateUnavailable, ErrStateUnavailable.Message, err)
		}
		i.logger.WarnContext(ctx, "state token not persisted; callback will not be correlated",
			logger.Component("initiator"), logger.Error(err))
	}

	i.logger.DebugContext(ctx, "authorization started",
		logger.Component("initiator"),
		logger.Secret("state", state),
		slog.Bool("force_reauth", forceReauth),
	)
	return RedirectInstruction{URL: u.String(), State: state}, nil
}
