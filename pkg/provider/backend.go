package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/authflow/pkg/accounts"
	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/file"
	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/logger"
	"github.com/dmitrymomot/authflow/pkg/validator"
)

// defaultProfileTTL matches the durable pending-profile tier, so signup can
// resume for as long as the pending profile itself survives.
const defaultProfileTTL = 24 * time.Hour

// Backend resolves codes through an Adapter and keeps accounts locally.
// Subjects resolved by ExchangeCode are remembered in a kvstore; only those
// may complete signup.
type Backend struct {
	adapter  Adapter
	accounts *accounts.Service
	avatars  *file.Avatars
	profiles kvstore.Store
	ttl      time.Duration
	logger   *slog.Logger
}

var _ auth.Backend = (*Backend)(nil)

type BackendOption func(*Backend)

func WithLogger(l *slog.Logger) BackendOption {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithAvatars enables storing avatars uploaded with signup.
func WithAvatars(a *file.Avatars) BackendOption {
	return func(b *Backend) { b.avatars = a }
}

// WithProfileStore keeps resolved subjects in store. Share it (Redis)
// between replicas so signup survives restarts and load balancing.
// Defaults to an in-process store.
func WithProfileStore(store kvstore.Store) BackendOption {
	return func(b *Backend) {
		if store != nil {
			b.profiles = store
		}
	}
}

// WithProfileTTL bounds how long a resolved profile may be used for signup.
func WithProfileTTL(ttl time.Duration) BackendOption {
	return func(b *Backend) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

func NewBackend(adapter Adapter, svc *accounts.Service, opts ...BackendOption) *Backend {
	b := &Backend{
		adapter:  adapter,
		accounts: svc,
		profiles: kvstore.NewMemory(0, nil),
		ttl:      defaultProfileTTL,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) GetAuthorizationURL(_ context.Context, forceReauth bool) (auth.AuthorizationURL, error) {
	state, err := auth.IssueState()
	if err != nil {
		return auth.AuthorizationURL{}, err
	}
	return auth.AuthorizationURL{URL: b.adapter.AuthURL(state, forceReauth), State: state}, nil
}

func (b *Backend) ExchangeCode(ctx context.Context, code string) (auth.ExchangeResult, error) {
	p, err := b.adapter.ResolveProfile(ctx, code)
	if err != nil {
		return auth.ExchangeResult{}, err
	}

	acc, err := b.accounts.Find(ctx, claimsOf(p))
	switch {
	case err == nil:
		id := identityOf(acc)
		b.logger.InfoContext(ctx, "provider login",
			logger.Provider(b.adapter.Name()),
			logger.UserID(id.UserID),
		)
		return auth.ExchangeResult{Identity: &id, Message: "Logged in."}, nil

	case errors.Is(err, accounts.ErrNotFound):
		if err := b.rememberProfile(ctx, p); err != nil {
			return auth.ExchangeResult{}, auth.NewError(auth.CodeNetworkFailure, "failed to keep provider profile", err)
		}
		b.logger.InfoContext(ctx, "provider subject needs signup",
			logger.Provider(b.adapter.Name()),
			logger.ExternalID(p.ExternalID),
		)
		return auth.ExchangeResult{
			NeedsSignup: true,
			Pending: &auth.PendingProfile{
				ExternalID:  p.ExternalID,
				Email:       p.Email,
				DisplayName: p.Nickname,
				AvatarURL:   p.AvatarURL,
			},
			Message: "Signup required.",
		}, nil

	default:
		return auth.ExchangeResult{}, auth.NewError(auth.CodeNetworkFailure, "account lookup failed", err)
	}
}

// CompleteSignup registers the subject, linking an existing account that
// shares email or phone. The subject must have been resolved by this
// Backend within the profile TTL.
func (b *Backend) CompleteSignup(ctx context.Context, req auth.SignupRequest) (auth.SignupResult, error) {
	p, err := b.resolvedProfile(ctx, req.ExternalID)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		return auth.SignupResult{}, auth.NewError(auth.CodeIdentityLost, "provider profile expired, sign in again", nil)
	case err != nil:
		return auth.SignupResult{}, auth.NewError(auth.CodeNetworkFailure, "failed to load provider profile", err)
	}

	avatarURL := b.storeAvatar(ctx, p, req.Avatar)

	acc, outcome, err := b.accounts.Register(ctx, accounts.Registration{
		Name:      req.Fields.Name,
		Phone:     req.Fields.Phone,
		Email:     req.Fields.Email,
		BirthDate: req.Fields.BirthDate,
		Address:   req.Fields.Address,
		Nickname:  req.Fields.Nickname,
		AvatarURL: avatarURL,
		Claims:    claimsOf(p),
	})
	if err != nil {
		return auth.SignupResult{}, registrationError(err)
	}
	if err := b.profiles.Delete(ctx, b.profileKey(req.ExternalID)); err != nil {
		b.logger.WarnContext(ctx, "failed to forget provider profile",
			logger.Provider(b.adapter.Name()),
			logger.ExternalID(req.ExternalID),
			logger.Error(err),
		)
	}

	msg := "Signup complete."
	if outcome == accounts.Linked {
		msg = "Linked to your existing account."
	}
	return auth.SignupResult{Identity: identityOf(acc), Message: msg}, nil
}

// Logout has nothing to end remotely; the provider session is not ours.
func (b *Backend) Logout(context.Context) error { return nil }

func (b *Backend) profileKey(externalID string) string {
	return "provider:" + b.adapter.Name() + ":profile:" + externalID
}

func (b *Backend) rememberProfile(ctx context.Context, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return b.profiles.Set(ctx, b.profileKey(p.ExternalID), data, b.ttl)
}

// resolvedProfile returns kvstore.ErrNotFound for subjects this backend never
// resolved, or whose record expired or is unreadable.
func (b *Backend) resolvedProfile(ctx context.Context, externalID string) (Profile, error) {
	if externalID == "" {
		return Profile{}, kvstore.ErrNotFound
	}
	data, err := b.profiles.Get(ctx, b.profileKey(externalID))
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil || p.ExternalID != externalID {
		return Profile{}, kvstore.ErrNotFound
	}
	return p, nil
}

// storeAvatar returns the uploaded avatar URL, or "" when there is none or
// the upload failed. Signup proceeds without it.
func (b *Backend) storeAvatar(ctx context.Context, p Profile, a *auth.Avatar) string {
	if a == nil || len(a.Data) == 0 || b.avatars == nil {
		return ""
	}

	obj, err := b.avatars.Upload(ctx, b.adapter.Name()+"_"+p.ExternalID, a.Filename, a.Data)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to store avatar",
			logger.Provider(b.adapter.Name()),
			logger.ExternalID(p.ExternalID),
			logger.Error(err),
		)
		return ""
	}
	return obj.URL
}

func registrationError(err error) error {
	var dup *accounts.DuplicateError
	switch {
	case errors.As(err, &dup):
		fields := make([]validator.Rule, 0, len(dup.Fields))
		for field, msg := range dup.Fields {
			fields = append(fields, validator.Fail(field, msg))
		}
		return auth.NewError(auth.CodeValidationFailed, "some details are already in use", validator.Apply(fields...))
	case errors.Is(err, accounts.ErrAlreadyRegistered):
		return auth.NewError(auth.CodeValidationFailed, "this account is already registered", err)
	case errors.Is(err, accounts.ErrMissingField):
		return auth.NewError(auth.CodeValidationFailed, err.Error(), err)
	default:
		return auth.NewError(auth.CodeNetworkFailure, "account registration failed", fmt.Errorf("failed to register account: %w", err))
	}
}

func claimsOf(p Profile) accounts.Claims {
	return accounts.Claims{
		ExternalID:    p.ExternalID,
		Email:         p.Email,
		Nickname:      p.Nickname,
		AvatarURL:     p.AvatarURL,
		EmailVerified: p.EmailVerified,
	}
}

func identityOf(a accounts.Account) auth.Identity {
	return auth.Identity{
		UserID:    a.ID.String(),
		Name:      a.Name,
		Nickname:  a.Nickname,
		Email:     a.Email,
		AvatarURL: a.AvatarURL,
		Verified:  a.Verified,
	}
}
