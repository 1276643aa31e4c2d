package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/authflow/pkg/logger"
	"github.com/dmitrymomot/authflow/pkg/sanitizer"
	"github.com/dmitrymomot/authflow/pkg/validator"
)

const (
	birthDateLayout = "2006-01-02"
	maxNameLength   = 50
	maxNickLength   = 30
	maxAddrLength   = 200
)

// SignupOutcome is returned by a successful submission.
type SignupOutcome struct {
	Session Session
	Message string
}

// SignupCompletion finishes account creation for a new external identity.
type SignupCompletion struct {
	backend  Backend
	pending  *PendingProfileStore
	sessions *SessionStore
	phone    PhoneNormalizer
	logger   *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool
}

func newSignupCompletion(backend Backend, pending *PendingProfileStore, sessions *SessionStore, phone PhoneNormalizer, log *slog.Logger, now func() time.Time) *SignupCompletion {
	if phone == nil {
		phone = NormalizeKoreanMobile
	}
	return &SignupCompletion{
		backend:  backend,
		pending:  pending,
		sessions: sessions,
		phone:    phone,
		logger:   log,
		now:      now,
	}
}

// Submit validates fields, resolves the external identity (explicit profile
// first, then the pending store) and creates the account. The session is
// only written on success.
func (s *SignupCompletion) Submit(ctx context.Context, fields SignupFields, explicit *PendingProfile, avatar *Avatar) (SignupOutcome, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return SignupOutcome{}, ErrSignupInProgress
	}
	defer s.inFlight.Store(false)

	profile, ok := s.resolveIdentity(ctx, explicit)
	if !ok {
		s.logger.WarnContext(ctx, "signup without recoverable identity", logger.Component("signup"))
		return SignupOutcome{}, &Error{
			Code:       CodeIdentityLost,
			Message:    ErrIdentityLost.Message,
			RetryAfter: DefaultRestartDelay,
		}
	}

	clean, err := s.normalize(fields, profile)
	if err != nil {
		return SignupOutcome{}, NewError(CodeValidationFailed, ErrValidationFailed.Message, err)
	}

	res, err := s.backend.CompleteSignup(ctx, SignupRequest{
		ExternalID: profile.ExternalID,
		Fields:     clean,
		Avatar:     avatar,
	})
	if err != nil {
		ferr := asFlowError(err, CodeNetworkFailure, ErrNetworkFailure.Message)
		s.logger.WarnContext(ctx, "signup rejected",
			logger.Component("signup"), logger.ExternalID(profile.ExternalID), logger.Error(ferr))
		return SignupOutcome{}, ferr
	}
	if res.Identity.UserID == "" {
		return SignupOutcome{}, NewError(CodeUnexpectedResponse, "signup succeeded but no identity returned", nil)
	}

	sess := Session{Identity: res.Identity, Authenticated: true, CreatedAt: s.now()}
	if err := s.sessions.Write(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "session not persisted durably", logger.Component("signup"), logger.Error(err))
	}
	if err := s.pending.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "pending profile not cleared from every tier", logger.Component("signup"), logger.Error(err))
	}

	s.logger.InfoContext(ctx, "signup completed",
		logger.Component("signup"), logger.UserID(sess.Identity.UserID), logger.ExternalID(profile.ExternalID))
	return SignupOutcome{Session: sess, Message: res.Message}, nil
}

func (s *SignupCompletion) resolveIdentity(ctx context.Context, explicit *PendingProfile) (PendingProfile, bool) {
	if explicit != nil && explicit.Valid() {
		return *explicit, true
	}
	return s.pending.Recover(ctx)
}

// normalize cleans fields, applies profile fallbacks and validates the result.
func (s *SignupCompletion) normalize(in SignupFields, profile PendingProfile) (SignupFields, error) {
	out := SignupFields{
		Name:      sanitizer.Name(in.Name),
		BirthDate: strings.TrimSpace(in.BirthDate),
		Address:   sanitizer.CollapseWhitespace(in.Address),
		Nickname:  sanitizer.Name(in.Nickname),
		Email:     sanitizer.NormalizeEmail(in.Email),
	}
	if out.Email == "" {
		out.Email = sanitizer.NormalizeEmail(profile.Email)
	}
	if out.Nickname == "" {
		out.Nickname = sanitizer.Name(profile.DisplayName)
	}

	rules := []validator.Rule{
		validator.RequiredString("name", out.Name),
		validator.MaxLenString("name", out.Name, maxNameLength),
		validator.Optional(out.Email, validator.ValidEmail("email", out.Email)),
		validator.Optional(out.BirthDate, validator.ValidDate("birth_date", out.BirthDate, birthDateLayout)),
		validator.MaxLenString("custom_nickname", out.Nickname, maxNickLength),
		validator.MaxLenString("address", out.Address, maxAddrLength),
	}

	if strings.TrimSpace(in.Phone) == "" {
		rules = append(rules, validator.RequiredString("phone_number", ""))
	} else if phone, err := s.phone(in.Phone); err != nil {
		rules = append(rules, validator.Fail("phone_number", err.Error()))
	} else {
		out.Phone = phone
	}

	if err := validator.Apply(rules...); err != nil {
		return SignupFields{}, err
	}
	return out, nil
}
