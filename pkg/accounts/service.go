package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dmitrymomot/authflow/pkg/logger"
)

// maxNicknameSuffix bounds the search for a free nickname.
const maxNicknameSuffix = 100

// Claims are what the identity provider says about the user.
type Claims struct {
	ExternalID    string
	Email         string
	Nickname      string
	AvatarURL     string
	EmailVerified bool
}

// Registration is a completed signup form. Empty Email and Nickname fall
// back to Claims.
type Registration struct {
	Name      string
	Phone     string
	Email     string
	BirthDate string
	Address   string
	Nickname  string
	AvatarURL string
	Claims    Claims
}

// Outcome tells whether Register created an account or linked one.
type Outcome int

const (
	Created Outcome = iota + 1
	Linked
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Linked:
		return "linked"
	default:
		return "unknown"
	}
}

// Service applies the registration rules for one provider.
type Service struct {
	dir             Directory
	provider        string
	defaultNickname string
	logger          *slog.Logger
}

type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultNickname sets the nickname prefix used when neither the form
// nor the provider supplies one.
func WithDefaultNickname(n string) ServiceOption {
	return func(s *Service) {
		if n != "" {
			s.defaultNickname = n
		}
	}
}

func NewService(dir Directory, provider string, opts ...ServiceOption) *Service {
	s := &Service{
		dir:             dir,
		provider:        provider,
		defaultNickname: "user",
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider is the provider name accounts are linked under.
func (s *Service) Provider() string { return s.provider }

// Find returns the account linked to the provider subject and refreshes it
// from claims: a missing avatar is filled in, and the account becomes
// verified when the provider vouches for the same email.
func (s *Service) Find(ctx context.Context, c Claims) (Account, error) {
	a, err := s.dir.ByExternalID(ctx, s.provider, c.ExternalID)
	if err != nil {
		return Account{}, err
	}

	changed := false
	if a.AvatarURL == "" && c.AvatarURL != "" {
		a.AvatarURL = c.AvatarURL
		changed = true
	}
	if !a.Verified && c.EmailVerified && c.Email != "" && strings.EqualFold(a.Email, c.Email) {
		a.Verified = true
		changed = true
	}
	if !changed {
		return a, nil
	}

	updated, err := s.dir.Update(ctx, a)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to refresh account from provider claims",
			logger.UserID(a.ID.String()),
			logger.Error(err),
		)
		return a, nil
	}
	return updated, nil
}

// Register links the provider subject to an existing account that shares the
// email or phone, or creates a new account.
func (s *Service) Register(ctx context.Context, r Registration) (Account, Outcome, error) {
	ext := strings.TrimSpace(r.Claims.ExternalID)
	if ext == "" {
		return Account{}, 0, fmt.Errorf("%w: external_id", ErrMissingField)
	}

	if _, err := s.dir.ByExternalID(ctx, s.provider, ext); err == nil {
		return Account{}, 0, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, 0, err
	}

	email := strings.TrimSpace(r.Email)
	if email == "" {
		email = r.Claims.Email
	}
	switch {
	case strings.TrimSpace(r.Name) == "":
		return Account{}, 0, fmt.Errorf("%w: name", ErrMissingField)
	case strings.TrimSpace(r.Phone) == "":
		return Account{}, 0, fmt.Errorf("%w: phone_number", ErrMissingField)
	case email == "":
		return Account{}, 0, fmt.Errorf("%w: email", ErrMissingField)
	}

	if a, ok, err := s.linkable(ctx, email, r.Phone); err != nil {
		return Account{}, 0, err
	} else if ok {
		linked, err := s.link(ctx, a, ext, r.AvatarURL)
		if err != nil {
			return Account{}, 0, err
		}
		return linked, Linked, nil
	}

	nickname, err := s.freeNickname(ctx, s.baseNickname(r, ext))
	if err != nil {
		return Account{}, 0, err
	}

	avatar := r.AvatarURL
	if avatar == "" {
		avatar = r.Claims.AvatarURL
	}

	a, err := s.dir.Create(ctx, Account{
		Login:      s.provider + "_" + ext,
		Provider:   s.provider,
		ExternalID: ext,
		Name:       r.Name,
		Nickname:   nickname,
		Email:      email,
		Phone:      r.Phone,
		BirthDate:  r.BirthDate,
		Address:    r.Address,
		AvatarURL:  avatar,
		Verified:   r.Claims.EmailVerified && strings.EqualFold(email, r.Claims.Email),
	})
	if err != nil {
		return Account{}, 0, err
	}

	s.logger.InfoContext(ctx, "account created",
		logger.UserID(a.ID.String()),
		logger.Provider(s.provider),
	)
	return a, Created, nil
}

// linkable finds an unlinked account sharing email or phone. A match that is
// already linked to another subject is a duplicate.
func (s *Service) linkable(ctx context.Context, email, phone string) (Account, bool, error) {
	dup := map[string]string{}

	for _, lookup := range []struct {
		field string
		find  func() (Account, error)
	}{
		{"email", func() (Account, error) { return s.dir.ByEmail(ctx, email) }},
		{"phone_number", func() (Account, error) { return s.dir.ByPhone(ctx, phone) }},
	} {
		a, err := lookup.find()
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return Account{}, false, err
		case !a.Linked():
			return a, true, nil
		default:
			dup[lookup.field] = lookup.field + " is already in use"
		}
	}

	if len(dup) > 0 {
		return Account{}, false, &DuplicateError{Fields: dup}
	}
	return Account{}, false, nil
}

func (s *Service) link(ctx context.Context, a Account, ext, avatar string) (Account, error) {
	a.Provider = s.provider
	a.ExternalID = ext
	if a.AvatarURL == "" && avatar != "" {
		a.AvatarURL = avatar
	}

	updated, err := s.dir.Update(ctx, a)
	if err != nil {
		return Account{}, err
	}

	s.logger.InfoContext(ctx, "provider linked to existing account",
		logger.UserID(updated.ID.String()),
		logger.Provider(s.provider),
	)
	return updated, nil
}

func (s *Service) baseNickname(r Registration, ext string) string {
	if n := strings.TrimSpace(r.Nickname); n != "" {
		return n
	}
	if n := strings.TrimSpace(r.Claims.Nickname); n != "" {
		return n
	}
	if len(ext) > 8 {
		ext = ext[:8]
	}
	return s.defaultNickname + ext
}

func (s *Service) freeNickname(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; i <= maxNicknameSuffix; i++ {
		taken, err := s.dir.NicknameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return "", &DuplicateError{Fields: map[string]string{"nickname": "nickname is already in use"}}
}
