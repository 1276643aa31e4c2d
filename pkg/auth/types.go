package auth

import (
	"context"
	"strings"
	"time"
)

// PendingProfile holds provider claims for a user without a local account
// while signup is being completed.
type PendingProfile struct {
	ExternalID  string `json:"external_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Valid reports whether the profile can be used to finish signup.
func (p PendingProfile) Valid() bool {
	return strings.TrimSpace(p.ExternalID) != ""
}

// Identity is the authenticated local account.
type Identity struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Verified  bool   `json:"verified"`
}

// Session is the durable record of the current identity.
type Session struct {
	Identity      Identity  `json:"identity"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"created_at"`
}

// SignalKind classifies a completed attempt.
type SignalKind string

const (
	SignalLoginComplete  SignalKind = "LOGIN_COMPLETE"
	SignalSignupComplete SignalKind = "SIGNUP_COMPLETE"
)

// Signal is emitted once per completed attempt and stays until ClearSignal.
type Signal struct {
	Kind     SignalKind `json:"kind"`
	Message  string     `json:"message"`
	Navigate string     `json:"navigate"`
	At       time.Time  `json:"at"`
}

// RedirectInstruction tells the caller where to send the user.
type RedirectInstruction struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// AuthorizationURL is the backend's answer to an authorization request.
type AuthorizationURL struct {
	URL   string
	State string
}

// ExchangeResult is the outcome of a code exchange. Exactly one of Identity
// (existing account) or Pending (NeedsSignup) is expected.
type ExchangeResult struct {
	NeedsSignup bool
	Identity    *Identity
	Pending     *PendingProfile
	Message     string
}

// SignupFields are the values collected from the user during signup.
type SignupFields struct {
	Name      string `json:"name"`
	Phone     string `json:"phone_number"`
	Email     string `json:"email,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	Address   string `json:"address,omitempty"`
	Nickname  string `json:"custom_nickname,omitempty"`
}

// Avatar is an optional profile picture uploaded with signup.
type Avatar struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SignupRequest is sent to the backend once fields are validated.
type SignupRequest struct {
	ExternalID string
	Fields     SignupFields
	Avatar     *Avatar
}

// SignupResult is the backend's answer to a signup request.
type SignupResult struct {
	Identity Identity
	Message  string
}

// Backend performs the network side of the flow.
type Backend interface {
	GetAuthorizationURL(ctx context.Context, forceReauth bool) (AuthorizationURL, error)
	ExchangeCode(ctx context.Context, code string) (ExchangeResult, error)
	CompleteSignup(ctx context.Context, req SignupRequest) (SignupResult, error)
	Logout(ctx context.Context) error
}
