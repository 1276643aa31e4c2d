package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dmitrymomot/authflow/pkg/auth"
)

const (
	NameKakao  = "kakao"
	NameGoogle = "google"
)

// Profile is what a provider reports about the signed-in user.
type Profile struct {
	ExternalID    string `json:"external_id"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

// Adapter hides provider specifics from Backend.
type Adapter interface {
	Name() string
	AuthURL(state string, forceReauth bool) string
	ResolveProfile(ctx context.Context, code string) (Profile, error)
}

// expiredCodes are token endpoint error codes meaning the authorization code
// was already redeemed or timed out.
var expiredCodes = []string{"invalid_grant", "KOE320"}

// classifyExchangeError maps oauth2 token endpoint failures to flow errors.
func classifyExchangeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return auth.NewError(auth.CodeNetworkFailure, "", err)
	}

	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return auth.NewError(auth.CodeNetworkFailure, "", err)
	}

	if re.Response != nil && re.Response.StatusCode == http.StatusTooManyRequests {
		e := auth.NewError(auth.CodeRateLimited, "", err)
		e.RetryAfter = retryAfter(re.Response.Header.Get("Retry-After"))
		return e
	}

	body := string(re.Body)
	for _, code := range expiredCodes {
		if re.ErrorCode == code || strings.Contains(body, code) {
			return auth.NewError(auth.CodeCodeExpired, re.ErrorDescription, err)
		}
	}

	if re.Response != nil && re.Response.StatusCode >= 500 {
		return auth.NewError(auth.CodeNetworkFailure, re.ErrorDescription, err)
	}
	return auth.NewError(auth.CodeProviderError, re.ErrorDescription, err)
}

// classifyProfileStatus maps a user-info response status to a flow error.
func classifyProfileStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := auth.NewError(auth.CodeRateLimited, "", nil)
		e.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
		return e
	case resp.StatusCode >= 500:
		return auth.NewError(auth.CodeNetworkFailure, "profile endpoint unavailable", nil)
	default:
		return auth.NewError(auth.CodeUnexpectedResponse, "profile request rejected: "+resp.Status, nil)
	}
}

func retryAfter(v string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v) + "s"); err == nil && d > 0 {
		return d
	}
	return auth.DefaultRateLimitWait
}

func withHTTPClient(ctx context.Context, hc *http.Client) context.Context {
	if hc == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, hc)
}
