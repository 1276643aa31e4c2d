package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dmitrymomot/authflow/pkg/auth"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleConfig holds the Google OAuth client credentials.
type GoogleConfig struct {
	ClientID     string   `env:"GOOGLE_OAUTH_CLIENT_ID,required"`
	ClientSecret string   `env:"GOOGLE_OAUTH_CLIENT_SECRET,required"`
	RedirectURL  string   `env:"GOOGLE_OAUTH_REDIRECT_URL,required"`
	Scopes       []string `env:"GOOGLE_OAUTH_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
	VerifiedOnly bool     `env:"GOOGLE_OAUTH_VERIFIED_ONLY" envDefault:"true"`
}

type googleAdapter struct {
	conf         *oauth2.Config
	httpClient   *http.Client
	userInfoURL  string
	verifiedOnly bool
}

var _ Adapter = (*googleAdapter)(nil)

func NewGoogleAdapter(cfg GoogleConfig, opts ...AdapterOption) Adapter {
	o := adapterOptions{httpClient: &http.Client{Timeout: 10 * time.Second}, userInfoURL: googleUserInfoURL}
	for _, opt := range opts {
		opt(&o)
	}

	ep := google.Endpoint
	if o.endpoint != nil {
		ep = *o.endpoint
	}

	return &googleAdapter{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     ep,
		},
		httpClient:   o.httpClient,
		userInfoURL:  o.userInfoURL,
		verifiedOnly: cfg.VerifiedOnly,
	}
}

func (a *googleAdapter) Name() string { return NameGoogle }

// AuthURL uses prompt=select_account on forced reauth; Google has no
// "login" prompt.
func (a *googleAdapter) AuthURL(state string, forceReauth bool) string {
	if forceReauth {
		return a.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
	}
	return a.conf.AuthCodeURL(state)
}

func (a *googleAdapter) ResolveProfile(ctx context.Context, code string) (Profile, error) {
	tok, err := a.conf.Exchange(withHTTPClient(ctx, a.httpClient), code)
	if err != nil {
		return Profile{}, classifyExchangeError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to create profile request: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Profile{}, auth.NewError(auth.CodeNetworkFailure, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, classifyProfileStatus(resp)
	}

	var u googleUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return Profile{}, auth.NewError(auth.CodeUnexpectedResponse, "failed to decode google profile", err)
	}
	if u.ID == "" {
		return Profile{}, auth.NewError(auth.CodeUnexpectedResponse, "google profile has no id", nil)
	}
	if a.verifiedOnly && !u.VerifiedEmail {
		return Profile{}, auth.NewError(auth.CodeProviderError, "google email is not verified", nil)
	}

	return Profile{
		ExternalID:    u.ID,
		Email:         u.Email,
		EmailVerified: u.VerifiedEmail,
		Nickname:      u.Name,
		AvatarURL:     u.Picture,
	}, nil
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
