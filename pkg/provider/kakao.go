package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/kakao"

	"github.com/dmitrymomot/authflow/pkg/auth"
)

const kakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"

// KakaoConfig holds the Kakao application credentials.
type KakaoConfig struct {
	ClientID     string   `env:"KAKAO_CLIENT_ID,required"`
	ClientSecret string   `env:"KAKAO_CLIENT_SECRET"`
	RedirectURL  string   `env:"KAKAO_REDIRECT_URL,required"`
	Scopes       []string `env:"KAKAO_SCOPES" envSeparator:"," envDefault:"profile_nickname,profile_image,account_email"`
}

type kakaoAdapter struct {
	conf        *oauth2.Config
	httpClient  *http.Client
	userInfoURL string
}

var _ Adapter = (*kakaoAdapter)(nil)

func NewKakaoAdapter(cfg KakaoConfig, opts ...AdapterOption) Adapter {
	o := adapterOptions{httpClient: &http.Client{Timeout: 10 * time.Second}, userInfoURL: kakaoUserInfoURL}
	for _, opt := range opts {
		opt(&o)
	}

	ep := kakao.Endpoint
	if o.endpoint != nil {
		ep = *o.endpoint
	}

	return &kakaoAdapter{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     ep,
		},
		httpClient:  o.httpClient,
		userInfoURL: o.userInfoURL,
	}
}

func (a *kakaoAdapter) Name() string { return NameKakao }

// AuthURL adds prompt=login on forced reauth so Kakao asks for credentials
// even with a live Kakao session.
func (a *kakaoAdapter) AuthURL(state string, forceReauth bool) string {
	if forceReauth {
		return a.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "login"))
	}
	return a.conf.AuthCodeURL(state)
}

func (a *kakaoAdapter) ResolveProfile(ctx context.Context, code string) (Profile, error) {
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

	var u kakaoUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return Profile{}, auth.NewError(auth.CodeUnexpectedResponse, "failed to decode kakao profile", err)
	}
	if u.ID == 0 {
		return Profile{}, auth.NewError(auth.CodeUnexpectedResponse, "kakao profile has no id", nil)
	}

	p := Profile{
		ExternalID:    strconv.FormatInt(u.ID, 10),
		Email:         u.Account.Email,
		EmailVerified: u.Account.IsEmailVerified,
		Nickname:      u.Properties.Nickname,
		AvatarURL:     u.Properties.ProfileImage,
	}
	if p.Nickname == "" {
		p.Nickname = u.Account.Profile.Nickname
	}
	if p.AvatarURL == "" {
		p.AvatarURL = u.Account.Profile.ProfileImageURL
	}
	return p, nil
}

type kakaoUser struct {
	ID         int64 `json:"id"`
	Properties struct {
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"properties"`
	Account struct {
		Email           string `json:"email"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Profile         struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}
