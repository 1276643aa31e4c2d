package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/logger"
)

// Client talks to one storefront on behalf of one end user.
type Client struct {
	base      *url.URL
	cfg       Config
	http      *http.Client
	logger    *slog.Logger
	userAgent string
	session   *cookieSync
}

var _ auth.Backend = (*Client)(nil)

// New validates cfg and builds a Client with a fresh cookie jar.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Join(ErrInvalidBaseURL, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}

	c := &Client{
		base:      base,
		cfg:       cfg,
		logger:    logger.Discard(),
		userAgent: "authflow-storefront/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	return c, nil
}

type authorizationURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

type userPayload struct {
	UserID         string `json:"user_id"`
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Nickname       string `json:"nickname"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture"`
	IsVerified     bool   `json:"is_verified"`
}

func (u userPayload) identity() auth.Identity {
	id := u.UserID
	if id == "" && u.ID != 0 {
		id = strconv.FormatInt(u.ID, 10)
	}
	return auth.Identity{
		UserID:    id,
		Name:      u.Name,
		Nickname:  u.Nickname,
		Email:     u.Email,
		AvatarURL: u.ProfilePicture,
		Verified:  u.IsVerified,
	}
}

type providerInfo struct {
	ExternalID     string `json:"kakao_id"`
	Nickname       string `json:"nickname"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture"`
}

type authResponse struct {
	Message     string        `json:"message"`
	User        *userPayload  `json:"user"`
	IsNewUser   bool          `json:"is_new_user"`
	NeedsSignup bool          `json:"needs_signup"`
	Info        *providerInfo `json:"kakao_info"`
}

// GetAuthorizationURL asks the storefront for the provider URL. forceReauth
// adds prompt=login so the provider shows its login screen again.
func (c *Client) GetAuthorizationURL(ctx context.Context, forceReauth bool) (auth.AuthorizationURL, error) {
	q := url.Values{}
	if forceReauth {
		q.Set("prompt", "login")
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.providerPath("authorization-url"), q, nil)
	if err != nil {
		return auth.AuthorizationURL{}, err
	}

	var out authorizationURLResponse
	if err := c.do(req, &out, false); err != nil {
		return auth.AuthorizationURL{}, err
	}
	if out.AuthorizationURL == "" {
		return auth.AuthorizationURL{}, auth.NewError(auth.CodeUnexpectedResponse, "authorization URL is empty", nil)
	}

	return auth.AuthorizationURL{URL: out.AuthorizationURL, State: out.State}, nil
}

// ExchangeCode relays the authorization code. The storefront answers either
// with the existing account or with provider claims for signup.
func (c *Client) ExchangeCode(ctx context.Context, code string) (auth.ExchangeResult, error) {
	if strings.TrimSpace(code) == "" {
		return auth.ExchangeResult{}, auth.NewError(auth.CodeMissingCode, "", ErrEmptyCode)
	}

	body, err := json.Marshal(map[string]string{"authorization_code": code})
	if err != nil {
		return auth.ExchangeResult{}, fmt.Errorf("failed to marshal exchange request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.providerPath("process-auth"), nil, bytes.NewReader(body))
	if err != nil {
		return auth.ExchangeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out authResponse
	if err := c.do(req, &out, true); err != nil {
		return auth.ExchangeResult{}, err
	}

	res := auth.ExchangeResult{NeedsSignup: out.NeedsSignup, Message: out.Message}
	if out.NeedsSignup {
		if out.Info == nil || out.Info.ExternalID == "" {
			return auth.ExchangeResult{}, auth.NewError(auth.CodeUnexpectedResponse, "signup required but provider claims are missing", nil)
		}
		res.Pending = &auth.PendingProfile{
			ExternalID:  out.Info.ExternalID,
			Email:       out.Info.Email,
			DisplayName: out.Info.Nickname,
			AvatarURL:   out.Info.ProfilePicture,
		}
		return res, nil
	}

	if out.User == nil {
		return auth.ExchangeResult{}, auth.NewError(auth.CodeUnexpectedResponse, "login response carries no user", nil)
	}
	id := out.User.identity()
	res.Identity = &id

	return res, nil
}

// CompleteSignup posts the form as multipart: a "data" JSON part and an
// optional "profile_picture" file part.
func (c *Client) CompleteSignup(ctx context.Context, in auth.SignupRequest) (auth.SignupResult, error) {
	if strings.TrimSpace(in.ExternalID) == "" {
		return auth.SignupResult{}, auth.NewError(auth.CodeIdentityLost, "", ErrEmptyExternal)
	}

	body, contentType, err := encodeSignup(in)
	if err != nil {
		return auth.SignupResult{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.providerPath("signup"), nil, body)
	if err != nil {
		return auth.SignupResult{}, err
	}
	req.Header.Set("Content-Type", contentType)

	var out authResponse
	if err := c.do(req, &out, false); err != nil {
		return auth.SignupResult{}, err
	}
	if out.User == nil {
		return auth.SignupResult{}, auth.NewError(auth.CodeUnexpectedResponse, "signup response carries no user", nil)
	}

	return auth.SignupResult{Identity: out.User.identity(), Message: out.Message}, nil
}

// Logout ends the storefront session. A 401 means there was nothing to end.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.LogoutPath, nil, nil)
	if err != nil {
		return err
	}

	err = c.do(req, nil, false)
	var apiErr *auth.Error
	if errors.As(err, &apiErr) && errors.Is(apiErr.Err, errUnauthorized) {
		return nil
	}
	return err
}

type signupData struct {
	ExternalID string `json:"kakao_id"`
	auth.SignupFields
}

func encodeSignup(in auth.SignupRequest) (io.Reader, string, error) {
	data, err := json.Marshal(signupData{ExternalID: in.ExternalID, SignupFields: in.Fields})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal signup data: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("data", string(data)); err != nil {
		return nil, "", fmt.Errorf("failed to write signup data: %w", err)
	}

	if in.Avatar != nil && len(in.Avatar.Data) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profile_picture"; filename=%q`, avatarFilename(in.Avatar)))
		ct := in.Avatar.ContentType
		if ct == "" {
			ct = http.DetectContentType(in.Avatar.Data)
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create avatar part: %w", err)
		}
		if _, err := part.Write(in.Avatar.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write avatar: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func avatarFilename(a *auth.Avatar) string {
	if a.Filename != "" {
		return a.Filename
	}
	return "avatar"
}

func (c *Client) providerPath(op string) string {
	return strings.TrimRight(c.cfg.ProviderPath, "/") + "/" + op
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.base.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// do sends req and decodes a 2xx body into out. exchange enables detection
// of expired authorization codes in 400 responses.
func (c *Client) do(req *http.Request, out any, exchange bool) error {
	c.restoreCookies(req.Context())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(req.Context(), "storefront request failed",
			logger.Component("storefront"),
			slog.String("path", req.URL.Path),
			logger.Error(err),
		)
		return auth.NewError(auth.CodeNetworkFailure, "", err)
	}
	defer resp.Body.Close()
	c.saveCookies(req.Context())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize))
	if err != nil {
		return auth.NewError(auth.CodeNetworkFailure, "failed to read response", err)
	}

	c.logger.DebugContext(req.Context(), "storefront request",
		logger.Component("storefront"),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		logger.Duration(time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(resp, raw, exchange, time.Now())
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return auth.NewError(auth.CodeUnexpectedResponse, "failed to decode response", err)
	}
	return nil
}
