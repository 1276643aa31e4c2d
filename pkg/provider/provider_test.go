package provider_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/authflow/pkg/accounts"
	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/file"
	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/provider"
	"github.com/dmitrymomot/authflow/pkg/validator"
)

type providerServer struct {
	tokenStatus  int
	tokenBody    any
	tokenHeaders map[string]string
	userStatus   int
	userBody     any
}

func (p providerServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		for k, v := range p.tokenHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		_ = json.NewEncoder(w).Encode(p.tokenBody)
	})
	mux.HandleFunc("/v2/user/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.userStatus)
		_ = json.NewEncoder(w).Encode(p.userBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var okToken = map[string]any{"access_token": "at-1", "token_type": "bearer", "expires_in": 3600}

func kakaoAdapter(srv *httptest.Server) provider.Adapter {
	return provider.NewKakaoAdapter(
		provider.KakaoConfig{ClientID: "cid", RedirectURL: "http://localhost:3000/auth/kakao/callback"},
		provider.WithEndpoint(oauth2.Endpoint{
			AuthURL:   srv.URL + "/oauth/authorize",
			TokenURL:  srv.URL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		provider.WithUserInfoURL(srv.URL+"/v2/user/me"),
		provider.WithHTTPClient(srv.Client()),
	)
}

func TestKakaoAdapter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("auth url", func(t *testing.T) {
		t.Parallel()
		a := provider.NewKakaoAdapter(provider.KakaoConfig{ClientID: "cid", RedirectURL: "http://localhost/cb"})
		assert.Equal(t, provider.NameKakao, a.Name())

		u, err := url.Parse(a.AuthURL("st", true))
		require.NoError(t, err)
		assert.Equal(t, "kauth.kakao.com", u.Host)
		assert.Equal(t, "st", u.Query().Get("state"))
		assert.Equal(t, "cid", u.Query().Get("client_id"))
		assert.Equal(t, "login", u.Query().Get("prompt"))

		u, err = url.Parse(a.AuthURL("st", false))
		require.NoError(t, err)
		assert.Empty(t, u.Query().Get("prompt"))
	})

	t.Run("resolves profile", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{
			tokenStatus: http.StatusOK, tokenBody: okToken,
			userStatus: http.StatusOK,
			userBody: map[string]any{
				"id":         int64(4242),
				"properties": map[string]any{"nickname": "Lee"},
				"kakao_account": map[string]any{
					"email":             "lee@example.com",
					"is_email_verified": true,
					"profile":           map[string]any{"profile_image_url": "https://k.example/p.jpg"},
				},
			},
		}.start(t)

		p, err := kakaoAdapter(srv).ResolveProfile(ctx, "code")
		require.NoError(t, err)
		assert.Equal(t, provider.Profile{
			ExternalID:    "4242",
			Email:         "lee@example.com",
			EmailVerified: true,
			Nickname:      "Lee",
			AvatarURL:     "https://k.example/p.jpg",
		}, p)
	})

	t.Run("expired code", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{
			tokenStatus: http.StatusBadRequest,
			tokenBody: map[string]any{
				"error":             "invalid_grant",
				"error_description": "authorization code not found",
				"error_code":        "KOE320",
			},
		}.start(t)

		_, err := kakaoAdapter(srv).ResolveProfile(ctx, "code")
		assert.ErrorIs(t, err, auth.ErrCodeExpired)
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{
			tokenStatus:  http.StatusTooManyRequests,
			tokenBody:    map[string]any{"error_code": "KOE237"},
			tokenHeaders: map[string]string{"Retry-After": "30"},
		}.start(t)

		_, err := kakaoAdapter(srv).ResolveProfile(ctx, "code")
		require.ErrorIs(t, err, auth.ErrRateLimited)
		var flowErr *auth.Error
		require.ErrorAs(t, err, &flowErr)
		assert.Equal(t, 30*time.Second, flowErr.RetryAfter)
	})

	t.Run("other token error is provider error", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{
			tokenStatus: http.StatusUnauthorized,
			tokenBody:   map[string]any{"error": "invalid_client"},
		}.start(t)

		_, err := kakaoAdapter(srv).ResolveProfile(ctx, "code")
		assert.ErrorIs(t, err, auth.ErrProviderError)
	})

	t.Run("profile endpoint down", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{
			tokenStatus: http.StatusOK, tokenBody: okToken,
			userStatus: http.StatusBadGateway, userBody: map[string]any{},
		}.start(t)

		_, err := kakaoAdapter(srv).ResolveProfile(ctx, "code")
		assert.ErrorIs(t, err, auth.ErrNetworkFailure)
	})

	t.Run("profile without id", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{
			tokenStatus: http.StatusOK, tokenBody: okToken,
			userStatus: http.StatusOK, userBody: map[string]any{"properties": map[string]any{}},
		}.start(t)

		_, err := kakaoAdapter(srv).ResolveProfile(ctx, "code")
		assert.ErrorIs(t, err, auth.ErrUnexpectedResponse)
	})
}

func TestGoogleAdapter(t *testing.T) {
	t.Parallel()

	newAdapter := func(srv *httptest.Server, verifiedOnly bool) provider.Adapter {
		return provider.NewGoogleAdapter(
			provider.GoogleConfig{ClientID: "gid", ClientSecret: "sec", RedirectURL: "http://localhost/cb", VerifiedOnly: verifiedOnly},
			provider.WithEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/oauth/authorize", TokenURL: srv.URL + "/oauth/token"}),
			provider.WithUserInfoURL(srv.URL+"/v2/user/me"),
			provider.WithHTTPClient(srv.Client()),
		)
	}

	profile := map[string]any{"id": "g-1", "email": "a@example.com", "verified_email": false, "name": "A"}

	t.Run("unverified rejected", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{tokenStatus: http.StatusOK, tokenBody: okToken, userStatus: http.StatusOK, userBody: profile}.start(t)

		_, err := newAdapter(srv, true).ResolveProfile(context.Background(), "code")
		assert.ErrorIs(t, err, auth.ErrProviderError)
	})

	t.Run("unverified allowed", func(t *testing.T) {
		t.Parallel()
		srv := providerServer{tokenStatus: http.StatusOK, tokenBody: okToken, userStatus: http.StatusOK, userBody: profile}.start(t)

		p, err := newAdapter(srv, false).ResolveProfile(context.Background(), "code")
		require.NoError(t, err)
		assert.Equal(t, "g-1", p.ExternalID)
		assert.Equal(t, "A", p.Nickname)
	})

	t.Run("forced reauth selects account", func(t *testing.T) {
		t.Parallel()
		a := provider.NewGoogleAdapter(provider.GoogleConfig{ClientID: "gid", RedirectURL: "http://localhost/cb"})
		assert.Contains(t, a.AuthURL("s", true), "prompt=select_account")
	})
}

type stubAdapter struct {
	profile provider.Profile
	err     error
}

func (s stubAdapter) Name() string { return "stub" }

func (s stubAdapter) AuthURL(state string, _ bool) string {
	return "https://idp.example/authorize?state=" + state
}

func (s stubAdapter) ResolveProfile(context.Context, string) (provider.Profile, error) {
	return s.profile, s.err
}

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 16)...)

func TestBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	profile := provider.Profile{ExternalID: "77", Email: "park@example.com", Nickname: "Park", EmailVerified: true}
	fields := auth.SignupFields{Name: "Park", Phone: "010-2222-3333"}

	t.Run("authorization url carries fresh state", func(t *testing.T) {
		t.Parallel()
		b := provider.NewBackend(stubAdapter{}, accounts.NewService(accounts.NewMemory(nil), "stub"))

		got, err := b.GetAuthorizationURL(ctx, false)
		require.NoError(t, err)
		assert.Len(t, got.State, 43)
		assert.True(t, strings.HasSuffix(got.URL, "state="+got.State))
	})

	t.Run("new subject then signup then login", func(t *testing.T) {
		t.Parallel()
		b := provider.NewBackend(stubAdapter{profile: profile}, accounts.NewService(accounts.NewMemory(nil), "stub"))

		res, err := b.ExchangeCode(ctx, "c1")
		require.NoError(t, err)
		require.True(t, res.NeedsSignup)
		assert.Equal(t, "77", res.Pending.ExternalID)
		assert.Equal(t, "Park", res.Pending.DisplayName)

		out, err := b.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "77", Fields: fields})
		require.NoError(t, err)
		assert.Equal(t, "park@example.com", out.Identity.Email)
		assert.True(t, out.Identity.Verified)
		assert.Equal(t, "Signup complete.", out.Message)

		res, err = b.ExchangeCode(ctx, "c2")
		require.NoError(t, err)
		assert.False(t, res.NeedsSignup)
		require.NotNil(t, res.Identity)
		assert.Equal(t, out.Identity.UserID, res.Identity.UserID)
	})

	t.Run("signup resumes on another instance sharing the store", func(t *testing.T) {
		t.Parallel()
		shared := kvstore.NewMemory(0, nil)
		svc := accounts.NewService(accounts.NewMemory(nil), "stub")
		first := provider.NewBackend(stubAdapter{profile: profile}, svc, provider.WithProfileStore(shared))
		second := provider.NewBackend(stubAdapter{profile: profile}, svc, provider.WithProfileStore(shared))

		res, err := first.ExchangeCode(ctx, "c1")
		require.NoError(t, err)
		require.True(t, res.NeedsSignup)

		out, err := second.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "77", Fields: fields})
		require.NoError(t, err)
		assert.Equal(t, "park@example.com", out.Identity.Email)

		_, err = first.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "77", Fields: fields})
		assert.ErrorIs(t, err, auth.ErrIdentityLost)

		isolated := provider.NewBackend(stubAdapter{profile: profile}, svc)
		_, err = isolated.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "77", Fields: fields})
		assert.ErrorIs(t, err, auth.ErrIdentityLost)
	})

	t.Run("resolved subject expires with the profile ttl", func(t *testing.T) {
		t.Parallel()
		now := time.Now()
		store := kvstore.NewMemory(0, func() time.Time { return now })
		b := provider.NewBackend(stubAdapter{profile: profile}, accounts.NewService(accounts.NewMemory(nil), "stub"),
			provider.WithProfileStore(store), provider.WithProfileTTL(time.Hour))

		_, err := b.ExchangeCode(ctx, "c1")
		require.NoError(t, err)
		now = now.Add(2 * time.Hour)

		_, err = b.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "77", Fields: fields})
		assert.ErrorIs(t, err, auth.ErrIdentityLost)
	})

	t.Run("signup for unseen subject", func(t *testing.T) {
		t.Parallel()
		b := provider.NewBackend(stubAdapter{profile: profile}, accounts.NewService(accounts.NewMemory(nil), "stub"))

		_, err := b.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "forged", Fields: fields})
		assert.ErrorIs(t, err, auth.ErrIdentityLost)
	})

	t.Run("links existing account", func(t *testing.T) {
		t.Parallel()
		dir := accounts.NewMemory(nil)
		_, err := dir.Create(ctx, accounts.Account{Login: "park", Email: "park@example.com", Phone: "010-9999-0000", Nickname: "p"})
		require.NoError(t, err)
		b := provider.NewBackend(stubAdapter{profile: profile}, accounts.NewService(dir, "stub"))

		_, err = b.ExchangeCode(ctx, "c")
		require.NoError(t, err)
		out, err := b.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "77", Fields: fields})
		require.NoError(t, err)
		assert.Equal(t, "Linked to your existing account.", out.Message)
	})

	t.Run("duplicate phone is validation failure", func(t *testing.T) {
		t.Parallel()
		dir := accounts.NewMemory(nil)
		_, err := dir.Create(ctx, accounts.Account{
			Login: "x", Email: "x@example.com", Phone: "010-2222-3333", Nickname: "x",
			Provider: "stub", ExternalID: "other",
		})
		require.NoError(t, err)
		b := provider.NewBackend(stubAdapter{profile: profile}, accounts.NewService(dir, "stub"))

		_, err = b.ExchangeCode(ctx, "c")
		require.NoError(t, err)
		_, err = b.CompleteSignup(ctx, auth.SignupRequest{ExternalID: "77", Fields: fields})
		require.ErrorIs(t, err, auth.ErrValidationFailed)
		errs := validator.ExtractValidationErrors(err)
		require.NotNil(t, errs)
		assert.True(t, errs.Has("phone_number"))
	})

	t.Run("stores uploaded avatar", func(t *testing.T) {
		t.Parallel()
		store, err := file.NewLocalStorage(t.TempDir(), "/uploads/")
		require.NoError(t, err)
		b := provider.NewBackend(stubAdapter{profile: profile},
			accounts.NewService(accounts.NewMemory(nil), "stub"),
			provider.WithAvatars(file.NewAvatars(store)),
		)

		_, err = b.ExchangeCode(ctx, "c")
		require.NoError(t, err)
		out, err := b.CompleteSignup(ctx, auth.SignupRequest{
			ExternalID: "77",
			Fields:     fields,
			Avatar:     &auth.Avatar{Filename: "me.png", Data: pngData},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out.Identity.AvatarURL, "/uploads/avatars/stub_77/"))
	})

	t.Run("adapter errors pass through", func(t *testing.T) {
		t.Parallel()
		b := provider.NewBackend(stubAdapter{err: auth.NewError(auth.CodeCodeExpired, "", nil)},
			accounts.NewService(accounts.NewMemory(nil), "stub"))

		_, err := b.ExchangeCode(ctx, "c")
		assert.ErrorIs(t, err, auth.ErrCodeExpired)
	})

	t.Run("logout is a no-op", func(t *testing.T) {
		t.Parallel()
		b := provider.NewBackend(stubAdapter{}, accounts.NewService(accounts.NewMemory(nil), "stub"))
		assert.NoError(t, b.Logout(ctx))
	})
}
