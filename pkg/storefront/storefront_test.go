package storefront_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/storefront"
	"github.com/dmitrymomot/authflow/pkg/validator"
)

func newClient(t *testing.T, h http.Handler) *storefront.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := storefront.New(storefront.Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-http base URL", func(t *testing.T) {
		t.Parallel()
		_, err := storefront.New(storefront.Config{BaseURL: "ftp://example.com"})
		assert.ErrorIs(t, err, storefront.ErrInvalidBaseURL)
	})

	t.Run("rejects empty base URL", func(t *testing.T) {
		t.Parallel()
		_, err := storefront.New(storefront.Config{})
		assert.ErrorIs(t, err, storefront.ErrInvalidBaseURL)
	})
}

func TestGetAuthorizationURL(t *testing.T) {
	t.Parallel()

	t.Run("forced reauth sends prompt=login", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/kakao/authorization-url", r.URL.Path)
			assert.Equal(t, "login", r.URL.Query().Get("prompt"))
			writeJSON(w, http.StatusOK, map[string]string{
				"authorization_url": "https://kauth.kakao.com/oauth/authorize?state=s1",
				"state":             "s1",
			})
		}))

		got, err := c.GetAuthorizationURL(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, "s1", got.State)
		assert.Contains(t, got.URL, "kauth.kakao.com")
	})

	t.Run("no prompt without reauth", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.RawQuery)
			writeJSON(w, http.StatusOK, map[string]string{"authorization_url": "https://p.example/authorize"})
		}))

		got, err := c.GetAuthorizationURL(context.Background(), false)
		require.NoError(t, err)
		assert.Empty(t, got.State)
	})

	t.Run("empty URL is unexpected", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{})
		}))

		_, err := c.GetAuthorizationURL(context.Background(), false)
		assert.ErrorIs(t, err, auth.ErrUnexpectedResponse)
	})

	t.Run("rate limited with retry-after seconds", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "120")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "slow down"})
		}))

		_, err := c.GetAuthorizationURL(context.Background(), false)
		require.ErrorIs(t, err, auth.ErrRateLimited)

		var flowErr *auth.Error
		require.ErrorAs(t, err, &flowErr)
		assert.Equal(t, 2*time.Minute, flowErr.RetryAfter)
		assert.Equal(t, "slow down", flowErr.Message)
	})

	t.Run("rate limited without header uses default wait", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := c.GetAuthorizationURL(context.Background(), false)
		var flowErr *auth.Error
		require.ErrorAs(t, err, &flowErr)
		assert.Equal(t, auth.DefaultRateLimitWait, flowErr.RetryAfter)
	})
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	t.Run("existing user", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/auth/kakao/process-auth", r.URL.Path)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "code-1", body["authorization_code"])

			writeJSON(w, http.StatusOK, map[string]any{
				"message":      "login ok",
				"is_new_user":  false,
				"needs_signup": false,
				"user": map[string]any{
					"user_id":         "kim01",
					"id":              7,
					"name":            "Kim",
					"email":           "kim@example.com",
					"profile_picture": "/uploads/a.png",
					"is_verified":     true,
				},
			})
		}))

		res, err := c.ExchangeCode(context.Background(), "code-1")
		require.NoError(t, err)
		assert.False(t, res.NeedsSignup)
		require.NotNil(t, res.Identity)
		assert.Equal(t, "kim01", res.Identity.UserID)
		assert.Equal(t, "/uploads/a.png", res.Identity.AvatarURL)
		assert.True(t, res.Identity.Verified)
		assert.Equal(t, "login ok", res.Message)
	})

	t.Run("numeric id used when user_id is absent", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 42}})
		}))

		res, err := c.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)
		assert.Equal(t, "42", res.Identity.UserID)
	})

	t.Run("new user carries provider claims", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"message":      "signup required",
				"is_new_user":  true,
				"needs_signup": true,
				"kakao_info": map[string]any{
					"kakao_id":        "12345",
					"nickname":        "Lee",
					"email":           "lee@example.com",
					"profile_picture": "https://k.example/p.jpg",
				},
			})
		}))

		res, err := c.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)
		assert.True(t, res.NeedsSignup)
		require.NotNil(t, res.Pending)
		assert.Equal(t, auth.PendingProfile{
			ExternalID:  "12345",
			Email:       "lee@example.com",
			DisplayName: "Lee",
			AvatarURL:   "https://k.example/p.jpg",
		}, *res.Pending)
	})

	t.Run("signup without claims is unexpected", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"needs_signup": true})
		}))

		_, err := c.ExchangeCode(context.Background(), "code")
		assert.ErrorIs(t, err, auth.ErrUnexpectedResponse)
	})

	t.Run("login without user is unexpected", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
		}))

		_, err := c.ExchangeCode(context.Background(), "code")
		assert.ErrorIs(t, err, auth.ErrUnexpectedResponse)
	})

	t.Run("undecodable body", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>oops</html>")
		}))

		_, err := c.ExchangeCode(context.Background(), "code")
		assert.ErrorIs(t, err, auth.ErrUnexpectedResponse)
	})

	t.Run("expired code", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "KOE320: authorization code expired or already used"})
		}))

		_, err := c.ExchangeCode(context.Background(), "code")
		assert.ErrorIs(t, err, auth.ErrCodeExpired)
	})

	t.Run("other 400 is validation failure", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Failed to get access token"})
		}))

		_, err := c.ExchangeCode(context.Background(), "code")
		require.ErrorIs(t, err, auth.ErrValidationFailed)

		var statusErr *storefront.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadRequest, statusErr.Status)
	})

	t.Run("server error is network failure", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "down"})
		}))

		_, err := c.ExchangeCode(context.Background(), "code")
		assert.ErrorIs(t, err, auth.ErrNetworkFailure)
	})

	t.Run("transport failure is network failure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		c, err := storefront.New(storefront.Config{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.ExchangeCode(context.Background(), "code")
		assert.ErrorIs(t, err, auth.ErrNetworkFailure)
	})

	t.Run("cancelled context is network failure", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.ExchangeCode(ctx, "code")
		require.ErrorIs(t, err, auth.ErrNetworkFailure)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("empty code", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.NotFoundHandler())

		_, err := c.ExchangeCode(context.Background(), "  ")
		assert.ErrorIs(t, err, auth.ErrMissingCode)
	})
}

func TestCompleteSignup(t *testing.T) {
	t.Parallel()

	t.Run("multipart with avatar", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/kakao/signup", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))

			var data map[string]string
			require.NoError(t, json.Unmarshal([]byte(r.FormValue("data")), &data))
			assert.Equal(t, "12345", data["kakao_id"])
			assert.Equal(t, "Kim", data["name"])
			assert.Equal(t, "010-1234-5678", data["phone_number"])
			assert.Equal(t, "kimmy", data["custom_nickname"])

			f, hdr, err := r.FormFile("profile_picture")
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, "me.png", hdr.Filename)
			content, _ := io.ReadAll(f)
			assert.Equal(t, []byte("png-bytes"), content)

			writeJSON(w, http.StatusOK, map[string]any{
				"message":     "signup complete",
				"is_new_user": true,
				"user":        map[string]any{"user_id": "kakao_12345", "name": "Kim"},
			})
		}))

		res, err := c.CompleteSignup(context.Background(), auth.SignupRequest{
			ExternalID: "12345",
			Fields:     auth.SignupFields{Name: "Kim", Phone: "010-1234-5678", Nickname: "kimmy"},
			Avatar:     &auth.Avatar{Filename: "me.png", ContentType: "image/png", Data: []byte("png-bytes")},
		})
		require.NoError(t, err)
		assert.Equal(t, "kakao_12345", res.Identity.UserID)
		assert.Equal(t, "signup complete", res.Message)
	})

	t.Run("without avatar", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			_, _, err := r.FormFile("profile_picture")
			assert.ErrorIs(t, err, http.ErrMissingFile)
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"user_id": "u1"}})
		}))

		_, err := c.CompleteSignup(context.Background(), auth.SignupRequest{
			ExternalID: "1",
			Fields:     auth.SignupFields{Name: "Kim", Phone: "010-1234-5678"},
		})
		require.NoError(t, err)
	})

	t.Run("duplicate fields become validation errors", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": map[string]string{
				"email":        "email already in use",
				"phone_number": "phone already in use",
			}})
		}))

		_, err := c.CompleteSignup(context.Background(), auth.SignupRequest{ExternalID: "1"})
		require.ErrorIs(t, err, auth.ErrValidationFailed)

		errs := validator.ExtractValidationErrors(err)
		require.NotNil(t, errs)
		assert.True(t, errs.Has("email"))
		assert.True(t, errs.Has("phone_number"))
	})

	t.Run("request validation issues", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]any{
				{"loc": []any{"body", "name"}, "msg": "field required"},
			}})
		}))

		_, err := c.CompleteSignup(context.Background(), auth.SignupRequest{ExternalID: "1"})
		errs := validator.ExtractValidationErrors(err)
		require.NotNil(t, errs)
		assert.Equal(t, []string{"field required"}, errs.Get("name"))
	})

	t.Run("missing external id", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.NotFoundHandler())

		_, err := c.CompleteSignup(context.Background(), auth.SignupRequest{})
		assert.ErrorIs(t, err, auth.ErrIdentityLost)
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()

	t.Run("session cookie is sent back", func(t *testing.T) {
		t.Parallel()
		mux := http.NewServeMux()
		mux.HandleFunc("/auth/kakao/process-auth", func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"user_id": "u1"}})
		})
		mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			ck, err := r.Cookie("session")
			require.NoError(t, err)
			assert.Equal(t, "abc", ck.Value)
			writeJSON(w, http.StatusOK, map[string]string{"message": "bye"})
		})
		c := newClient(t, mux)

		_, err := c.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)
		require.NoError(t, c.Logout(context.Background()))
	})

	t.Run("rebuilt client resumes the persisted session", func(t *testing.T) {
		t.Parallel()
		var mu sync.Mutex
		var logoutCookies []string
		mux := http.NewServeMux()
		mux.HandleFunc("/auth/kakao/process-auth", func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "sf_session", Value: "s-1", Path: "/"})
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"user_id": "u1"}})
		})
		mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			if ck, err := r.Cookie("sf_session"); err == nil {
				logoutCookies = append(logoutCookies, ck.Value)
			} else {
				logoutCookies = append(logoutCookies, "")
			}
			mu.Unlock()
			http.SetCookie(w, &http.Cookie{Name: "sf_session", Path: "/", MaxAge: -1})
			writeJSON(w, http.StatusOK, map[string]string{"message": "bye"})
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)

		store := kvstore.NewMemory(0, nil)
		build := func() *storefront.Client {
			c, err := storefront.New(storefront.Config{BaseURL: srv.URL, Timeout: 2 * time.Second},
				storefront.WithCookieStore(store, time.Hour))
			require.NoError(t, err)
			return c
		}

		_, err := build().ExchangeCode(context.Background(), "code")
		require.NoError(t, err)

		require.NoError(t, build().Logout(context.Background()))
		require.NoError(t, build().Logout(context.Background()))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"s-1", ""}, logoutCookies)
	})

	t.Run("unauthorized is not an error", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "login required"})
		}))

		assert.NoError(t, c.Logout(context.Background()))
	})

	t.Run("server failure is returned", func(t *testing.T) {
		t.Parallel()
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		assert.ErrorIs(t, c.Logout(context.Background()), auth.ErrNetworkFailure)
	})
}
