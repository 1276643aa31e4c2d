package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/logger"
)

const cookieStoreKey = "storefront:cookies"

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// cookieSync mirrors the jar's storefront cookies into a kvstore so a Client
// rebuilt for the same end user resumes the same remote session.
type cookieSync struct {
	store kvstore.Store
	ttl   time.Duration

	mu       sync.Mutex
	restored bool
	saved    []byte
}

// WithCookieStore persists the storefront session cookies in store under
// its own key, expiring after ttl. The store is expected to be scoped to one
// end user.
func WithCookieStore(store kvstore.Store, ttl time.Duration) Option {
	return func(c *Client) {
		if store != nil {
			c.session = &cookieSync{store: store, ttl: ttl}
		}
	}
}

func (c *Client) rootURL() *url.URL {
	return c.base.ResolveReference(&url.URL{Path: "/"})
}

// restoreCookies loads persisted cookies into the jar once. A failed read is
// retried on the next request.
func (c *Client) restoreCookies(ctx context.Context) {
	s := c.session
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restored {
		return
	}

	data, err := s.store.Get(ctx, cookieStoreKey)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		s.restored = true
		return
	case err != nil:
		c.logger.WarnContext(ctx, "failed to load storefront session",
			logger.Component("storefront"),
			logger.Error(err),
		)
		return
	}
	s.restored = true

	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		c.logger.WarnContext(ctx, "discarding unreadable storefront session",
			logger.Component("storefront"),
			logger.Error(err),
		)
		_ = s.store.Delete(ctx, cookieStoreKey)
		return
	}

	cookies := make([]*http.Cookie, 0, len(saved))
	for _, sc := range saved {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value, Path: "/"})
	}
	c.http.Jar.SetCookies(c.rootURL(), cookies)
	s.saved = data
}

// saveCookies writes the jar's current cookies when they changed since the
// last save. An emptied jar deletes the record.
func (c *Client) saveCookies(ctx context.Context) {
	s := c.session
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := c.http.Jar.Cookies(c.rootURL())
	if len(current) == 0 {
		if s.saved == nil {
			return
		}
		if err := s.store.Delete(ctx, cookieStoreKey); err != nil {
			c.logger.WarnContext(ctx, "failed to delete storefront session",
				logger.Component("storefront"),
				logger.Error(err),
			)
			return
		}
		s.saved = nil
		return
	}

	saved := make([]savedCookie, 0, len(current))
	for _, ck := range current {
		saved = append(saved, savedCookie{Name: ck.Name, Value: ck.Value})
	}
	data, err := json.Marshal(saved)
	if err != nil || string(data) == string(s.saved) {
		return
	}
	if err := s.store.Set(ctx, cookieStoreKey, data, s.ttl); err != nil {
		c.logger.WarnContext(ctx, "failed to save storefront session",
			logger.Component("storefront"),
			logger.Error(err),
		)
		return
	}
	s.saved = data
}
