package provider

import (
	"net/http"

	"golang.org/x/oauth2"
)

// AdapterOption configures an Adapter.
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	httpClient  *http.Client
	endpoint    *oauth2.Endpoint
	userInfoURL string
}

func WithHTTPClient(hc *http.Client) AdapterOption {
	return func(o *adapterOptions) { o.httpClient = hc }
}

// WithEndpoint replaces the provider's authorize and token URLs.
func WithEndpoint(ep oauth2.Endpoint) AdapterOption {
	return func(o *adapterOptions) { o.endpoint = &ep }
}

// WithUserInfoURL replaces the provider's profile URL.
func WithUserInfoURL(u string) AdapterOption {
	return func(o *adapterOptions) { o.userInfoURL = u }
}
