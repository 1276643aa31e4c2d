// Package provider implements auth.Backend directly against an OAuth 2.0
// identity provider, for deployments without a separate storefront API.
//
// An Adapter wraps one provider (Kakao, Google) behind golang.org/x/oauth2
// and resolves the authorization code to a Profile. Backend looks the
// profile up in an accounts.Service: a known subject logs in, an unknown one
// needs signup. Resolved profiles are remembered for a while so that
// CompleteSignup only accepts subjects this process actually saw.
package provider
