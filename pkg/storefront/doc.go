// Package storefront implements auth.Backend against the storefront REST API.
//
// The storefront owns the provider credentials and the account database; this
// client only relays the authorization code and the signup form. The
// storefront answers with an opaque session cookie, so every Client keeps its
// own cookie jar and must not be shared between end users.
//
//	client, err := storefront.New(cfg, storefront.WithLogger(log))
//	ctrl := auth.NewController(client, storage)
//
// HTTP failures are translated into *auth.Error values:
//
//   - 429 becomes RATE_LIMITED with RetryAfter taken from the Retry-After header
//   - an expired or reused code becomes CODE_EXPIRED
//   - other 4xx responses become VALIDATION_FAILED carrying the server's detail
//   - transport errors, timeouts and 5xx become NETWORK_FAILURE
//   - bodies that do not decode become UNEXPECTED_RESPONSE
package storefront
