// Package auth implements the third-party (OAuth-style) sign-in flow for one
// browser client: starting an authorization attempt, resolving the provider
// redirect exactly once, branching into login or signup, and keeping the
// resulting session and pending signup profile in storage.
//
// The Controller is the only entry point. It owns the callback de-duplication
// latch and the outcome Signal, and builds the SessionStore and
// PendingProfileStore from the key/value stores it is given. Network work is
// delegated to a Backend (see pkg/storefront and pkg/provider).
//
// # Flow
//
//	redisStore := redis.NewStorage(client)
//	c := auth.NewController(backend, auth.Storage{
//		Session:      redisStore,
//		SessionCodec: auth.SignedCodec{Keys: [][]byte{key}},
//		Tiers:        auth.DefaultTiers(memory, redisStore, cfg),
//	}, auth.WithLogger(log))
//
//	redirect, err := c.BeginAuth(ctx, false)       // send the user to redirect.URL
//	res, err := c.ResolveCallback(ctx, r.URL.Query()) // on the provider redirect
//	switch res.Outcome {
//	case auth.OutcomeLoggedIn:    // c.CurrentSession() is authenticated
//	case auth.OutcomeNeedsSignup: // collect fields, then c.CompleteSignup
//	}
//
// Errors are *Error values carrying an ErrorCode; RecoveryFor maps them to the
// user-facing recovery policy.
package auth
