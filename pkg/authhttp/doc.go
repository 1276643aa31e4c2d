// Package authhttp exposes the authentication flow over HTTP.
//
// Every browser gets its own auth.Controller, selected by a signed client-id
// cookie. Controllers are created on first use by a Factory and kept in a
// bounded Registry; their durable state lives in shared stores namespaced by
// client id, so an evicted controller is rebuilt from storage on the next
// request.
//
// Routes (mounted under the router passed to Handler.Mount):
//
//	GET    /auth/login      302 to the provider (?force=1 forces re-authentication)
//	POST   /auth/begin      authorization URL as JSON
//	GET    /auth/callback   resolve the provider redirect
//	POST   /auth/signup     JSON or multipart ("data" + "profile_picture")
//	POST   /auth/restart    drop an abandoned attempt and start over
//	POST   /auth/logout
//	GET    /auth/session
//	GET    /auth/signal
//	DELETE /auth/signal
//
// All JSON responses use the envelope {"data", "meta", "error"}.
package authhttp
