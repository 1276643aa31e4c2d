package authhttp

import "errors"

var (
	ErrSecretTooShort  = errors.New("authhttp.secret_too_short")
	ErrNoFactory       = errors.New("authhttp.no_factory")
	ErrInvalidTicket   = errors.New("authhttp.invalid_signup_ticket")
	ErrInvalidRequest  = errors.New("authhttp.invalid_request")
	ErrPayloadTooLarge = errors.New("authhttp.payload_too_large")
)
