package storefront

import "errors"

var (
	ErrInvalidBaseURL = errors.New("storefront: invalid base URL")
	ErrEmptyCode      = errors.New("storefront: authorization code is empty")
	ErrEmptyExternal  = errors.New("storefront: external id is empty")
)
