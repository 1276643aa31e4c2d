package redis

import "errors"

var (
	ErrFailedToParseConnString = errors.New("redis.invalid_connection_url")
	ErrNotReady                = errors.New("redis.not_ready")
	ErrHealthcheckFailed       = errors.New("redis.healthcheck_failed")
	ErrEmptyKey                = errors.New("redis.empty_key")
)
