package httpserver

import (
	"context"
	"log/slog"
	"time"
)

type Option func(*config)

func WithAddr(addr string) Option {
	return func(c *config) {
		if addr != "" {
			c.addr = addr
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(c *config) { c.readTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) { c.writeTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) { c.idleTimeout = d }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCleanup registers fn to run after the server has stopped. Cleanups
// run in reverse registration order and share the shutdown deadline.
func WithCleanup(fn func(context.Context) error) Option {
	return func(c *config) {
		if fn != nil {
			c.cleanups = append(c.cleanups, fn)
		}
	}
}
