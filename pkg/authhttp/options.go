package authhttp

import "log/slog"

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRegistry replaces the registry built from Config, typically to share
// one between handlers.
func WithRegistry(r *Registry) Option {
	return func(h *Handler) { h.registry = r }
}
