package cookie

import (
	"fmt"
	"net/http"
	"strings"
)

// Config holds cookie attributes loaded from the environment. Keys are
// supplied separately.
type Config struct {
	Path     string `env:"COOKIE_PATH" envDefault:"/"`
	Domain   string `env:"COOKIE_DOMAIN"`
	Secure   bool   `env:"COOKIE_SECURE" envDefault:"true"`
	SameSite string `env:"COOKIE_SAME_SITE" envDefault:"lax"`
}

// NewFromConfig applies cfg on top of the package defaults, then opts.
// Cookies built from a Config are always HttpOnly.
func NewFromConfig(keys [][]byte, cfg Config, opts ...Option) (*Manager, error) {
	sameSite, err := parseSameSite(cfg.SameSite)
	if err != nil {
		return nil, err
	}

	configOpts := []Option{WithSecure(cfg.Secure), WithHTTPOnly(true), WithSameSite(sameSite)}
	if cfg.Path != "" {
		configOpts = append(configOpts, WithPath(cfg.Path))
	}
	if cfg.Domain != "" {
		configOpts = append(configOpts, WithDomain(cfg.Domain))
	}
	return New(keys, append(configOpts, opts...)...)
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSameSite, s)
	}
}
