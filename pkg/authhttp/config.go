package authhttp

import (
	"time"

	"github.com/dmitrymomot/authflow/pkg/cookie"
)

// Config holds HTTP surface settings. Secret is the master secret the cookie
// and signup-ticket keys are derived from.
type Config struct {
	Secret        string        `env:"AUTH_HTTP_SECRET,required"`
	PrevSecret    string        `env:"AUTH_HTTP_PREV_SECRET"`
	ClientCookie  string        `env:"AUTH_HTTP_CLIENT_COOKIE" envDefault:"authflow_client"`
	ClientTTL     time.Duration `env:"AUTH_HTTP_CLIENT_TTL" envDefault:"720h"`
	MaxClients    int           `env:"AUTH_HTTP_MAX_CLIENTS" envDefault:"10000"`
	IdleTimeout   time.Duration `env:"AUTH_HTTP_IDLE_TIMEOUT" envDefault:"1h"`
	TicketTTL     time.Duration `env:"AUTH_HTTP_TICKET_TTL" envDefault:"30m"`
	MaxUploadSize int64         `env:"AUTH_HTTP_MAX_UPLOAD_SIZE" envDefault:"5242880"`

	Cookie cookie.Config
}

func (c Config) withDefaults() Config {
	if c.ClientCookie == "" {
		c.ClientCookie = "authflow_client"
	}
	if c.ClientTTL <= 0 {
		c.ClientTTL = 30 * 24 * time.Hour
	}
	if c.MaxClients <= 0 {
		c.MaxClients = 10000
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Hour
	}
	if c.TicketTTL <= 0 {
		c.TicketTTL = 30 * time.Minute
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = 5 << 20
	}
	return c
}
