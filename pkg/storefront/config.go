package storefront

import "time"

// Config points the client at a storefront deployment.
type Config struct {
	BaseURL      string        `env:"STOREFRONT_BASE_URL,required"`
	ProviderPath string        `env:"STOREFRONT_PROVIDER_PATH" envDefault:"/auth/kakao"`
	LogoutPath   string        `env:"STOREFRONT_LOGOUT_PATH" envDefault:"/auth/logout"`
	Timeout      time.Duration `env:"STOREFRONT_TIMEOUT" envDefault:"30s"`
	MaxBodySize  int64         `env:"STOREFRONT_MAX_BODY_SIZE" envDefault:"1048576"`
}

func (c Config) withDefaults() Config {
	if c.ProviderPath == "" {
		c.ProviderPath = "/auth/kakao"
	}
	if c.LogoutPath == "" {
		c.LogoutPath = "/auth/logout"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = 1 << 20
	}
	return c
}
