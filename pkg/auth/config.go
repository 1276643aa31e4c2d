package auth

import "time"

// Config holds flow tunables. Populate it with config.Load.
type Config struct {
	StateTTL       time.Duration `env:"AUTH_STATE_TTL" envDefault:"10m"`
	SessionTTL     time.Duration `env:"AUTH_SESSION_TTL" envDefault:"720h"`
	MemoryTierTTL  time.Duration `env:"AUTH_PENDING_MEMORY_TTL" envDefault:"30m"`
	DurableTierTTL time.Duration `env:"AUTH_PENDING_DURABLE_TTL" envDefault:"24h"`
	StrictState    bool          `env:"AUTH_STRICT_STATE" envDefault:"false"`
	HomePath       string        `env:"AUTH_HOME_PATH" envDefault:"/"`
	SignupPath     string        `env:"AUTH_SIGNUP_PATH" envDefault:"/register"`
}

// DefaultConfig returns the values used when no Config is supplied.
func DefaultConfig() Config {
	return Config{
		StateTTL:       10 * time.Minute,
		SessionTTL:     30 * 24 * time.Hour,
		MemoryTierTTL:  30 * time.Minute,
		DurableTierTTL: 24 * time.Hour,
		HomePath:       "/",
		SignupPath:     "/register",
	}
}
