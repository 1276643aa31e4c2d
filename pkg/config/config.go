// Package config populates env-tagged structs from the process environment.
//
// A .env file in the working directory is read once, before the first Load.
// Values already present in the environment win over the file. Each struct
// type is parsed once and cached, so packages can call Load for their own
// config type without coordinating with main.
//
//	type RedisConfig struct {
//		URL string `env:"REDIS_URL,required"`
//	}
//
//	var cfg RedisConfig
//	if err := config.Load(&cfg); err != nil { ... }
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParsingConfig = errors.New("config.parse_failed")
	ErrNilPointer    = errors.New("config.nil_pointer")
	ErrLoadingEnv    = errors.New("config.env_file")
)

var (
	dotenvOnce sync.Once

	mu    sync.Mutex
	cache = map[reflect.Type]any{}
)

// Load parses environment variables into v. The first successful result for a
// type is cached and copied into later calls.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// Missing .env is normal outside local development.
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache[key] = *v
	return nil
}

// MustLoad is like Load but panics on error. Use it in main only.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
}

// LoadEnv reads the given dotenv files into the environment, overriding
// existing values. Later files take precedence.
func LoadEnv(paths ...string) error {
	if err := godotenv.Overload(paths...); err != nil {
		return errors.Join(ErrLoadingEnv, err)
	}
	return nil
}

// Reset drops cached configs. Intended for tests that change the environment.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	clear(cache)
}
