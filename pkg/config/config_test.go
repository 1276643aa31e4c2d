package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/config"
)

type fileConfig struct {
	Name string   `env:"AUTHFLOW_TEST_NAME"`
	Port int      `env:"AUTHFLOW_TEST_PORT" envDefault:"8080"`
	List []string `env:"AUTHFLOW_TEST_LIST" envSeparator:","`
}

type requiredConfig struct {
	Secret string `env:"AUTHFLOW_TEST_REQUIRED,required"`
}

type cachedConfig struct {
	Value string `env:"AUTHFLOW_TEST_CACHED"`
}

// Tests in this file share process env and the package cache; they do not run in parallel.

func TestLoad_NilPointer(t *testing.T) {
	var cfg *fileConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestLoadEnv(t *testing.T) {
	config.Reset()
	t.Setenv("AUTHFLOW_TEST_NAME", "")
	t.Setenv("AUTHFLOW_TEST_PORT", "")
	t.Setenv("AUTHFLOW_TEST_LIST", "")

	require.NoError(t, config.LoadEnv("testdata/.env.test"))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "from_file", cfg.Name)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"a", "b"}, cfg.List)

	err := config.LoadEnv("testdata/missing.env")
	assert.ErrorIs(t, err, config.ErrLoadingEnv)
}

func TestLoad_Required(t *testing.T) {
	config.Reset()

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
	assert.Panics(t, func() { config.MustLoad(&requiredConfig{}) })

	t.Setenv("AUTHFLOW_TEST_REQUIRED", "s3cret")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "s3cret", cfg.Secret)
}

func TestLoad_Cached(t *testing.T) {
	config.Reset()
	t.Setenv("AUTHFLOW_TEST_CACHED", "first")

	var a cachedConfig
	require.NoError(t, config.Load(&a))

	t.Setenv("AUTHFLOW_TEST_CACHED", "second")
	var b cachedConfig
	require.NoError(t, config.Load(&b))
	assert.Equal(t, "first", b.Value)

	config.Reset()
	var c cachedConfig
	require.NoError(t, config.Load(&c))
	assert.Equal(t, "second", c.Value)
}
