package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/logger"
)

type ctxKey struct{}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output with static attrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithAttr(slog.String("app", "authflow")),
		)
		log.Info("hello", logger.Component("resolver"))

		m := decode(t, &buf)
		assert.Equal(t, "hello", m["msg"])
		assert.Equal(t, "authflow", m["app"])
		assert.Equal(t, "resolver", m["component"])
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		assert.Zero(t, buf.Len())
	})

	t.Run("context value is injected", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithContextValue("client_id", ctxKey{}))
		ctx := context.WithValue(context.Background(), ctxKey{}, "c-1")
		log.InfoContext(ctx, "with ctx")

		m := decode(t, &buf)
		assert.Equal(t, "c-1", m["client_id"])
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})

	t.Run("environment preset", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithEnvironment("production", "authflow"), logger.WithOutput(&buf))
		log.Debug("dropped")
		log.Info("kept")

		m := decode(t, &buf)
		assert.Equal(t, "authflow", m["service"])
		assert.Equal(t, "production", m["env"])
	})
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.True(t, logger.Errors(nil, nil).Equal(slog.Attr{}))
	assert.True(t, logger.UserID("").Equal(slog.Attr{}))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)

	errs := logger.Errors(nil, errors.New("a"), errors.New("b"))
	assert.Equal(t, "errors", errs.Key)
	assert.Len(t, errs.Value.Group(), 2)

	assert.Equal(t, "abcdef...", logger.Secret("state", "abcdefghij").Value.String())
	assert.Equal(t, "***", logger.Secret("state", "abc").Value.String())

	tr := logger.Transition("idle", "parsed")
	assert.Equal(t, "transition", tr.Key)
	assert.Len(t, tr.Value.Group(), 2)
}
