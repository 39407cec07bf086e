package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

func TestZapAdapterAddsContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	ctx := context.WithValue(context.Background(), contextkeys.RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, contextkeys.ThreadIDKey, "discussion:9")
	l.Info(ctx, "thread opened", "comments", 4)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "discussion:9", fields["thread_id"])
	assert.EqualValues(t, 4, fields["comments"])
	_, hasUser := fields["user_id"]
	assert.False(t, hasUser)
}

func TestZapAdapterOddArguments(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.Warn(context.Background(), "odd", "key", "value", "dangling")
	l.Warn(context.Background(), "bad key", 7, "value")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "value", fields["key"])
	assert.Equal(t, "dangling", fields["orphan_field"])
	assert.Equal(t, "value", logs.All()[1].ContextMap()["field_0"])
}

func TestZapAdapterWithAndLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := Wrap(zap.New(core)).With("component", "cache")

	l.Debug(context.Background(), "hidden")
	l.Error(context.Background(), "shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "cache", logs.All()[0].ContextMap()["component"])
}

func TestNewZapAdapterFallsBackToInfo(t *testing.T) {
	cfg := config.Defaults()
	cfg.Log.Level = "not-a-level"

	l, err := NewZapAdapter(config.NewStaticProvider(cfg), "test")
	require.NoError(t, err)
	assert.NotNil(t, l)
}
